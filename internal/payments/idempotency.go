package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type webhookStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WebhookKey(gateway, reference string) string
	Del(ctx context.Context, keys ...string) error
}

// WebhookGuard drops gateway deliveries that were already handled.
type WebhookGuard struct {
	store   webhookStore
	ttl     time.Duration
	gateway string
}

func NewWebhookGuard(store webhookStore, ttl time.Duration, gateway string) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("webhook store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if gateway == "" {
		return nil, errors.New("gateway is required")
	}
	return &WebhookGuard{
		store:   store,
		ttl:     ttl,
		gateway: gateway,
	}, nil
}

// CheckAndMark reports true when the reference was seen before.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, errors.New("reference is required")
	}
	key := g.store.WebhookKey(g.gateway, reference)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

// Release forgets a reference so a redelivery is processed again.
func (g *WebhookGuard) Release(ctx context.Context, reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(g.gateway, reference))
}
