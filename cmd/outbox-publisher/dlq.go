package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
)

const dlqUsage = `usage:
  outbox-publisher dlq list [-reason max_attempts|unroutable|invalid_payload] [-type event_type] [-limit n]
  outbox-publisher dlq requeue <event-id>...`

var errDLQUsage = errors.New(dlqUsage)

type dlqStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// runDLQ serves the operator commands. list prints one JSON document per
// entry; requeue stops at the first event it cannot hand back.
func runDLQ(ctx context.Context, store dlqStore, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errDLQUsage
	}
	switch args[0] {
	case "list":
		filter, err := parseListFlags(args[1:])
		if err != nil {
			return err
		}
		entries, err := store.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list dead letters: %w", err)
		}
		enc := json.NewEncoder(out)
		for _, entry := range entries {
			if err := enc.Encode(entry); err != nil {
				return err
			}
		}
		return nil
	case "requeue":
		if len(args) < 2 {
			return errDLQUsage
		}
		for _, raw := range args[1:] {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("event id %q: %w", raw, err)
			}
			entry, err := store.Requeue(ctx, id)
			if err != nil {
				return fmt.Errorf("requeue %s: %w", id, err)
			}
			fmt.Fprintf(out, "requeued %s %s (was %s)\n", entry.EventType, entry.EventID, entry.ErrorReason)
		}
		return nil
	default:
		return errDLQUsage
	}
}

func parseListFlags(args []string) (outbox.DLQFilter, error) {
	fs := flag.NewFlagSet("dlq list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	reason := fs.String("reason", "", "only entries parked for this reason")
	eventType := fs.String("type", "", "only entries of this event type")
	limit := fs.Int("limit", 50, "maximum entries to print")
	if err := fs.Parse(args); err != nil {
		return outbox.DLQFilter{}, fmt.Errorf("%w\n%s", err, dlqUsage)
	}

	filter := outbox.DLQFilter{Reason: enums.OutboxDLQErrorReason(*reason), Limit: *limit}
	if *reason != "" && !filter.Reason.IsValid() {
		return filter, fmt.Errorf("unknown reason %q", *reason)
	}
	if *eventType != "" {
		parsed, err := enums.ParseOutboxEventType(*eventType)
		if err != nil {
			return filter, err
		}
		filter.Type = parsed
	}
	return filter, nil
}
