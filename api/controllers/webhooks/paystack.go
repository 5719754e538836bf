package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/servicelink/servicelink-backend/api/responses"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/paystack"
)

// maxWebhookBody bounds the gateway payload read into memory.
const maxWebhookBody = 1 << 20

type PaystackWebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// PaystackWebhook verifies and applies gateway charge events.
func PaystackWebhook(svc PaystackWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(paystack.SignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature missing"))
			return
		}

		if err := svc.HandleWebhook(ctx, payload, signature); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
