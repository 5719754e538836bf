package subscriptions

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/api/controllers"
	"github.com/servicelink/servicelink-backend/api/responses"
	"github.com/servicelink/servicelink-backend/api/validators"
	subsvc "github.com/servicelink/servicelink-backend/internal/subscriptions"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type changeTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free basic pro"`
}

// Tiers lists the plan catalogue. No authentication required.
func Tiers(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Tiers())
	}
}

func Current(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := controllers.RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		current, err := svc.Current(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}

type tierChange func(svc subsvc.Service, r *http.Request, userID uuid.UUID, tier enums.SubscriptionTier) (*subsvc.CurrentSubscription, error)

// Upgrade moves the provider to a higher paid tier immediately.
func Upgrade(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return changeTier(svc, logg, func(svc subsvc.Service, r *http.Request, userID uuid.UUID, tier enums.SubscriptionTier) (*subsvc.CurrentSubscription, error) {
		return svc.Upgrade(r.Context(), userID, tier)
	})
}

// Downgrade to FREE takes effect at period end; a lower paid tier applies now.
func Downgrade(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return changeTier(svc, logg, func(svc subsvc.Service, r *http.Request, userID uuid.UUID, tier enums.SubscriptionTier) (*subsvc.CurrentSubscription, error) {
		return svc.Downgrade(r.Context(), userID, tier)
	})
}

func changeTier(svc subsvc.Service, logg *logger.Logger, apply tierChange) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := controllers.RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changeTierRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tier, err := enums.ParseSubscriptionTier(strings.ToLower(payload.Tier))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier"))
			return
		}

		current, err := apply(svc, r, userID, tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}
