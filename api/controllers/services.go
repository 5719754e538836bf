package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/api/responses"
	"github.com/servicelink/servicelink-backend/api/validators"
	"github.com/servicelink/servicelink-backend/internal/services"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type createServiceRequest struct {
	Title        string           `json:"title" validate:"required,max=200"`
	Description  *string          `json:"description,omitempty" validate:"omitempty,max=4000"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	PricingModel string           `json:"pricing_model,omitempty" validate:"omitempty,oneof=fixed hourly quote_based"`
	Unit         *string          `json:"unit,omitempty" validate:"omitempty,max=50"`
}

type updateServiceRequest struct {
	Title        *string          `json:"title,omitempty" validate:"omitempty,max=200"`
	Description  *string          `json:"description,omitempty" validate:"omitempty,max=4000"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	PricingModel *string          `json:"pricing_model,omitempty" validate:"omitempty,oneof=fixed hourly quote_based"`
	Unit         *string          `json:"unit,omitempty" validate:"omitempty,max=50"`
}

// CreateService lists a new offering on the caller's provider profile.
func CreateService(svc services.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "services service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createServiceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offering, err := svc.Create(r.Context(), userID, services.CreateInput{
			Title:        payload.Title,
			Description:  payload.Description,
			Price:        payload.Price,
			PricingModel: payload.PricingModel,
			Unit:         payload.Unit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offering)
	}
}

func UpdateService(svc services.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "services service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceID, err := validators.PathUUID(r, "serviceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateServiceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offering, err := svc.Update(r.Context(), userID, serviceID, services.UpdateInput{
			Title:        payload.Title,
			Description:  payload.Description,
			Price:        payload.Price,
			PricingModel: payload.PricingModel,
			Unit:         payload.Unit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offering)
	}
}

func DeleteService(svc services.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "services service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceID, err := validators.PathUUID(r, "serviceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, serviceID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// ListProviderServices returns a provider's offerings newest first.
func ListProviderServices(svc services.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "services service unavailable"))
			return
		}
		profileID, err := validators.PathUUID(r, "providerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerings, err := svc.ListForProvider(r.Context(), profileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offerings)
	}
}
