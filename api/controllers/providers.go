package controllers

import (
	"net/http"

	"github.com/servicelink/servicelink-backend/api/responses"
	"github.com/servicelink/servicelink-backend/api/validators"
	"github.com/servicelink/servicelink-backend/internal/providers"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type createProviderRequest struct {
	BusinessName      string   `json:"business_name" validate:"required,max=200"`
	Bio               *string  `json:"bio,omitempty" validate:"omitempty,max=4000"`
	Location          *string  `json:"location,omitempty" validate:"omitempty,max=500"`
	ServiceAreas      []string `json:"service_areas,omitempty" validate:"omitempty,max=50,dive,max=100"`
	ContactEmail      *string  `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone      *string  `json:"contact_phone,omitempty" validate:"omitempty,max=32,phone"`
	AutoRevealContact *bool    `json:"auto_reveal_contact,omitempty"`
}

// CreateProvider registers the caller as a provider on the FREE tier.
func CreateProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "providers service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProviderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.Create(r.Context(), providers.CreateProfileDTO{
			UserID:            userID,
			BusinessName:      payload.BusinessName,
			Bio:               payload.Bio,
			Location:          payload.Location,
			ServiceAreas:      payload.ServiceAreas,
			ContactEmail:      payload.ContactEmail,
			ContactPhone:      payload.ContactPhone,
			AutoRevealContact: payload.AutoRevealContact,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, profile)
	}
}

// GetProvider returns a public profile; contact details are masked for everyone but the owner.
func GetProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "providers service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profileID, err := validators.PathUUID(r, "providerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.GetProfile(r.Context(), userID, profileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func GetMyProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "providers service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.GetByUserID(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

type updateProviderRequest struct {
	BusinessName      *string  `json:"business_name,omitempty" validate:"omitempty,max=200"`
	Bio               *string  `json:"bio,omitempty" validate:"omitempty,max=4000"`
	Location          *string  `json:"location,omitempty" validate:"omitempty,max=500"`
	ServiceAreas      []string `json:"service_areas,omitempty" validate:"omitempty,max=50,dive,max=100"`
	ContactEmail      *string  `json:"contact_email,omitempty" validate:"omitempty,email|len=0"`
	ContactPhone      *string  `json:"contact_phone,omitempty" validate:"omitempty,max=32,phone|len=0"`
	AutoRevealContact *bool    `json:"auto_reveal_contact,omitempty"`
}

// UpdateMyProvider applies a partial edit to the caller's provider profile.
func UpdateMyProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "providers service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProviderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.Update(r.Context(), userID, providers.UpdateProfileDTO{
			BusinessName:      payload.BusinessName,
			Bio:               payload.Bio,
			Location:          payload.Location,
			ServiceAreas:      payload.ServiceAreas,
			ContactEmail:      payload.ContactEmail,
			ContactPhone:      payload.ContactPhone,
			AutoRevealContact: payload.AutoRevealContact,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
