package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/api/middleware"
	"github.com/servicelink/servicelink-backend/api/responses"
	"github.com/servicelink/servicelink-backend/api/validators"
	"github.com/servicelink/servicelink-backend/internal/bookings"
	"github.com/servicelink/servicelink-backend/internal/providers"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

const maxReasonLength = 1000

type createBookingRequest struct {
	ProviderID        uuid.UUID  `json:"provider_id" validate:"required"`
	ServiceOfferingID *uuid.UUID `json:"service_offering_id,omitempty"`
	ServiceTitle      string     `json:"service_title" validate:"required,max=200"`
	Description       *string    `json:"description,omitempty" validate:"omitempty,max=4000"`
	ScheduledDate     *time.Time `json:"scheduled_date,omitempty"`
	ScheduledTime     *string    `json:"scheduled_time,omitempty" validate:"omitempty,max=20"`
	Location          *string    `json:"location,omitempty" validate:"omitempty,max=500"`
	Notes             *string    `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type quoteRequest struct {
	ServicePrice decimal.Decimal `json:"service_price" validate:"money"`
	Notes        *string         `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// bookingTransition is the shape shared by the start and complete actions.
type bookingTransition func(svc bookings.Service, r *http.Request, userID, bookingID uuid.UUID) (*models.Booking, error)

type bookingReasonAction func(svc bookings.Service, r *http.Request, userID, bookingID uuid.UUID, reason string) (*models.Booking, error)

// CreateBooking lets a customer request a quote from a provider.
func CreateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.CreateBookingRequest(r.Context(), userID, bookings.CreateBookingInput{
			ProviderID:        payload.ProviderID,
			ServiceOfferingID: payload.ServiceOfferingID,
			ServiceTitle:      strings.TrimSpace(payload.ServiceTitle),
			Description:       payload.Description,
			ScheduledDate:     payload.ScheduledDate,
			ScheduledTime:     payload.ScheduledTime,
			Location:          payload.Location,
			Notes:             payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// ListBookings pages through the caller's bookings as customer (default) or provider.
func ListBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, err := RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := bookings.ListParams{
			Role:   listRole(r),
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor", 256),
		}
		if raw := validators.QueryString(r, "status", 32); raw != "" {
			status, err := enums.ParseBookingStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		result, err := svc.ListBookings(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// listRole takes the explicit ?role= filter, else the token role.
func listRole(r *http.Request) bookings.Role {
	if raw := strings.ToLower(validators.QueryString(r, "role", 16)); raw != "" {
		return bookings.Role(raw)
	}
	if middleware.RoleFromContext(r.Context()) == string(enums.UserRoleProvider) {
		return bookings.RoleProvider
	}
	return bookings.RoleCustomer
}

func GetBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, bookingID, err := bookingRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.GetBooking(r.Context(), userID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// QuoteBooking records the provider's price on a pending booking.
func QuoteBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, bookingID, err := bookingRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.SendQuote(r.Context(), userID, bookingID, bookings.QuoteInput{
			ServicePrice: payload.ServicePrice,
			Notes:        payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// ConfirmBooking initialises the deposit checkout for a quoted booking.
func ConfirmBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, bookingID, err := bookingRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := bookings.Actor{UserID: userID, Email: middleware.EmailFromContext(r.Context())}
		result, err := svc.ConfirmBooking(r.Context(), actor, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func StartBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc, logg, func(svc bookings.Service, r *http.Request, userID, bookingID uuid.UUID) (*models.Booking, error) {
		return svc.StartBooking(r.Context(), userID, bookingID)
	})
}

func CompleteBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc, logg, func(svc bookings.Service, r *http.Request, userID, bookingID uuid.UUID) (*models.Booking, error) {
		return svc.CompleteBooking(r.Context(), userID, bookingID)
	})
}

func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonHandler(svc, logg, func(svc bookings.Service, r *http.Request, userID, bookingID uuid.UUID, reason string) (*models.Booking, error) {
		return svc.CancelBooking(r.Context(), userID, bookingID, reason)
	})
}

func DisputeBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonHandler(svc, logg, func(svc bookings.Service, r *http.Request, userID, bookingID uuid.UUID, reason string) (*models.Booking, error) {
		return svc.InitiateDispute(r.Context(), userID, bookingID, reason)
	})
}

// BookingContact returns the provider contact for a booking party, unmasked once revealed.
func BookingContact(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "providers service unavailable"))
			return
		}
		userID, bookingID, err := bookingRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contact, err := svc.BookingContact(r.Context(), userID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contact)
	}
}

func transitionHandler(svc bookings.Service, logg *logger.Logger, apply bookingTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, bookingID, err := bookingRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := apply(svc, r, userID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

func reasonHandler(svc bookings.Service, logg *logger.Logger, apply bookingReasonAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		userID, bookingID, err := bookingRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reasonRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := apply(svc, r, userID, bookingID, validators.SanitizeString(payload.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

func bookingRequestIDs(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := RequireUserID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	bookingID, err := validators.PathUUID(r, "bookingId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, bookingID, nil
}
