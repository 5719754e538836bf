package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/servicelink/servicelink-backend/api/controllers"
	"github.com/servicelink/servicelink-backend/api/responses"
	"github.com/servicelink/servicelink-backend/api/validators"
	paymentsvc "github.com/servicelink/servicelink-backend/internal/payments"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

const maxReferenceLength = 100

// VerifyPayment settles a deposit after the customer returns from the hosted checkout.
func VerifyPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := controllers.RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" || len(reference) > maxReferenceLength {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment reference"))
			return
		}

		result, err := svc.VerifyPayment(r.Context(), userID, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProviderEarnings reports settled and pending income for the calling provider.
func ProviderEarnings(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := controllers.RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		earnings, err := svc.ProviderEarnings(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, earnings)
	}
}

func PaymentHistory(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := controllers.RequireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.PaymentHistory(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
