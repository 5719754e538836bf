package payments

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/servicelink/servicelink-backend/api/middleware"
	paymentsvc "github.com/servicelink/servicelink-backend/internal/payments"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type stubPaymentsService struct {
	paymentsvc.Service
	verifiedRef string
	verifyErr   error
}

func (s *stubPaymentsService) VerifyPayment(ctx context.Context, customerID uuid.UUID, reference string) (*paymentsvc.FinalizeResult, error) {
	s.verifiedRef = reference
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &paymentsvc.FinalizeResult{Booking: &models.Booking{ID: uuid.New()}}, nil
}

func (s *stubPaymentsService) ProviderEarnings(ctx context.Context, providerUserID uuid.UUID) (*paymentsvc.Earnings, error) {
	return &paymentsvc.Earnings{TotalEarnings: decimal.RequireFromString("900"), NetEarnings: decimal.RequireFromString("850")}, nil
}

func (s *stubPaymentsService) PaymentHistory(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error) {
	return []models.Transaction{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withReference(req *http.Request, reference string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("reference", reference)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithUserID(ctx, uuid.NewString()))
}

func TestVerifyPaymentPassesReference(t *testing.T) {
	svc := &stubPaymentsService{}
	req := withReference(httptest.NewRequest(http.MethodPost, "/", nil), "SL-123")
	resp := httptest.NewRecorder()
	VerifyPayment(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "SL-123", svc.verifiedRef)
}

func TestVerifyPaymentGatewayFailure(t *testing.T) {
	svc := &stubPaymentsService{verifyErr: pkgerrors.New(pkgerrors.CodeDependency, "payment not successful")}
	req := withReference(httptest.NewRequest(http.MethodPost, "/", nil), "SL-9")
	resp := httptest.NewRecorder()
	VerifyPayment(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestVerifyPaymentRejectsBlankReference(t *testing.T) {
	svc := &stubPaymentsService{}
	req := withReference(httptest.NewRequest(http.MethodPost, "/", nil), "  ")
	resp := httptest.NewRecorder()
	VerifyPayment(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.verifiedRef)
}

func TestProviderEarnings(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()
	ProviderEarnings(&stubPaymentsService{}, testLogger())(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"net_earnings":"850"`)
}
