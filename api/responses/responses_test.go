package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"status": "pending"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"status":"pending"}}`, w.Body.String())
}

func TestWriteSuccessNilData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, nil)
	assert.JSONEq(t, `{"data":null}`, w.Body.String())
}

func TestWriteErrorStateConflictKeepsMessageAndDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "cannot confirm a pending booking").
		WithDetails(map[string]string{"status": "pending"})
	WriteError(context.Background(), nil, w, fmt.Errorf("confirm: %w", err))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "STATE_CONFLICT", body.Code)
	assert.Equal(t, "cannot confirm a pending booking", body.Message)
	assert.Equal(t, map[string]any{"status": "pending"}, body.Details)
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("dial tcp 10.0.0.4:5432"), "load booking").
		WithDetails("secret")
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal server error", body.Message)
	assert.Nil(t, body.Details)
}

func TestWriteErrorClassifiesUniqueViolation(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api", Output: buf})
	w := httptest.NewRecorder()

	WriteError(context.Background(), logg, w, fmt.Errorf("insert lead: %w", &pgconn.PgError{Code: "23505", ConstraintName: "leads_job_post_provider_key"}))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "record already exists", decodeError(t, w).Message)
	assert.Contains(t, buf.String(), `"pg_constraint":"leads_job_post_provider_key"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestWriteErrorLogsServerFailuresAtError(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api", Output: buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), errors.New("boom"))

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"http_status":500`)
}

func TestWriteErrorWithoutCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
