package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

// Envelope is the body of every successful response.
type Envelope struct {
	Data any `json:"data"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError classifies err, logs it with its full chain, and writes only
// what the code's class allows clients to see.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("error reported without a cause")
	}
	typed := pkgerrors.Classify(err)
	class := pkgerrors.Lookup(typed.Code())

	body := ErrorBody{Code: string(typed.Code()), Message: class.Public}
	if class.ExposeMessage && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if class.ExposeDetails {
		body.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Describe(err).Fields())
		ctx = logg.WithField(ctx, "http_status", class.Status)
		if class.Status >= http.StatusInternalServerError {
			logg.Error(ctx, "request failed", err)
		} else {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "request rejected")
		}
	}
	writeJSON(w, class.Status, ErrorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are gone by now; an encode failure can only mean a dropped client.
	_ = json.NewEncoder(w).Encode(payload)
}
