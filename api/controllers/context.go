package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/api/middleware"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

// RequireUserID returns the authenticated caller or an unauthorized error.
func RequireUserID(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserUUIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}
