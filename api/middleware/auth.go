package middleware

import (
	"net/http"
	"strings"

	"github.com/servicelink/servicelink-backend/api/responses"
	pkgAuth "github.com/servicelink/servicelink-backend/pkg/auth"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type tokenVerifier interface {
	Verify(token string) (pkgAuth.Identity, error)
}

// Auth admits requests carrying a valid access token and records the caller
// on the request context. Tokens are issued by the identity service; this
// API only verifies them.
func Auth(tokens tokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			who, err := tokens.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := Actor{UserID: who.UserID.String(), Role: string(who.Role), Email: who.Email}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, actor.UserID), actor.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(rest)
	}
	return raw, raw != ""
}
