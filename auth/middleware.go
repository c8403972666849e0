package auth

import (
	"chat-relay/errors"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

// TokenFromRequest reads the token from the "Authorization: Bearer" header, or from the
// "token" query parameter since browsers cannot set headers on a WebSocket handshake.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			return "", errors.ErrMissingToken
		}
		return strings.TrimSpace(token), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.ErrMissingToken
}

// Middleware rejects requests without a valid token and injects the user identity
// into the request context for the handlers.
func Middleware(signer Signer, onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := TokenFromRequest(r)
			if err != nil {
				onError(w, err)
				return
			}
			claims, err := signer.ValidateToken(token)
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.UserID, claims.Roles)))
		})
	}
}

func WithIdentity(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RolesKey, roles)
}

// UserIDFromContext returns the authenticated user, false for an anonymous context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
