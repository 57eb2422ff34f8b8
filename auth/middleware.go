package auth

import (
	"context"
	"net/http"
	"strings"

	"market-chat/domain"
	apperrors "market-chat/errors"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware handles bearer credential validation for incoming HTTP calls.
// It resolves the credential before any handler runs and injects the user
// identity into the request context, so a failed resolution aborts the
// request with no side effects.
func Middleware(verifier IVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, apperrors.ErrMissingCredential.Error(), http.StatusUnauthorized)
				return
			}
			credential := strings.TrimPrefix(header, "Bearer ")

			userID, err := verifier.Resolve(r.Context(), credential)
			if err != nil {
				http.Error(w, "invalid or expired credential", apperrors.MapToHTTPStatus(err))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext extracts the identity the middleware resolved.
func UserFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(userIDKey).(domain.UserID)
	return userID, ok
}
