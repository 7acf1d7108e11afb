package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller as described by a verified access token.
type Identity struct {
	UserUID string
	Email   string
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by JWTMiddleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// JWTMiddleware validates the bearer access token and attaches the caller's
// identity to the request context. Refresh tokens are rejected.
func JWTMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing or invalid token")
				return
			}

			tokenStr := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil || !token.Valid {
				unauthorized(w, "invalid or expired token")
				return
			}

			if refresh, _ := claims["refresh"].(bool); refresh {
				unauthorized(w, "access token required")
				return
			}

			id, ok := identityFromClaims(claims)
			if !ok {
				unauthorized(w, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// identityFromClaims accepts {"user": {"uid", "email"}} or a flat "user_id".
func identityFromClaims(claims jwt.MapClaims) (Identity, bool) {
	var id Identity
	if user, ok := claims["user"].(map[string]interface{}); ok {
		id.UserUID, _ = user["uid"].(string)
		id.Email, _ = user["email"].(string)
	}
	if id.UserUID == "" {
		id.UserUID, _ = claims["user_id"].(string)
	}
	if id.Email == "" {
		id.Email, _ = claims["email"].(string)
	}
	return id, id.UserUID != "" || id.Email != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status_code": http.StatusUnauthorized,
		"message":     msg,
	})
}
