package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stockwatch/internal/config"
)

type contextKey string

const userIDContextKey contextKey = "stockwatch_user_id"

// Claims is the JWT payload expected on the Authorization header for every
// request. Routes outside /admin only need a valid, unexpired token;
// /admin routes additionally require cfg.IsAdmin(claims.Subject).
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a token for userID, for operators to bootstrap a session
// (e.g. via a side-channel login flow the bot front-end owns).
func IssueToken(cfg config.Config, userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "stockwatch",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSigningKey))
}

// authenticate validates the bearer token and stashes the caller's user ID
// in the request context. Unauthenticated requests are rejected outright:
// every route in this API acts on behalf of some user_id.
func authenticate(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr := strings.TrimPrefix(header, "Bearer ")
			if tokenStr == "" || tokenStr == header {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSigningKey), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin gates /admin/* routes on cfg.IsAdmin, run after authenticate.
func requireAdmin(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := r.Context().Value(userIDContextKey).(string)
			if !cfg.IsAdmin(userID) {
				http.Error(w, "admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey).(string)
	return userID
}
