package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockwatch/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.JWTSigningKey = "test-signing-key"
	cfg.AdminIDs = []string{"admin-1"}
	return cfg
}

func TestAuthenticate_RejectsMissingToken(t *testing.T) {
	cfg := testConfig()
	handler := authenticate(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_AcceptsValidToken(t *testing.T) {
	cfg := testConfig()
	token, err := IssueToken(cfg, "user-1", time.Hour)
	require.NoError(t, err)

	var seenUserID string
	handler := authenticate(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = userIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", seenUserID)
}

func TestAuthenticate_RejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	token, err := IssueToken(cfg, "user-1", -time.Hour)
	require.NoError(t, err)

	handler := authenticate(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin_RejectsNonAdmin(t *testing.T) {
	cfg := testConfig()
	handler := requireAdmin(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/items", nil)
	req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, "user-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAdmin_AcceptsAdmin(t *testing.T) {
	cfg := testConfig()
	handler := requireAdmin(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/items", nil)
	req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, "admin-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
