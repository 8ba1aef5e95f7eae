package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockwatch/internal/catalog"
	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/store"
)

func newTestServer(t *testing.T) (*Server, config.Config) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite://file::memory:?cache=shared", clock.Real{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := testConfig()
	cat := catalog.New(s, cfg, clock.Real{}, zap.NewNop())
	return NewServer(cat, s, cfg, zap.NewNop()), cfg
}

func authedRequest(cfg config.Config, method, path string, body interface{}) *http.Request {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	token, _ := IssueToken(cfg, "user-1", time.Hour)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestRouter_AddAndListItems(t *testing.T) {
	srv, cfg := newTestServer(t)
	router := NewRouter(srv, cfg)

	addReq := authedRequest(cfg, http.MethodPost, "/items", addItemRequest{
		Name: "my-server", URL: "https://www.vultr.com/products/a",
	})
	addRec := httptest.NewRecorder()
	router.ServeHTTP(addRec, addReq)
	require.Equal(t, http.StatusCreated, addRec.Code)

	listReq := authedRequest(cfg, http.MethodGet, "/items", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	require.Contains(t, listRec.Body.String(), "my-server")
}

func TestRouter_AdminRoutesRejectNonAdmin(t *testing.T) {
	srv, cfg := newTestServer(t)
	router := NewRouter(srv, cfg)

	req := authedRequest(cfg, http.MethodGet, "/admin/items", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_HealthIsUnauthenticated(t *testing.T) {
	srv, cfg := newTestServer(t)
	router := NewRouter(srv, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AddItemRejectsInvalidURL(t *testing.T) {
	srv, cfg := newTestServer(t)
	router := NewRouter(srv, cfg)

	req := authedRequest(cfg, http.MethodPost, "/items", addItemRequest{Name: "bad", URL: "ftp://badscheme.example.com"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
