package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockwatch/internal/catalog"
	"stockwatch/internal/config"
	"stockwatch/internal/model"
	"stockwatch/internal/store"
)

// Server holds the dependencies every handler needs. It is the "programmatic
// surface" §6 names: AddItem, RemoveItem, ListItems, SetUserPrefs,
// AdminListAll, AdminBan, AdminDisableItem.
type Server struct {
	catalog *catalog.Catalog
	store   *store.Store
	cfg     config.Config
	log     *zap.Logger
}

func NewServer(cat *catalog.Catalog, st *store.Store, cfg config.Config, log *zap.Logger) *Server {
	return &Server{catalog: cat, store: st, cfg: cfg, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type addItemRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	IsGlobal bool   `json:"is_global"`
}

// AddItem handles POST /items.
func (s *Server) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := s.catalog.AddItem(r.Context(), userID, req.Name, req.URL, s.cfg.IsAdmin(userID), req.IsGlobal)
	if err != nil {
		status := statusForCatalogError(err)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// RemoveItem handles DELETE /items/{itemID}.
func (s *Server) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.catalog.RemoveItem(r.Context(), userID, itemID, s.cfg.IsAdmin(userID)); err != nil {
		writeError(w, statusForCatalogError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems handles GET /items.
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	items, err := s.catalog.ListItems(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type setUserPrefsRequest struct {
	CooldownSeconds      *int  `json:"cooldown_seconds,omitempty"`
	DailyNotifyLimit     *int  `json:"daily_notify_limit,omitempty"`
	QuietHoursStart      *int  `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd        *int  `json:"quiet_hours_end,omitempty"`
	NotificationsEnabled *bool `json:"notifications_enabled,omitempty"`
}

// SetUserPrefs handles PATCH /users/me/prefs, updating only the fields the
// caller sent (§6: prefs ⊂ {cooldown, daily_limit, quiet_hours,
// notifications_enabled}).
func (s *Server) SetUserPrefs(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var req setUserPrefsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil && err != store.ErrNotFound {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err == store.ErrNotFound {
		user = model.User{UserID: userID, NotificationsEnabled: true, CooldownSeconds: 600}
	}

	if req.CooldownSeconds != nil {
		user.CooldownSeconds = *req.CooldownSeconds
	}
	if req.DailyNotifyLimit != nil {
		user.DailyNotifyLimit = *req.DailyNotifyLimit
	}
	if req.QuietHoursStart != nil {
		user.QuietHours.StartHour = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		user.QuietHours.EndHour = *req.QuietHoursEnd
	}
	if req.NotificationsEnabled != nil {
		user.NotificationsEnabled = *req.NotificationsEnabled
	}

	if err := s.store.UpsertUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AdminListAll handles GET /admin/items.
func (s *Server) AdminListAll(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.AdminListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type adminBanRequest struct {
	UserID string `json:"user_id"`
	Banned bool   `json:"banned"`
}

// AdminBan handles POST /admin/ban.
func (s *Server) AdminBan(w http.ResponseWriter, r *http.Request) {
	var req adminBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SetUserBanned(r.Context(), req.UserID, req.Banned); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminDisableItem handles POST /admin/items/{itemID}/disable.
func (s *Server) AdminDisableItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Disabled bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.catalog.AdminDisableItem(r.Context(), itemID, req.Disabled); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func statusForCatalogError(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrDuplicateURL):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
