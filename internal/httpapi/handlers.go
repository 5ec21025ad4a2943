package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	rtsup "adminpanel/internal/runtime/supervisor"
	"adminpanel/internal/storage"
	logx "adminpanel/pkg/logx"
)

const maxLimit = 100

type handler struct {
	store         Store
	monitor       ResourceChecker
	notifications NotificationLog
	runtime       func() rtsup.Counters
	log           logx.Logger
}

type StatsResponse struct {
	storage.Stats
	Runtime *rtsup.Counters `json:"runtime,omitempty"`
}

type NotificationResponse struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type AlertResponse struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type ActivityResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Details   *string   `json:"details,omitempty"`
	IPAddress *string   `json:"ip_address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type UserResponse struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	IsAdmin    bool       `json:"is_admin"`
	JoinDate   time.Time  `json:"join_date"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	out := StatsResponse{Stats: st}
	if h.runtime != nil {
		c := h.runtime()
		out.Runtime = &c
	}
	writeJSON(w, http.StatusOK, out)
}

// notificationList returns delivered notifications, newest first.
func (h *handler) notificationList(w http.ResponseWriter, r *http.Request) {
	if h.notifications == nil {
		writeError(w, http.StatusNotImplemented, "notifier disabled")
		return
	}
	items := h.notifications.Snapshot()
	out := make([]NotificationResponse, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, NotificationResponse{At: items[i].At, Kind: string(items[i].Kind), Text: items[i].Text})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.GetUnresolvedAlerts(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertResponse{
			ID:         a.AlertID,
			Type:       a.AlertType,
			Severity:   string(a.Severity),
			Message:    a.Message,
			Resolved:   a.Resolved,
			CreatedAt:  a.CreatedAt,
			ResolvedAt: a.ResolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) activities(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = v
	}
	acts, err := h.store.GetRecentActivities(r.Context(), limit)
	if err != nil {
		h.internal(w, err)
		return
	}
	out := make([]ActivityResponse, 0, len(acts))
	for _, a := range acts {
		out = append(out, ActivityResponse{
			ID:        a.LogID,
			UserID:    a.UserID,
			Type:      a.ActivityType,
			Details:   a.Details,
			IPAddress: a.IPAddress,
			Timestamp: a.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) user(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		ID:         u.UserID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsAdmin:    u.IsAdmin,
		JoinDate:   u.JoinDate,
		LastActive: u.LastActive,
	})
}

func (h *handler) resources(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusNotImplemented, "resource monitor disabled")
		return
	}
	u, err := h.monitor.CheckResources(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) internal(w http.ResponseWriter, err error) {
	h.log.Error("http handler failed", logx.Err(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
