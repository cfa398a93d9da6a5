package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/learnexa/learnexa/internal/auth"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// Auditor keeps a trail of role changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Handler serves the admin dashboard. Callers guard it with an
// administrator rule.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	audit     Auditor
}

// NewHandler builds Handler instance. audit may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, audit Auditor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, audit: audit}
}

// MountRoutes registers admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showDashboard)
	r.Post("/users/{userID}/role", h.updateRole)
}

// Tabs of the dashboard.
const (
	TabDashboard = "dashboard"
	TabUsers     = "users"
	TabSettings  = "settings"
)

func parseTab(raw string) string {
	switch raw {
	case TabUsers, TabSettings:
		return raw
	default:
		return TabDashboard
	}
}

type pageData struct {
	Tab   string
	Query string
	Users []UserRow
	Stats Stats
	Error string
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	data := pageData{Tab: parseTab(r.URL.Query().Get("tab")), Query: r.URL.Query().Get("q")}
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.Error("load admin overview", slog.Any("error", err))
		data.Error = shared.MessageKey(err)
		h.render(w, r, http.StatusInternalServerError, data)
		return
	}
	data.Stats = overview.Stats
	data.Users = Filter(overview.Users, data.Query)
	h.render(w, r, http.StatusOK, data)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	userID := chi.URLParam(r, "userID")
	target := "/admin?tab=users"
	if q := r.PostFormValue("q"); q != "" {
		target += "&q=" + url.QueryEscape(q)
	}
	if err := h.service.SetRole(r.Context(), userID, r.PostFormValue("role")); err != nil {
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error("update role", slog.String("user_id", userID), slog.Any("error", err))
		}
		shared.AddFlash(r.Context(), shared.FlashError, shared.MessageKey(err))
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	role := r.PostFormValue("role")
	h.logger.Info("role updated", slog.String("user_id", userID), slog.String("role", role))
	h.record(r, userID, role)
	shared.AddFlash(r.Context(), shared.FlashSuccess, "admin.role.updated")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// record writes the audit entry. A failed write is logged and does not undo
// the role change.
func (h *Handler) record(r *http.Request, userID, role string) {
	if h.audit == nil {
		return
	}
	var actor string
	if store := auth.FromContext(r.Context()); store != nil {
		if snap := store.Snapshot(); snap.Identity != nil {
			actor = snap.Identity.ID
		}
	}
	entry := shared.AuditLog{
		ActorID:  actor,
		Action:   "role.set",
		Entity:   "user",
		EntityID: userID,
		Meta:     map[string]any{"role": role},
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("audit role change", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	if err := h.templates.Render(w, r, status, "pages/admin.html", view.TemplateData{Title: "admin.title", Data: data}); err != nil {
		h.logger.Error("render admin", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
