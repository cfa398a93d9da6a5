package profiles

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/learnexa/learnexa/internal/auth"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// Handler serves the profile page of the signed-in user.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates}
}

// MountRoutes registers profile routes. Callers guard them with a
// signed-in rule.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showProfile)
	r.Post("/", h.updateProfile)
	r.Post("/password", h.updatePassword)
}

type pageData struct {
	Profile  *Profile
	Missing  bool
	Email    string
	Phone    string
	IsAdmin  bool
	JoinedAt time.Time
	Editing  bool
	Form     UpdateInput
	// Error is a catalog key shown above the page; Field names the
	// offending input after a validation failure.
	Error string
	Field string
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Snapshot, bool) {
	store := auth.FromContext(r.Context())
	if store == nil {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return auth.Snapshot{}, false
	}
	snap, _ := store.WaitSettled(r.Context())
	if !snap.SignedIn() {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return auth.Snapshot{}, false
	}
	return snap, true
}

func (h *Handler) load(r *http.Request, snap auth.Snapshot) pageData {
	data := pageData{
		Email:    snap.Identity.Email,
		Phone:    snap.Identity.Phone,
		IsAdmin:  snap.IsAdmin(),
		JoinedAt: snap.Identity.CreatedAt,
	}
	p, err := h.service.Get(r.Context(), snap.Identity.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		data.Missing = true
	case err != nil:
		h.logger.Error("load profile", slog.String("user_id", snap.Identity.ID), slog.Any("error", err))
		data.Error = shared.MessageKey(err)
	default:
		data.Profile = &p
		data.JoinedAt = p.CreatedAt
		data.Form = UpdateInput{FullName: p.FullName, Phone: p.Phone, Bio: p.Bio}
	}
	return data
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.identity(w, r)
	if !ok {
		return
	}
	data := h.load(r, snap)
	data.Editing = r.URL.Query().Get("edit") == "1" && data.Profile != nil
	h.render(w, r, http.StatusOK, data)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	snap, ok := h.identity(w, r)
	if !ok {
		return
	}
	form := UpdateInput{
		FullName: r.PostFormValue("full_name"),
		Phone:    r.PostFormValue("phone"),
		Bio:      r.PostFormValue("bio"),
	}
	if _, err := h.service.Update(r.Context(), snap.Identity.ID, form); err != nil {
		data := h.load(r, snap)
		data.Editing = data.Profile != nil
		data.Form = form
		data.Error = shared.MessageKey(err)
		status := http.StatusInternalServerError
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			data.Field = verr.Field
			status = http.StatusBadRequest
		} else {
			h.logger.Error("update profile", slog.String("user_id", snap.Identity.ID), slog.Any("error", err))
		}
		h.render(w, r, status, data)
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, "profile.saved")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, ok := h.identity(w, r); !ok {
		return
	}
	store := auth.FromContext(r.Context())
	if err := store.UpdatePassword(r.Context(), r.PostFormValue("password")); err != nil {
		if auth.ReasonOf(err) == auth.ReasonGeneric {
			h.logger.Error("update password", slog.Any("error", err))
		}
		shared.AddFlash(r.Context(), shared.FlashError, auth.MessageKey(err))
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, "profile.password.updated")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	if err := h.templates.Render(w, r, status, "pages/profile.html", view.TemplateData{Title: "profile.title", Data: data}); err != nil {
		h.logger.Error("render profile", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
