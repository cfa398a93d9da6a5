// Package site serves the public marketing pages and the contact form.
package site

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// Services and Features list the catalog stems of the home page cards in
// display order.
var (
	Services = []string{"schools", "centers", "teachers", "lms", "apps", "support"}
	Features = []string{"feature1", "feature2", "feature3", "feature4"}
)

// Message is a submitted contact form.
type Message struct {
	Name    string `validate:"required,max=120"`
	Email   string `validate:"required,email"`
	Phone   string `validate:"omitempty,phone"`
	Message string `validate:"required,max=2000"`
}

var messageKeys = map[string]string{
	"Name":    "validation.name",
	"Email":   "validation.email",
	"Phone":   "validation.phone",
	"Message": "validation.message",
}

// Inbox accepts contact messages for delivery to the team.
type Inbox interface {
	SubmitContact(ctx context.Context, msg Message) error
}

// Handler serves the home and install pages.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	inbox     Inbox
	validate  *validator.Validate
}

// NewHandler builds Handler instance. inbox may be nil, in which case
// messages are only logged.
func NewHandler(logger *slog.Logger, templates *view.Engine, inbox Inbox) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, templates: templates, inbox: inbox, validate: shared.NewValidator()}
}

// MountRoutes registers site routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Post("/contact", h.contact)
	r.Get("/install", h.install)
}

type homeData struct {
	Services []string
	Features []string
	Contact  Message
	Error    string
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	h.renderHome(w, r, http.StatusOK, homeData{Services: Services, Features: Features})
}

func (h *Handler) contact(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	msg := Message{
		Name:    strings.TrimSpace(r.PostFormValue("name")),
		Email:   strings.TrimSpace(r.PostFormValue("email")),
		Phone:   strings.TrimSpace(r.PostFormValue("phone")),
		Message: strings.TrimSpace(r.PostFormValue("message")),
	}
	data := homeData{Services: Services, Features: Features, Contact: msg}
	if err := shared.ValidateStruct(h.validate, msg, messageKeys); err != nil {
		data.Error = shared.MessageKey(err)
		h.renderHome(w, r, http.StatusBadRequest, data)
		return
	}
	if err := h.submit(r.Context(), msg); err != nil {
		h.logger.Error("submit contact", slog.Any("error", err))
		data.Error = "contact.error"
		h.renderHome(w, r, http.StatusServiceUnavailable, data)
		return
	}
	shared.AddFlash(r.Context(), shared.FlashSuccess, "contact.sent")
	http.Redirect(w, r, "/#contact", http.StatusSeeOther)
}

func (h *Handler) submit(ctx context.Context, msg Message) error {
	if h.inbox == nil {
		h.logger.Info("contact message", slog.String("email", msg.Email), slog.Int("length", len(msg.Message)))
		return nil
	}
	if err := h.inbox.SubmitContact(ctx, msg); err != nil {
		return fmt.Errorf("site: contact delivery: %w", err)
	}
	return nil
}

func (h *Handler) install(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Render(w, r, http.StatusOK, "pages/install.html", view.TemplateData{Title: "install.title"}); err != nil {
		h.logger.Error("render install", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderHome(w http.ResponseWriter, r *http.Request, status int, data homeData) {
	if err := h.templates.Render(w, r, status, "pages/home.html", view.TemplateData{Title: "hero.title", Data: data}); err != nil {
		h.logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
