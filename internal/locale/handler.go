package locale

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the language switch endpoint.
type Handler struct {
	logger *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// MountRoutes registers the language routes. The switch is POST only so
// it stays behind the CSRF check.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.setLanguage)
}

func (h *Handler) setLanguage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	store := FromContext(r.Context())
	if store == nil {
		h.logger.Error("locale store missing from context")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var target Language
	if r.PostFormValue("toggle") != "" {
		target = store.Language().Other()
	} else {
		lang, err := ParseLanguage(strings.TrimSpace(r.PostFormValue("lang")))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		target = lang
	}

	if err := store.SetLanguage(target); err != nil {
		h.logger.Warn("set language", slog.Any("error", err))
	}
	http.Redirect(w, r, SafeRedirect(r.PostFormValue("next")), http.StatusSeeOther)
}

// SafeRedirect returns next when it is a same-origin absolute path and "/"
// otherwise.
func SafeRedirect(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
