package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/learnexa/learnexa/internal/admin"
	"github.com/learnexa/learnexa/internal/auth"
	"github.com/learnexa/learnexa/internal/guard"
	"github.com/learnexa/learnexa/internal/locale"
	"github.com/learnexa/learnexa/internal/observability"
	"github.com/learnexa/learnexa/internal/profiles"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/site"
	"github.com/learnexa/learnexa/jobs"
	"github.com/learnexa/learnexa/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Catalog        *locale.Catalog
	ClientFactory  auth.ClientFactory
	Roles          auth.RoleResolver
	Metrics        *observability.Metrics

	SiteHandler     *site.Handler
	LocaleHandler   *locale.Handler
	AuthHandler     *auth.Handler
	ProfilesHandler *profiles.Handler
	AdminHandler    *admin.Handler
	Guard           *guard.Guard
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Learnexa defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Catalog:        params.Catalog,
		ClientFactory:  params.ClientFactory,
		Roles:          params.Roles,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// The guard stream is long-lived and stays outside the request timeout.
	if params.Guard != nil {
		r.Get("/guard/events", params.Guard.Events)
	}

	timeout := 30 * time.Second
	if params.Config != nil && params.Config.AppRequestTimeout > 0 {
		timeout = params.Config.AppRequestTimeout
	}
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))

		if params.SiteHandler != nil {
			params.SiteHandler.MountRoutes(r)
		}
		if params.LocaleHandler != nil {
			r.Route("/language", params.LocaleHandler.MountRoutes)
		}
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.ProfilesHandler != nil && params.Guard != nil {
			r.With(params.Guard.Require(guard.ProfileRule)).Route("/profile", params.ProfilesHandler.MountRoutes)
		}
		if params.AdminHandler != nil && params.Guard != nil {
			r.With(params.Guard.Require(guard.AdminRule)).Route("/admin", params.AdminHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
