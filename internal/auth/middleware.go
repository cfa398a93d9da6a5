package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// ClientFactory returns the identity provider client bound to the browser
// making r.
type ClientFactory interface {
	Client(w http.ResponseWriter, r *http.Request) (identity.Provider, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(w http.ResponseWriter, r *http.Request) (identity.Provider, error)

// Client implements ClientFactory.
func (f ClientFactoryFunc) Client(w http.ResponseWriter, r *http.Request) (identity.Provider, error) {
	return f(w, r)
}

type storeContextKey struct{}

// ContextWithStore stores the session store in ctx.
func ContextWithStore(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, store)
}

// FromContext extracts the session store from ctx.
func FromContext(ctx context.Context) *Store {
	store, _ := ctx.Value(storeContextKey{}).(*Store)
	return store
}

// Middleware builds a Store for every request and closes it when the
// request completes.
func Middleware(factory ClientFactory, resolver RoleResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := factory.Client(w, r)
			if err != nil {
				logger.Error("identity client", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			store := NewStore(r.Context(), client, resolver, logger)
			defer store.Close()
			next.ServeHTTP(w, r.WithContext(ContextWithStore(r.Context(), store)))
		})
	}
}

// Nav derives the navbar state from the request's store, waiting up to
// wait for the first resolution.
func Nav(r *http.Request, wait time.Duration) view.NavState {
	store := FromContext(r.Context())
	if store == nil {
		return view.NavState{Resolving: true}
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	snap, ok := store.WaitSettled(ctx)
	if !ok {
		return view.NavState{Resolving: true}
	}
	nav := view.NavState{SignedIn: snap.SignedIn(), IsAdmin: snap.IsAdmin()}
	if snap.Identity != nil {
		nav.Label = displayName(*snap.Identity)
	}
	return nav
}

func displayName(u identity.User) string {
	if name := u.Metadata["full_name"]; name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.Phone
}

// PageDecorator fills the CSRF token, pending flash and navbar state of
// every rendered page.
func PageDecorator(csrf *shared.CSRFManager, wait time.Duration, logger *slog.Logger) view.Decorator {
	if logger == nil {
		logger = slog.Default()
	}
	return func(r *http.Request, data *view.TemplateData) {
		sess := shared.SessionFromContext(r.Context())
		if sess != nil {
			if data.CSRFToken == "" && csrf != nil {
				token, err := csrf.EnsureToken(r.Context(), sess)
				if err != nil {
					logger.Warn("csrf token", slog.Any("error", err))
				}
				data.CSRFToken = token
			}
			if data.Flash == nil {
				data.Flash = sess.PopFlash()
			}
		}
		data.Nav = Nav(r, wait)
	}
}
