// Package webtest assembles the request pipeline used by handler tests:
// Redis cookie sessions on miniredis, the locale store and a session store
// backed by an in-memory identity provider.
package webtest

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/learnexa/learnexa/internal/auth"
	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/identity/identitytest"
	"github.com/learnexa/learnexa/internal/locale"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// SettleWait bounds how long pages wait for the session store in tests.
const SettleWait = time.Second

// Harness is a router with the site's request-scoped middleware applied.
type Harness struct {
	t        *testing.T
	Router   chi.Router
	Provider *identitytest.Provider
	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Engine   *view.Engine
	Catalog  *locale.Catalog
	Redis    *miniredis.Miniredis
}

// New builds a Harness whose session store resolves roles with resolver.
func New(t *testing.T, resolver auth.RoleResolver) *Harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "learnexa_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	engine, err := view.NewEngine(view.WithDecorator(auth.PageDecorator(csrf, SettleWait, nil)))
	require.NoError(t, err)
	catalog := locale.MustLoadEmbedded()
	provider := identitytest.New()

	r := chi.NewRouter()
	r.Use(sessionMiddleware(t, sessions))
	r.Use(locale.Middleware(catalog, false))
	r.Use(auth.Middleware(auth.ClientFactoryFunc(func(w http.ResponseWriter, r *http.Request) (identity.Provider, error) {
		return provider, nil
	}), resolver, nil))

	return &Harness{
		t:        t,
		Router:   r,
		Provider: provider,
		Sessions: sessions,
		CSRF:     csrf,
		Engine:   engine,
		Catalog:  catalog,
		Redis:    mr,
	}
}

// SignIn registers an account and signs the shared provider into it.
func (h *Harness) SignIn(email string) identity.User {
	h.t.Helper()
	user := h.Provider.AddUser(email, "password123")
	h.Provider.Emit(identity.Event{Kind: identity.EventSignedIn, Session: &identity.Session{
		AccessToken: "token",
		User:        user,
		ExpiresAt:   time.Now().Add(time.Hour),
	}})
	return user
}

// Text returns the HTML-escaped Arabic translation of key, as rendered on
// a page without a language cookie.
func (h *Harness) Text(key string) string {
	return template.HTMLEscapeString(h.Catalog.Translate(locale.Arabic, key))
}

// Browser returns a cookie-keeping client for the harness router.
func (h *Harness) Browser() *Browser {
	return NewBrowser(h.Router)
}

// NewBrowser returns a cookie-keeping client for handler.
func NewBrowser(handler http.Handler) *Browser {
	return &Browser{handler: handler, cookies: make(map[string]*http.Cookie)}
}

// Browser replays cookies between requests.
type Browser struct {
	handler http.Handler
	cookies map[string]*http.Cookie
}

// Do serves req with the stored cookies attached.
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	b.handler.ServeHTTP(res, req)
	for _, c := range res.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return res
}

// Get issues a GET request.
func (b *Browser) Get(path string) *httptest.ResponseRecorder {
	return b.Do(httptest.NewRequest(http.MethodGet, path, nil))
}

// Post issues a form POST request.
func (b *Browser) Post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.Do(req)
}

type commitWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (w *commitWriter) WriteHeader(code int) {
	if !w.done {
		w.done = true
		w.commit()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Flush() {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func sessionMiddleware(t *testing.T, sessions *shared.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(r.Context(), sess)
			cw := &commitWriter{ResponseWriter: w, commit: func() {
				require.NoError(t, sessions.Commit(ctx, w, r, sess))
			}}
			next.ServeHTTP(cw, r.WithContext(ctx))
		})
	}
}
