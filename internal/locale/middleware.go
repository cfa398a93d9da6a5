package locale

import (
	"context"
	"net/http"
)

type storeContextKey struct{}

// ContextWithStore stores the locale store in ctx.
func ContextWithStore(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, store)
}

// FromContext extracts the locale store from ctx. It returns nil when the
// middleware has not run.
func FromContext(ctx context.Context) *Store {
	store, _ := ctx.Value(storeContextKey{}).(*Store)
	return store
}

// responseDocument mirrors the document language onto the
// Content-Language response header.
type responseDocument struct {
	DocumentAttrs
	header http.Header
}

func (d *responseDocument) SetLang(lang string) {
	d.DocumentAttrs.SetLang(lang)
	d.header.Set("Content-Language", lang)
}

// Middleware builds a per-request Store hydrated from the language cookie.
func Middleware(catalog *Catalog, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storage := NewCookieStorage(w, r, secureCookies)
			doc := &responseDocument{header: w.Header()}
			store := NewStore(catalog, storage, doc)
			next.ServeHTTP(w, r.WithContext(ContextWithStore(r.Context(), store)))
		})
	}
}
