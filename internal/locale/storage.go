package locale

import (
	"net/http"
	"sync"
	"time"
)

// Storage is the durable per-client key-value store the language choice is
// persisted in.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Document receives the direction and language attributes of the rendered
// root element.
type Document interface {
	SetDir(dir string)
	SetLang(lang string)
}

// MemoryStorage keeps values in process memory. It is safe for concurrent use.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get implements Storage.
func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set implements Storage.
func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// cookieMaxAge keeps the language cookie for a year.
const cookieMaxAge = 365 * 24 * time.Hour

// CookieStorage persists values as cookies on the browser. Reads come from
// the incoming request; writes are emitted on the response and also
// remembered so later reads in the same request observe them.
type CookieStorage struct {
	r       *http.Request
	w       http.ResponseWriter
	secure  bool
	mu      sync.Mutex
	pending map[string]string
}

// NewCookieStorage binds a CookieStorage to one request/response pair.
func NewCookieStorage(w http.ResponseWriter, r *http.Request, secure bool) *CookieStorage {
	return &CookieStorage{r: r, w: w, secure: secure, pending: make(map[string]string)}
}

// Get implements Storage.
func (c *CookieStorage) Get(key string) (string, bool) {
	c.mu.Lock()
	v, ok := c.pending[key]
	c.mu.Unlock()
	if ok {
		return v, true
	}
	if c.r == nil {
		return "", false
	}
	cookie, err := c.r.Cookie(key)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// Set implements Storage.
func (c *CookieStorage) Set(key, value string) error {
	c.mu.Lock()
	c.pending[key] = value
	c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// DocumentAttrs records the attributes rendered on the <html> element.
type DocumentAttrs struct {
	mu   sync.RWMutex
	dir  string
	lang string
}

// SetDir implements Document.
func (d *DocumentAttrs) SetDir(dir string) {
	d.mu.Lock()
	d.dir = dir
	d.mu.Unlock()
}

// SetLang implements Document.
func (d *DocumentAttrs) SetLang(lang string) {
	d.mu.Lock()
	d.lang = lang
	d.mu.Unlock()
}

// Dir returns the last direction written.
func (d *DocumentAttrs) Dir() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dir
}

// Lang returns the last language tag written.
func (d *DocumentAttrs) Lang() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lang
}
