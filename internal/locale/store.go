package locale

import (
	"fmt"
	"sync"
)

// Store is the single authority for one client's language selection.
// Direction is never stored; it is always derived from the language.
type Store struct {
	catalog *Catalog
	storage Storage
	doc     Document

	// setMu serializes SetLanguage so the language, the persisted value
	// and the document attributes always move together.
	setMu sync.Mutex

	mu     sync.RWMutex
	lang   Language
	subs   map[int]func(Language)
	nextID int
}

// NewStore creates a store at the default language and hydrates it once
// from storage. Unknown or corrupt persisted values are ignored.
func NewStore(catalog *Catalog, storage Storage, doc Document) *Store {
	s := &Store{
		catalog: catalog,
		storage: storage,
		doc:     doc,
		lang:    Default,
		subs:    make(map[int]func(Language)),
	}
	if storage != nil {
		if raw, ok := storage.Get(StorageKey); ok {
			if lang, err := ParseLanguage(raw); err == nil {
				s.lang = lang
			}
		}
	}
	s.applyDocument(s.lang)
	return s
}

// Language returns the active language.
func (s *Store) Language() Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// SetLanguage switches the active language, persists it and updates the
// document attributes. Setting the current language again is a no-op for
// subscribers but still rewrites storage and the document. Subscribers
// run before SetLanguage returns and must not call it themselves.
func (s *Store) SetLanguage(lang Language) error {
	if !lang.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, string(lang))
	}

	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	changed := s.lang != lang
	s.lang = lang
	subs := make([]func(Language), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	var persistErr error
	if s.storage != nil {
		if err := s.storage.Set(StorageKey, string(lang)); err != nil {
			persistErr = fmt.Errorf("locale: persist language: %w", err)
		}
	}
	s.applyDocument(lang)

	if changed {
		for _, fn := range subs {
			fn(lang)
		}
	}
	return persistErr
}

// T translates key in the active language, returning key itself when the
// active table has no entry for it.
func (s *Store) T(key string) string {
	return s.catalog.Translate(s.Language(), key)
}

// IsRTL reports whether the active language is Arabic.
func (s *Store) IsRTL() bool {
	return s.Language() == Arabic
}

// Dir returns the derived text direction.
func (s *Store) Dir() string {
	return s.Language().Dir()
}

// Subscribe registers fn to be called after each language change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Language)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) applyDocument(lang Language) {
	if s.doc == nil {
		return
	}
	s.doc.SetDir(lang.Dir())
	s.doc.SetLang(lang.Tag().String())
}
