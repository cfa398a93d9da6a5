package locale

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct{ MemoryStorage }

func (f *failingStorage) Set(key, value string) error { return errors.New("quota exceeded") }

// slowStorage stalls the first write of English so a second switch can
// start while it is in flight.
type slowStorage struct {
	*MemoryStorage
	entered chan struct{}
	once    sync.Once
}

func (s *slowStorage) Set(key, value string) error {
	if value == string(English) {
		s.once.Do(func() { close(s.entered) })
		time.Sleep(20 * time.Millisecond)
	}
	return s.MemoryStorage.Set(key, value)
}

func TestConcurrentSetLanguageKeepsStateConsistent(t *testing.T) {
	storage := &slowStorage{MemoryStorage: NewMemoryStorage(), entered: make(chan struct{})}
	doc := &DocumentAttrs{}
	store := NewStore(MustLoadEmbedded(), storage, doc)

	done := make(chan error, 1)
	go func() { done <- store.SetLanguage(English) }()
	<-storage.entered
	require.NoError(t, store.SetLanguage(Arabic))
	require.NoError(t, <-done)

	lang := store.Language()
	raw, ok := storage.Get(StorageKey)
	require.True(t, ok)
	assert.Equal(t, string(lang), raw)
	assert.Equal(t, lang.Dir(), doc.Dir())
	assert.Equal(t, lang.Tag().String(), doc.Lang())
	assert.Equal(t, lang.Dir(), store.Dir())
}

func TestSetLanguageRoundTrip(t *testing.T) {
	catalog := MustLoadEmbedded()
	for _, lang := range Languages() {
		doc := &DocumentAttrs{}
		store := NewStore(catalog, NewMemoryStorage(), doc)
		require.NoError(t, store.SetLanguage(lang))
		assert.Equal(t, lang, store.Language())
		assert.Equal(t, lang == Arabic, store.IsRTL())
		assert.Equal(t, lang.Dir(), doc.Dir())
		assert.Equal(t, lang.Tag().String(), doc.Lang())
	}
}

func TestNewStoreDefaultsToArabic(t *testing.T) {
	doc := &DocumentAttrs{}
	store := NewStore(MustLoadEmbedded(), NewMemoryStorage(), doc)
	assert.Equal(t, Arabic, store.Language())
	assert.Equal(t, DirRTL, doc.Dir())
	assert.Equal(t, "ar", doc.Lang())
}

func TestPersistedLanguageSurvivesReload(t *testing.T) {
	storage := NewMemoryStorage()
	first := NewStore(MustLoadEmbedded(), storage, nil)
	require.NoError(t, first.SetLanguage(English))

	raw, ok := storage.Get(StorageKey)
	require.True(t, ok)
	assert.Equal(t, "en", raw)

	reloaded := NewStore(MustLoadEmbedded(), storage, nil)
	assert.Equal(t, English, reloaded.Language())
	assert.False(t, reloaded.IsRTL())
}

func TestCorruptPersistedValueFallsBackToDefault(t *testing.T) {
	for _, raw := range []string{"fr", "", "EN", "ar-EG", "\x00", " en ", "ar\t"} {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Set(StorageKey, raw))
		var store *Store
		assert.NotPanics(t, func() { store = NewStore(MustLoadEmbedded(), storage, nil) })
		assert.Equal(t, Arabic, store.Language(), "persisted %q", raw)
	}
}

func TestSetLanguageRejectsUnknownValues(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewStore(MustLoadEmbedded(), storage, nil)
	err := store.SetLanguage(Language("fr"))
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Equal(t, Arabic, store.Language())
	_, written := storage.Get(StorageKey)
	assert.False(t, written)
}

func TestSetLanguageIsIdempotent(t *testing.T) {
	doc := &DocumentAttrs{}
	storage := NewMemoryStorage()
	store := NewStore(MustLoadEmbedded(), storage, doc)

	var notified []Language
	cancel := store.Subscribe(func(l Language) { notified = append(notified, l) })
	defer cancel()

	require.NoError(t, store.SetLanguage(English))
	require.NoError(t, store.SetLanguage(English))

	assert.Equal(t, []Language{English}, notified)
	assert.Equal(t, English, store.Language())
	assert.Equal(t, DirLTR, doc.Dir())
	raw, _ := storage.Get(StorageKey)
	assert.Equal(t, "en", raw)
}

func TestSubscribeCancel(t *testing.T) {
	store := NewStore(MustLoadEmbedded(), NewMemoryStorage(), nil)
	calls := 0
	cancel := store.Subscribe(func(Language) { calls++ })
	require.NoError(t, store.SetLanguage(English))
	cancel()
	cancel()
	require.NoError(t, store.SetLanguage(Arabic))
	assert.Equal(t, 1, calls)
}

func TestSetLanguageReportsPersistFailure(t *testing.T) {
	doc := &DocumentAttrs{}
	store := NewStore(MustLoadEmbedded(), &failingStorage{}, doc)
	err := store.SetLanguage(English)
	assert.Error(t, err)
	assert.Equal(t, English, store.Language())
	assert.Equal(t, DirLTR, doc.Dir())
}

func TestTranslateNavHome(t *testing.T) {
	store := NewStore(MustLoadEmbedded(), NewMemoryStorage(), nil)
	require.NoError(t, store.SetLanguage(Arabic))
	assert.Equal(t, "الرئيسية", store.T("nav.home"))
	require.NoError(t, store.SetLanguage(English))
	assert.Equal(t, "Home", store.T("nav.home"))
}

func TestTranslateFallsBackToKey(t *testing.T) {
	catalog := NewCatalog(map[Language]map[string]string{
		Arabic:  {"only.ar": "عربي", "empty": ""},
		English: {"only.en": "English only"},
	})
	store := NewStore(catalog, NewMemoryStorage(), nil)

	assert.Equal(t, "missing.key", store.T("missing.key"))
	assert.Equal(t, "only.en", store.T("only.en"), "must not borrow the English string")
	assert.Equal(t, "empty", store.T("empty"))

	require.NoError(t, store.SetLanguage(English))
	assert.Equal(t, "missing.key", store.T("missing.key"))
	assert.Equal(t, "only.ar", store.T("only.ar"), "must not borrow the Arabic string")
	assert.Equal(t, "English only", store.T("only.en"))
}
