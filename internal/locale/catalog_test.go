package locale

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalogsShareKeys(t *testing.T) {
	catalog, err := LoadEmbedded()
	require.NoError(t, err)

	ar := catalog.Keys(Arabic)
	en := catalog.Keys(English)
	require.NotEmpty(t, ar)
	assert.Equal(t, ar, en, "ar and en catalogs should define the same keys")
}

func TestLoadFromFSRejectsMismatchedLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/ar.yaml": {Data: []byte("locale: en\nmessages:\n  a: b\n")},
		"locales/en.yaml": {Data: []byte("locale: en\nmessages:\n  a: b\n")},
	}
	_, err := LoadFromFS(fsys)
	assert.Error(t, err)
}

func TestLoadFromFSRequiresBothLanguages(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte("locale: en\nmessages:\n  a: b\n")},
	}
	_, err := LoadFromFS(fsys)
	assert.Error(t, err)
}

func TestParseLanguage(t *testing.T) {
	lang, err := ParseLanguage("en")
	require.NoError(t, err)
	assert.Equal(t, English, lang)

	for _, raw := range []string{"fr", " en ", "ar\n", "En"} {
		_, err = ParseLanguage(raw)
		assert.ErrorIs(t, err, ErrUnsupportedLanguage, "raw %q", raw)
	}
	assert.Equal(t, DirRTL, Arabic.Dir())
	assert.Equal(t, DirLTR, English.Dir())
	assert.Equal(t, English, Arabic.Other())
}
