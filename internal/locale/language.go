// Package locale owns the active language of a client, its translation
// lookup and the text direction derived from it.
package locale

import (
	"errors"

	"golang.org/x/text/language"
)

// Language is one of the two supported site languages.
type Language string

const (
	// Arabic is the default language and renders right-to-left.
	Arabic Language = "ar"
	// English renders left-to-right.
	English Language = "en"
)

// Default is used until a valid persisted choice is found.
const Default = Arabic

// StorageKey is the persisted key holding the language choice.
const StorageKey = "learnexa-language"

// Direction values written to the document.
const (
	DirRTL = "rtl"
	DirLTR = "ltr"
)

// ErrUnsupportedLanguage is returned for values outside the closed set.
var ErrUnsupportedLanguage = errors.New("locale: unsupported language")

// Languages lists the supported languages in display order.
func Languages() []Language {
	return []Language{Arabic, English}
}

// ParseLanguage converts raw text into a Language. Only the exact enum
// values are accepted; anything else yields ErrUnsupportedLanguage.
func ParseLanguage(raw string) (Language, error) {
	switch Language(raw) {
	case Arabic:
		return Arabic, nil
	case English:
		return English, nil
	default:
		return "", ErrUnsupportedLanguage
	}
}

// Valid reports whether l is a member of the supported set.
func (l Language) Valid() bool {
	return l == Arabic || l == English
}

// IsRTL reports whether the language is written right-to-left.
func (l Language) IsRTL() bool {
	return l == Arabic
}

// Dir returns the document direction for the language.
func (l Language) Dir() string {
	if l.IsRTL() {
		return DirRTL
	}
	return DirLTR
}

// Tag returns the BCP 47 tag used for the document lang attribute.
func (l Language) Tag() language.Tag {
	if l == English {
		return language.English
	}
	return language.Arabic
}

// Other returns the opposite language, used by the navbar toggle.
func (l Language) Other() Language {
	if l == Arabic {
		return English
	}
	return Arabic
}

func (l Language) String() string {
	return string(l)
}
