package locale

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embeddedCatalogFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog is the static translation table keyed by language and message key.
type Catalog struct {
	messages map[Language]map[string]string
}

// LoadEmbedded parses the catalogs compiled into the binary.
func LoadEmbedded() (*Catalog, error) {
	return LoadFromFS(embeddedCatalogFS)
}

// MustLoadEmbedded is LoadEmbedded for package-level wiring and tests.
func MustLoadEmbedded() *Catalog {
	catalog, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	return catalog
}

// LoadFromFS reads every locales/<lang>.yaml file from catalogFS.
func LoadFromFS(catalogFS fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(catalogFS, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("locale: glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("locale: no catalog files found")
	}
	sort.Strings(paths)

	catalog := &Catalog{messages: make(map[Language]map[string]string, len(paths))}
	for _, p := range paths {
		data, err := fs.ReadFile(catalogFS, p)
		if err != nil {
			return nil, fmt.Errorf("locale: read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("locale: parse catalog %s: %w", p, err)
		}
		if err := catalog.add(p, file); err != nil {
			return nil, err
		}
	}
	for _, lang := range Languages() {
		if _, ok := catalog.messages[lang]; !ok {
			return nil, fmt.Errorf("locale: catalog for %q is missing", lang)
		}
	}
	return catalog, nil
}

// NewCatalog builds a catalog from in-memory tables.
func NewCatalog(tables map[Language]map[string]string) *Catalog {
	catalog := &Catalog{messages: make(map[Language]map[string]string, len(tables))}
	for lang, table := range tables {
		copied := make(map[string]string, len(table))
		for k, v := range table {
			copied[k] = v
		}
		catalog.messages[lang] = copied
	}
	return catalog
}

func (c *Catalog) add(p string, file catalogFile) error {
	name := strings.TrimSuffix(path.Base(p), path.Ext(p))
	lang, err := ParseLanguage(file.Locale)
	if err != nil {
		return fmt.Errorf("locale: catalog %s: %w", p, err)
	}
	if string(lang) != name {
		return fmt.Errorf("locale: catalog %s: locale %q must match filename %q", p, lang, name)
	}
	if _, exists := c.messages[lang]; exists {
		return fmt.Errorf("locale: catalog %s: locale %q already loaded", p, lang)
	}
	table := make(map[string]string, len(file.Messages))
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("locale: catalog %s: message key cannot be blank", p)
		}
		table[key] = value
	}
	c.messages[lang] = table
	return nil
}

// Lookup returns the message for key in lang only. It never consults the
// other language.
func (c *Catalog) Lookup(lang Language, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	table, ok := c.messages[lang]
	if !ok {
		return "", false
	}
	value, ok := table[key]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Translate applies the fallback-to-key rule: a missing key renders as
// the key itself.
func (c *Catalog) Translate(lang Language, key string) string {
	if value, ok := c.Lookup(lang, key); ok {
		return value
	}
	return key
}

// Keys returns the sorted keys defined for lang.
func (c *Catalog) Keys(lang Language) []string {
	if c == nil {
		return nil
	}
	table := c.messages[lang]
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
