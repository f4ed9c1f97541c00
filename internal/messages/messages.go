// Package messages resolves localized, user-facing OAuth2 error messages
package messages

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultLocale is used when a requested locale has no entry
const DefaultLocale = "en"

const (
	defaultKey      = "default"
	genericFallback = "An unexpected error occurred. Please try again."
)

//go:embed messages.toml
var defaultCatalog []byte

// Localizer returns the user-facing message for a category and code
type Localizer interface {
	Message(category, code, locale string) string
}

// Catalog maps locale -> category -> code -> message
type Catalog struct {
	entries  map[string]map[string]map[string]string
	fallback string
}

// Default returns the embedded catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		// the embedded file is part of the build
		panic(fmt.Sprintf("parsing embedded messages: %v", err))
	}
	return c
}

// Parse decodes a TOML catalog
func Parse(data []byte) (*Catalog, error) {
	var entries map[string]map[string]map[string]string
	if err := toml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &Catalog{entries: entries, fallback: DefaultLocale}, nil
}

// Load reads a TOML catalog from path and merges it over the embedded one
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	base := Default()
	base.merge(override)
	return base, nil
}

func (c *Catalog) merge(other *Catalog) {
	for locale, categories := range other.entries {
		if c.entries[locale] == nil {
			c.entries[locale] = make(map[string]map[string]string)
		}
		for category, codes := range categories {
			if c.entries[locale][category] == nil {
				c.entries[locale][category] = make(map[string]string)
			}
			for code, msg := range codes {
				c.entries[locale][category][code] = msg
			}
		}
	}
}

// Message resolves code within category for locale, falling back to the
// category default and then to the default locale
func (c *Catalog) Message(category, code, locale string) string {
	for _, loc := range c.candidates(locale) {
		codes := c.entries[loc][category]
		if msg, ok := codes[code]; ok {
			return msg
		}
		if msg, ok := codes[defaultKey]; ok {
			return msg
		}
	}
	return genericFallback
}

// Locales lists the locales the catalog has entries for
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.entries))
	for loc := range c.entries {
		out = append(out, loc)
	}
	return out
}

// candidates yields "it-IT" -> "it-IT", "it", fallback
func (c *Catalog) candidates(locale string) []string {
	locale = strings.ToLower(strings.ReplaceAll(locale, "_", "-"))
	var out []string
	if locale != "" {
		out = append(out, locale)
		if base, _, found := strings.Cut(locale, "-"); found {
			out = append(out, base)
		}
	}
	return append(out, c.fallback)
}
