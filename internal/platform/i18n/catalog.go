// Package i18n holds the locale-keyed message and label tables used by the
// intake form. Callers pass an explicit locale on every lookup; there is no
// process-wide "current language".
package i18n

import (
	_ "embed"
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var embeddedMessages []byte

// Locale is one language's table.
type Locale struct {
	Name     string            `yaml:"name"`
	Messages map[string]string `yaml:"messages"`
	Labels   map[string]string `yaml:"labels"`
}

type catalogFile struct {
	Default string            `yaml:"default"`
	Locales map[string]Locale `yaml:"locales"`
}

// Catalog resolves messages and labels by locale code.
type Catalog struct {
	defaultLocale string
	locales       map[string]Locale
	codes         []string
	matcher       language.Matcher
}

// Load parses a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Locales) == 0 {
		return nil, fmt.Errorf("catalog defines no locales")
	}
	if _, ok := f.Locales[f.Default]; !ok {
		return nil, fmt.Errorf("default locale %q is not defined", f.Default)
	}

	// The matcher falls back to its first tag, so the default goes first.
	codes := []string{f.Default}
	var rest []string
	for code := range f.Locales {
		if code != f.Default {
			rest = append(rest, code)
		}
	}
	sort.Strings(rest)
	codes = append(codes, rest...)

	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("invalid locale code %q: %w", code, err)
		}
		tags = append(tags, tag)
	}

	return &Catalog{
		defaultLocale: f.Default,
		locales:       f.Locales,
		codes:         codes,
		matcher:       language.NewMatcher(tags),
	}, nil
}

// Default returns the embedded English/Spanish catalog.
func Default() (*Catalog, error) {
	return Load(embeddedMessages)
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// WithDefault returns a copy of the catalog whose fallback locale is locale.
func (c *Catalog) WithDefault(locale string) (*Catalog, error) {
	if !c.Has(locale) {
		return nil, fmt.Errorf("locale %q is not supported", locale)
	}
	if locale == c.defaultLocale {
		return c, nil
	}
	codes := []string{locale}
	tags := []language.Tag{language.Make(locale)}
	for _, code := range c.codes {
		if code != locale {
			codes = append(codes, code)
			tags = append(tags, language.Make(code))
		}
	}
	return &Catalog{
		defaultLocale: locale,
		locales:       c.locales,
		codes:         codes,
		matcher:       language.NewMatcher(tags),
	}, nil
}

// DefaultLocale is the fallback locale code.
func (c *Catalog) DefaultLocale() string {
	return c.defaultLocale
}

// Supported lists locale codes, default first.
func (c *Catalog) Supported() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}

// Has reports whether locale is defined exactly.
func (c *Catalog) Has(locale string) bool {
	_, ok := c.locales[locale]
	return ok
}

// Match picks the best supported locale for the given preferences. Each
// preference may be a bare tag ("es") or an Accept-Language header value
// ("es-MX,es;q=0.9,en;q=0.5"). Preferences are tried in order and the first
// one with any match wins; otherwise the default locale is returned.
func (c *Catalog) Match(prefs ...string) string {
	for _, pref := range prefs {
		if pref == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(pref)
		if err != nil || len(tags) == 0 {
			continue
		}
		_, idx, conf := c.matcher.Match(tags...)
		if conf == language.No {
			continue
		}
		return c.codes[idx]
	}
	return c.defaultLocale
}

// Name returns the display name of a locale.
func (c *Catalog) Name(locale string) string {
	return c.resolve(locale).Name
}

// Message returns the message for key, falling back to the default locale
// and then to the key itself.
func (c *Catalog) Message(locale, key string) string {
	if msg, ok := c.locales[locale].Messages[key]; ok {
		return msg
	}
	if msg, ok := c.locales[c.defaultLocale].Messages[key]; ok {
		return msg
	}
	return key
}

// Label returns a form label, with the same fallback chain as Message.
func (c *Catalog) Label(locale, key string) string {
	if l, ok := c.locales[locale].Labels[key]; ok {
		return l
	}
	if l, ok := c.locales[c.defaultLocale].Labels[key]; ok {
		return l
	}
	return key
}

// Messages returns a copy of every message for locale, default-locale
// messages filling any gaps.
func (c *Catalog) Messages(locale string) map[string]string {
	return merged(c.locales[c.defaultLocale].Messages, c.locales[locale].Messages)
}

// Labels returns a copy of every label for locale, default-locale labels
// filling any gaps.
func (c *Catalog) Labels(locale string) map[string]string {
	return merged(c.locales[c.defaultLocale].Labels, c.locales[locale].Labels)
}

func merged(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (c *Catalog) resolve(locale string) Locale {
	if l, ok := c.locales[locale]; ok {
		return l
	}
	return c.locales[c.defaultLocale]
}
