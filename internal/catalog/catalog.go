// Package catalog holds the static ingredient and kitchenware tables, the
// localized search terms for every tag and the per-language cooking keywords.
// The tables are embedded, loaded once and read-only afterwards.
package catalog

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"golang.org/x/text/language"

	"homecook/videosearch/internal/domain"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const tablesFile = "catalog.yaml"

type tables struct {
	DefaultLanguage          string   `yaml:"default_language"`
	DefaultKeywords          string   `yaml:"default_keywords"`
	DefaultRegion            string   `yaml:"default_region"`
	DefaultRelevanceLanguage string   `yaml:"default_relevance_language"`
	Vegetables               []string `yaml:"vegetables"`
	Meats                    []string `yaml:"meats"`
	Staples                  []string `yaml:"staples"`
	Tools                    []string `yaml:"tools"`
	GachaPool                []string `yaml:"gacha_pool"`
}

type locale struct {
	Language          string            `yaml:"language"`
	Region            string            `yaml:"region"`
	RelevanceLanguage string            `yaml:"relevance_language"`
	CookingKeywords   string            `yaml:"cooking_keywords"`
	Terms             map[string]string `yaml:"terms"`
}

type Catalog struct {
	tables    tables
	classes   map[string]domain.TagClass
	tools     map[string]struct{}
	locales   map[string]locale
	supported []string
	matcher   language.Matcher
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog, loading it on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load()
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: load embedded tables: %v", defaultErr))
	}
	return defaultCatalog
}

func Load() (*Catalog, error) {
	raw, err := localeFS.ReadFile(path.Join("locales", tablesFile))
	if err != nil {
		return nil, err
	}
	var t tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", tablesFile, err)
	}

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	locales := make(map[string]locale, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == tablesFile || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, err
		}
		var loc locale
		if err := yaml.Unmarshal(data, &loc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if loc.Language == "" {
			loc.Language = strings.TrimSuffix(name, ".yaml")
		}
		locales[loc.Language] = loc
	}
	return newCatalog(t, locales)
}

func newCatalog(t tables, locales map[string]locale) (*Catalog, error) {
	if t.DefaultLanguage == "" {
		t.DefaultLanguage = "en"
	}
	if _, ok := locales[t.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q has no locale table", t.DefaultLanguage)
	}

	classes := make(map[string]domain.TagClass, len(t.Vegetables)+len(t.Meats))
	for _, key := range t.Vegetables {
		classes[key] = domain.TagClassVegetable
	}
	for _, key := range t.Meats {
		if classes[key] == domain.TagClassVegetable {
			return nil, fmt.Errorf("tag %q is listed as both vegetable and meat", key)
		}
		classes[key] = domain.TagClassMeat
	}
	tools := make(map[string]struct{}, len(t.Tools))
	for _, key := range t.Tools {
		tools[key] = struct{}{}
	}

	// The default language goes first so that the matcher falls back to it.
	supported := make([]string, 0, len(locales))
	supported = append(supported, t.DefaultLanguage)
	for code := range locales {
		if code != t.DefaultLanguage {
			supported = append(supported, code)
		}
	}
	sort.Strings(supported[1:])
	langTags := make([]language.Tag, 0, len(supported))
	for _, code := range supported {
		langTags = append(langTags, language.Make(code))
	}

	return &Catalog{
		tables:    t,
		classes:   classes,
		tools:     tools,
		locales:   locales,
		supported: supported,
		matcher:   language.NewMatcher(langTags),
	}, nil
}

func (c *Catalog) Classify(tag domain.Tag) domain.TagClass {
	if class, ok := c.classes[tag]; ok {
		return class
	}
	return domain.TagClassOther
}

func (c *Catalog) IsTool(tag domain.Tag) bool {
	_, ok := c.tools[tag]
	return ok
}

// ResolveLanguage maps a client language code onto a supported locale. The
// second return value is false when nothing matched and the default applies.
func (c *Catalog) ResolveLanguage(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return c.tables.DefaultLanguage, false
	}
	if _, ok := c.locales[value]; ok {
		return value, true
	}
	tag, err := language.Parse(value)
	if err != nil {
		return c.tables.DefaultLanguage, false
	}
	_, index, confidence := c.matcher.Match(tag)
	if confidence == language.No || index < 0 || index >= len(c.supported) {
		return c.tables.DefaultLanguage, false
	}
	return c.supported[index], true
}

// Localize returns the search term for tag, falling back to the default
// language and then to the raw key.
func (c *Catalog) Localize(tag domain.Tag, lang string) string {
	code, _ := c.ResolveLanguage(lang)
	if term := strings.TrimSpace(c.locales[code].Terms[tag]); term != "" {
		return term
	}
	if term := strings.TrimSpace(c.locales[c.tables.DefaultLanguage].Terms[tag]); term != "" {
		return term
	}
	return tag
}

// CookingKeywords returns the fixed phrase appended to every query. Unknown
// languages get the generic phrase.
func (c *Catalog) CookingKeywords(lang string) string {
	code, ok := c.ResolveLanguage(lang)
	if !ok {
		return c.tables.DefaultKeywords
	}
	if phrase := strings.TrimSpace(c.locales[code].CookingKeywords); phrase != "" {
		return phrase
	}
	return c.tables.DefaultKeywords
}

// Region returns the provider region and relevance language for lang.
func (c *Catalog) Region(lang string) (region string, relevanceLanguage string) {
	code, ok := c.ResolveLanguage(lang)
	if ok {
		loc := c.locales[code]
		if loc.Region != "" && loc.RelevanceLanguage != "" {
			return loc.Region, loc.RelevanceLanguage
		}
	}
	return c.tables.DefaultRegion, c.tables.DefaultRelevanceLanguage
}

func (c *Catalog) GachaPool() []domain.Tag {
	return append([]domain.Tag(nil), c.tables.GachaPool...)
}

func (c *Catalog) Languages() []string {
	return append([]string(nil), c.supported...)
}

// Describe lists every catalog tag with its label in lang.
func (c *Catalog) Describe(lang string) domain.Catalog {
	code, _ := c.ResolveLanguage(lang)
	build := func(keys []string, class domain.TagClass) []domain.CatalogEntry {
		out := make([]domain.CatalogEntry, 0, len(keys))
		for _, key := range keys {
			out = append(out, domain.CatalogEntry{Key: key, Label: c.Localize(key, code), Class: class})
		}
		return out
	}
	return domain.Catalog{
		Language:   code,
		Vegetables: build(c.tables.Vegetables, domain.TagClassVegetable),
		Meats:      build(c.tables.Meats, domain.TagClassMeat),
		Staples:    build(c.tables.Staples, domain.TagClassOther),
		Tools:      build(c.tables.Tools, domain.TagClassOther),
	}
}
