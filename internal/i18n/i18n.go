// Package i18n localizes user-facing license messages into English,
// Japanese and Chinese using go-i18n message catalogs embedded in the binary.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Supported lists the languages with a bundled catalog.
var Supported = []language.Tag{language.English, language.Japanese, language.Chinese}

var matcher = language.NewMatcher(Supported)

// Catalog translates message IDs for any supported language.
type Catalog struct {
	bundle *i18n.Bundle
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// Default returns the process-wide catalog built from the embedded locales.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := New()
		if err != nil {
			panic(fmt.Sprintf("i18n: embedded locales are invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// New parses every embedded locale file into a fresh bundle.
func New() (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
	}

	return &Catalog{bundle: bundle}, nil
}

// Normalize maps a user supplied language (a BCP 47 tag or an
// Accept-Language value) to the closest supported base language: "en",
// "ja" or "zh".
func Normalize(lang string) string {
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, _ := matcher.Match(tags...)
	base, _ := Supported[idx].Base()
	return base.String()
}

// T translates messageID into lang. Unknown IDs come back unchanged.
func (c *Catalog) T(lang, messageID string, data map[string]interface{}) string {
	localizer := i18n.NewLocalizer(c.bundle, Normalize(lang), "en")
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// T translates with the default catalog.
func T(lang, messageID string) string {
	return Default().T(lang, messageID, nil)
}
