// Package locale holds the translated user-facing messages.
package locale

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Message IDs.
const (
	MsgRecognized       = "recognized"
	MsgAlreadyAttended  = "already_attended_suffix"
	MsgNoFaceDetected   = "no_face_detected"
	MsgNoConfidentFace  = "no_confident_face"
	MsgNoFaceInVideo    = "no_face_in_video"
	MsgVideoOpenFailed  = "video_open_failed"
	MsgInvalidImage     = "invalid_image"
	MsgFaceRegistered   = "face_registered"
)

//go:embed locales/*.json
var localeFS embed.FS

// Catalog resolves message IDs for the embedded languages.
type Catalog struct {
	bundle     *i18n.Bundle
	tags       []language.Tag
	matcher    language.Matcher
	localizers map[string]*i18n.Localizer
	fallback   string
}

// New loads the embedded message files. defaultLang must be one of them.
func New(defaultLang string) (*Catalog, error) {
	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(def)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales: %w", err)
	}
	for _, e := range entries {
		if _, err := bundle.LoadMessageFileFS(localeFS, path.Join("locales", e.Name())); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", e.Name(), err)
		}
	}

	// default first so the matcher falls back to it
	tags := []language.Tag{def}
	for _, t := range bundle.LanguageTags() {
		if t != def {
			tags = append(tags, t)
		}
	}
	c := &Catalog{
		bundle:     bundle,
		tags:       tags,
		matcher:    language.NewMatcher(tags),
		localizers: make(map[string]*i18n.Localizer, len(tags)),
		fallback:   def.String(),
	}
	for _, t := range tags {
		c.localizers[t.String()] = i18n.NewLocalizer(bundle, t.String())
	}
	if _, err := c.localizers[c.fallback].Localize(&i18n.LocalizeConfig{MessageID: MsgNoFaceDetected}); err != nil {
		return nil, fmt.Errorf("no messages for default language %q: %w", defaultLang, err)
	}
	return c, nil
}

// Languages returns the supported language codes, default first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tags))
	for i, t := range c.tags {
		out[i] = t.String()
	}
	return out
}

// Default returns the default language code.
func (c *Catalog) Default() string {
	return c.fallback
}

// Supports reports whether lang is one of the catalog languages.
func (c *Catalog) Supports(lang string) bool {
	_, ok := c.localizers[lang]
	return ok
}

// Match picks the best supported language for the given preferences. Each
// preference may be a code or an Accept-Language header value.
func (c *Catalog) Match(prefs ...string) string {
	_, idx := language.MatchStrings(c.matcher, prefs...)
	return c.tags[idx].String()
}

// Localize renders id in lang. count selects the plural form when non-nil.
// Unknown IDs render as the ID itself.
func (c *Catalog) Localize(lang, id string, data map[string]any, count any) string {
	loc, ok := c.localizers[lang]
	if !ok {
		loc = c.localizers[c.fallback]
	}
	msg, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
		PluralCount:  count,
	})
	if err != nil {
		log.Debugf("Missing translation %s/%s: %v", lang, id, err)
		return id
	}
	return msg
}
