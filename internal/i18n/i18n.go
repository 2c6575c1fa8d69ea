package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed all:locales
var localeFS embed.FS

// Manager holds the translation bundle and picks a language per request.
type Manager struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	supported       []language.Tag
	matcher         language.Matcher
	log             *zap.Logger
}

func NewManager(defaultLang string, log *zap.Logger) (*Manager, error) {
	defaultTag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language tag %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read embedded locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || path.Ext(f.Name()) != ".toml" {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+f.Name()); err != nil {
			return nil, fmt.Errorf("load %s: %w", f.Name(), err)
		}
	}

	// The default goes first so the matcher falls back to it.
	tags := []language.Tag{defaultTag}
	for _, t := range bundle.LanguageTags() {
		if t != defaultTag {
			tags = append(tags, t)
		}
	}

	m := &Manager{
		bundle:          bundle,
		defaultLanguage: defaultTag,
		supported:       tags,
		matcher:         language.NewMatcher(tags),
		log:             log.Named("i18n"),
	}
	m.log.Info("translations loaded", zap.String("default_language", defaultTag.String()), zap.Int("languages", len(tags)))
	return m, nil
}

// Negotiate picks the best supported language for an Accept-Language header.
func (m *Manager) Negotiate(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return m.defaultLanguage.String()
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return m.defaultLanguage.String()
	}
	_, idx, conf := m.matcher.Match(prefs...)
	if conf == language.No {
		return m.defaultLanguage.String()
	}
	return m.supported[idx].String()
}

// Localize renders messageID in lang. Unknown ids come back as the id itself.
func (m *Manager) Localize(lang, messageID string, data map[string]any) string {
	localizer := i18n.NewLocalizer(m.bundle, lang, m.defaultLanguage.String())
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
	if err != nil {
		m.log.Debug("missing translation", zap.String("lang", lang), zap.String("id", messageID), zap.Error(err))
		return messageID
	}
	return msg
}
