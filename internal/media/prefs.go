package media

import (
	"log/slog"
	"sync"
)

// Setting keys in the persistent store
const (
	settingCaptionLanguage = "caption_language"
	settingLastProvider    = "last_provider"
)

// PrefStore is the persistent key/value surface the preferences need.
// Implemented by the database settings table.
type PrefStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// SessionPrefs holds the sticky cross-content preferences: the last
// caption language the user actively selected and the last provider
// they chose. Single writer; loaded at startup, written on change.
type SessionPrefs struct {
	mu           sync.RWMutex
	store        PrefStore
	captionLang  string
	lastProvider string
	logger       *slog.Logger
}

// LoadSessionPrefs reads the stored preferences. defaultLang seeds the
// caption preference when nothing is stored yet. store may be nil, in
// which case preferences live only for the process lifetime.
func LoadSessionPrefs(store PrefStore, defaultLang string, logger *slog.Logger) *SessionPrefs {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SessionPrefs{store: store, captionLang: defaultLang, logger: logger}

	if store != nil {
		if lang, err := store.GetSetting(settingCaptionLanguage); err == nil && lang != "" {
			p.captionLang = lang
		}
		if provider, err := store.GetSetting(settingLastProvider); err == nil {
			p.lastProvider = provider
		}
	}
	return p
}

// CaptionLanguage returns the standing caption language preference
func (p *SessionPrefs) CaptionLanguage() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.captionLang
}

// SetCaptionLanguage records a live caption selection as the standing
// preference for future content.
func (p *SessionPrefs) SetCaptionLanguage(lang string) {
	if lang == "" {
		return
	}
	p.mu.Lock()
	p.captionLang = lang
	p.mu.Unlock()
	p.persist(settingCaptionLanguage, lang)
}

// LastProvider returns the sticky last-chosen provider, "" when none
func (p *SessionPrefs) LastProvider() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastProvider
}

// SetLastProvider records the provider the user last chose
func (p *SessionPrefs) SetLastProvider(provider string) {
	if provider == "" {
		return
	}
	p.mu.Lock()
	p.lastProvider = provider
	p.mu.Unlock()
	p.persist(settingLastProvider, provider)
}

func (p *SessionPrefs) persist(key, value string) {
	if p.store == nil {
		return
	}
	if err := p.store.SetSetting(key, value); err != nil {
		p.logger.Warn("failed to persist preference", "key", key, "error", err)
	}
}
