package database

import (
	"errors"

	"gorm.io/gorm"
)

// SettingsStore exposes the settings table as a key/value store. It
// satisfies the preference-store interface the session prefs expect.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore wraps the database in a SettingsStore
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetSetting returns the stored value for key, or "" when absent
// (not an error).
func (s *SettingsStore) GetSetting(key string) (string, error) {
	var setting Setting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

// SetSetting stores or updates a value. Upserts via GORM Save.
func (s *SettingsStore) SetSetting(key, value string) error {
	return s.db.Save(&Setting{Key: key, Value: value}).Error
}
