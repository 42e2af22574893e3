package database

import (
	"time"

	"gorm.io/gorm"
)

// Setting is a key-value store for device-scoped preferences
type Setting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (Setting) TableName() string {
	return "settings"
}

// WatchHistory records playback progress per content item
type WatchHistory struct {
	ID              uint      `gorm:"primaryKey"`
	ContentID       string    `gorm:"not null;index"`
	Title           string    `gorm:"not null"`
	Season          int       `gorm:"default:0"`
	Episode         int       `gorm:"default:0"`
	ProgressSeconds int       `gorm:"not null"`
	TotalSeconds    int       `gorm:"not null"`
	ProgressPercent float64   `gorm:"not null"`
	Provider        string    `gorm:"default:''"`
	WatchedAt       time.Time `gorm:"index;default:CURRENT_TIMESTAMP"`
	Completed       bool      `gorm:"default:false"`
}

// TableName overrides the table name
func (WatchHistory) TableName() string {
	return "watch_history"
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Setting{},
		&WatchHistory{},
	)
}
