// Package history persists watch progress so playback resumes where
// the user left off.
package history

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mnflix/mnflix-cli/internal/database"
	"github.com/mnflix/mnflix-cli/internal/media"
)

// completionThreshold marks an item completed past this fraction
const completionThreshold = 0.9

// Service provides watch-history management
type Service struct {
	db *gorm.DB
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record adds or updates the progress record for a content identity
func (s *Service) Record(id media.Identity, provider string, progressSeconds, totalSeconds int) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	percent := 0.0
	if totalSeconds > 0 {
		percent = float64(progressSeconds) / float64(totalSeconds)
	}

	entry := database.WatchHistory{
		ContentID:       id.ContentID,
		Title:           id.Title,
		Season:          id.Season,
		Episode:         id.Episode,
		ProgressSeconds: progressSeconds,
		TotalSeconds:    totalSeconds,
		ProgressPercent: percent * 100,
		Provider:        provider,
		WatchedAt:       time.Now(),
		Completed:       percent >= completionThreshold,
	}

	var existing database.WatchHistory
	err := s.db.
		Where("content_id = ? AND season = ? AND episode = ?", id.ContentID, id.Season, id.Episode).
		First(&existing).Error
	if err == nil {
		entry.ID = existing.ID
		return s.db.Save(&entry).Error
	}
	return s.db.Create(&entry).Error
}

// Resume returns the saved progress position in seconds for an
// identity, or 0 when none exists or the item was completed.
func (s *Service) Resume(id media.Identity) int {
	if s.db == nil {
		return 0
	}
	var entry database.WatchHistory
	err := s.db.
		Where("content_id = ? AND season = ? AND episode = ? AND completed = false",
			id.ContentID, id.Season, id.Episode).
		Order("watched_at DESC").
		First(&entry).Error
	if err != nil {
		return 0
	}
	return entry.ProgressSeconds
}

// List returns the most recent history entries
func (s *Service) List(limit int) ([]database.WatchHistory, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	var entries []database.WatchHistory
	err := s.db.Order("watched_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}
