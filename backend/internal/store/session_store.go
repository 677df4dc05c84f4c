package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceSession is the per device-project sync record. Created on join,
// updated on every accepted batch and on disconnect. Rows are never deleted,
// an offline session stays around as the device's sync/audit record.
type DeviceSession struct {
	ID               uint64 `gorm:"primaryKey"`
	DeviceID         string `gorm:"size:64;uniqueIndex:idx_device_project"`
	ProjectID        string `gorm:"size:64;uniqueIndex:idx_device_project"`
	UserID           string `gorm:"size:64;index"`
	Platform         string `gorm:"size:32"`
	DeviceName       string `gorm:"size:128"`
	Online           bool
	LastKnownVersion uint64
	LastSeenAt       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type SessionStore struct{ db *gorm.DB }

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Init() error {
	return s.db.AutoMigrate(&DeviceSession{})
}

// Upsert creates or refreshes the session for a device-project pair.
// Re-joining updates metadata and marks the device online again.
func (s *SessionStore) Upsert(ctx context.Context, sess *DeviceSession) error {
	sess.LastSeenAt = time.Now()
	sess.Online = true
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "platform", "device_name", "online", "last_known_version", "last_seen_at", "updated_at",
		}),
	}).Create(sess).Error
}

// TouchVersion records the version a device has acknowledged.
func (s *SessionStore) TouchVersion(ctx context.Context, deviceID, projectID string, version uint64) error {
	return s.db.WithContext(ctx).Model(&DeviceSession{}).
		Where("device_id = ? AND project_id = ?", deviceID, projectID).
		Updates(map[string]any{
			"last_known_version": version,
			"last_seen_at":       time.Now(),
			"online":             true,
		}).Error
}

// MarkOffline flips every session for the device; the records stay.
func (s *SessionStore) MarkOffline(ctx context.Context, deviceID string) error {
	return s.db.WithContext(ctx).Model(&DeviceSession{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"online":       false,
			"last_seen_at": time.Now(),
		}).Error
}

// Sessions lists the sync records for a project, online first.
func (s *SessionStore) Sessions(ctx context.Context, projectID string) ([]DeviceSession, error) {
	var out []DeviceSession
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("online DESC, last_seen_at DESC").
		Find(&out).Error
	return out, err
}
