// Package storage provides optional audit/stats persistence for the mirror
// engine: a ratio-change audit trail, daily stats, and a notification log.
// None of it is required for reconciliation correctness; the engine
// tolerates cold restarts via startup-set exclusion, not replay from disk.
package storage

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// RatioAudit persists one Controller.SetRatio call.
type RatioAudit struct {
	ID          uint `gorm:"primaryKey"`
	OldRatio    string
	NewRatio    string
	By          string
	DeltaPct    string
	Description string
	At          time.Time
}

// DailyStat persists one daily_report snapshot.
type DailyStat struct {
	ID                     uint `gorm:"primaryKey"`
	Date                   string `gorm:"uniqueIndex"`
	MirrorsPlaced          int
	ImmediateFills         int
	CancelsSynced          int
	ForcedCancelCleanups   int
	FailedMirrors          int
	CancelFailures         int
	MarginModeFailures     int
	ImmediateFillFailures  int
	PermissiveCloseMirrors int
}

// NotificationLogEntry records an operator notification handed to the
// notifier, for audit (whether or not the rate limit let it through).
type NotificationLogEntry struct {
	ID       uint `gorm:"primaryKey"`
	Category string
	Text     string
	SentAt   time.Time
}

// DB wraps a gorm connection, guarded by IsEnabled so every caller can
// no-op cleanly when persistence wasn't configured.
type DB struct {
	conn    *gorm.DB
	enabled bool
}

// New opens a connection to dbPath, auto-detecting postgres (a
// "postgres://" DSN) vs falling back to sqlite, and runs AutoMigrate. An
// empty dbPath disables persistence entirely.
func New(dbPath string) (*DB, error) {
	if dbPath == "" {
		return &DB{enabled: false}, nil
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		dialector = postgres.Open(dbPath)
	} else {
		dialector = sqlite.Open(dbPath)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := conn.AutoMigrate(&RatioAudit{}, &DailyStat{}, &NotificationLogEntry{}); err != nil {
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("storage: connected and migrated")
	return &DB{conn: conn, enabled: true}, nil
}

func (d *DB) IsEnabled() bool { return d.enabled }

func (d *DB) LogRatioChange(old, new_ decimal.Decimal, by, description string, deltaPct decimal.Decimal, at time.Time) {
	if !d.enabled {
		return
	}
	entry := RatioAudit{
		OldRatio: old.String(), NewRatio: new_.String(), By: by,
		DeltaPct: deltaPct.String(), Description: description, At: at,
	}
	if err := d.conn.Create(&entry).Error; err != nil {
		log.Error().Err(err).Msg("storage: failed to log ratio change")
	}
}

func (d *DB) LogNotification(category, text string, sentAt time.Time) {
	if !d.enabled {
		return
	}
	entry := NotificationLogEntry{Category: category, Text: text, SentAt: sentAt}
	if err := d.conn.Create(&entry).Error; err != nil {
		log.Error().Err(err).Msg("storage: failed to log notification")
	}
}

func (d *DB) UpsertDailyStat(date string, stat DailyStat) {
	if !d.enabled {
		return
	}
	stat.Date = date
	if err := d.conn.Where("date = ?", date).Assign(stat).FirstOrCreate(&DailyStat{}).Error; err != nil {
		log.Error().Err(err).Msg("storage: failed to upsert daily stat")
	}
}

func (d *DB) RecentRatioAudits(limit int) ([]RatioAudit, error) {
	if !d.enabled {
		return nil, nil
	}
	var out []RatioAudit
	err := d.conn.Order("at desc").Limit(limit).Find(&out).Error
	return out, err
}

func (d *DB) Close() error {
	if !d.enabled {
		return nil
	}
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
