package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationTombstoneEmptyPayloads = "2026-10-01_tombstone_empty_payloads"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationTombstoneEmptyPayloads, apply: tombstoneEmptyPayloads},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Live rows with no payload cannot be loaded; turn them into tombstones
// dated at their last update.
func tombstoneEmptyPayloads(db *gorm.DB) error {
	return db.Model(&NoteRecord{}).
		Where("is_deleted = ? AND payload_json = ?", false, "").
		Updates(map[string]any{
			"is_deleted":    true,
			"deleted_at_ms": gorm.Expr("updated_at_ms"),
		}).Error
}
