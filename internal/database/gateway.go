package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

// NoteRecord is one persisted note. Deleted notes stay behind as tombstones.
type NoteRecord struct {
	NoteID          string `gorm:"column:note_id;primaryKey;size:190;not null"`
	PayloadJSON     string `gorm:"column:payload_json;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
	IsDeleted       bool   `gorm:"column:is_deleted;not null;default:false;index:idx_notes_live_order,priority:1"`
	DeletedAtMillis int64  `gorm:"column:deleted_at_ms;not null;default:0"`
	LoadOrder       int64  `gorm:"column:load_order;not null;index:idx_notes_live_order,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (NoteRecord) TableName() string {
	return "notes"
}

// Gateway implements notes.Gateway on top of a GORM SQLite handle.
type Gateway struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

type GatewayConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: cfg.Database, clock: clock, logger: logger}, nil
}

// LoadNotes returns live records in first-saved order.
func (g *Gateway) LoadNotes(ctx context.Context) ([]string, error) {
	var rows []NoteRecord
	if err := g.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("load_order ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}

	records := make([]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.PayloadJSON)
	}
	return records, nil
}

// SaveNote stores record under id. Saves older than a tombstone are dropped.
func (g *Gateway) SaveNote(ctx context.Context, id, record string) error {
	note, _, err := notes.DecodeRecord(record)
	if err != nil {
		return err
	}
	if note.ID != id {
		return fmt.Errorf("%w: record id %q does not match %q", notes.ErrInvalidRecord, note.ID, id)
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing NoteRecord
		err := tx.Where("note_id = ?", id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			order, err := nextLoadOrder(tx)
			if err != nil {
				return err
			}
			created := NoteRecord{
				NoteID:          id,
				PayloadJSON:     record,
				CreatedAtMillis: millisOrNow(note.CreatedAt, g.clock),
				UpdatedAtMillis: millisOrNow(note.UpdatedAt, g.clock),
				LoadOrder:       order,
			}
			return tx.Create(&created).Error
		}
		if err != nil {
			return fmt.Errorf("failed to look up note: %w", err)
		}

		if existing.IsDeleted && !notes.SupersedesTombstone(record, time.UnixMilli(existing.DeletedAtMillis)) {
			g.logger.Debug("ignoring save for deleted note", zap.String("note_id", id))
			return nil
		}

		existing.PayloadJSON = record
		existing.UpdatedAtMillis = millisOrNow(note.UpdatedAt, g.clock)
		existing.IsDeleted = false
		existing.DeletedAtMillis = 0
		return tx.Save(&existing).Error
	})
}

// DeleteNote leaves a tombstone dated now. Unknown ids get a payload-less tombstone.
func (g *Gateway) DeleteNote(ctx context.Context, id string) error {
	deletedAt := g.clock().UTC().UnixMilli()

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing NoteRecord
		err := tx.Where("note_id = ?", id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			order, err := nextLoadOrder(tx)
			if err != nil {
				return err
			}
			return tx.Create(&NoteRecord{
				NoteID:          id,
				PayloadJSON:     "",
				CreatedAtMillis: deletedAt,
				UpdatedAtMillis: deletedAt,
				IsDeleted:       true,
				DeletedAtMillis: deletedAt,
				LoadOrder:       order,
			}).Error
		}
		if err != nil {
			return fmt.Errorf("failed to look up note: %w", err)
		}

		existing.IsDeleted = true
		existing.DeletedAtMillis = deletedAt
		return tx.Save(&existing).Error
	})
}

func nextLoadOrder(tx *gorm.DB) (int64, error) {
	var maxOrder int64
	if err := tx.Model(&NoteRecord{}).
		Select("COALESCE(MAX(load_order), 0)").
		Scan(&maxOrder).Error; err != nil {
		return 0, fmt.Errorf("failed to compute load order: %w", err)
	}
	return maxOrder + 1, nil
}

func millisOrNow(value time.Time, clock func() time.Time) int64 {
	if value.IsZero() {
		return clock().UTC().UnixMilli()
	}
	return value.UnixMilli()
}
