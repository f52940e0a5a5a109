package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsTombstonesEmptyPayloads(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&NoteRecord{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	rows := []NoteRecord{
		{NoteID: "empty", PayloadJSON: "", CreatedAtMillis: 10, UpdatedAtMillis: 20, LoadOrder: 1},
		{NoteID: "live", PayloadJSON: `{"id":"live"}`, CreatedAtMillis: 10, UpdatedAtMillis: 30, LoadOrder: 2},
	}
	for index := range rows {
		if err := database.Create(&rows[index]).Error; err != nil {
			testContext.Fatalf("failed to insert row: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var empty NoteRecord
	if err := database.Where("note_id = ?", "empty").Take(&empty).Error; err != nil {
		testContext.Fatalf("failed to reload row: %v", err)
	}
	if !empty.IsDeleted || empty.DeletedAtMillis != 20 {
		testContext.Fatalf("expected empty payload row to become a tombstone, got %#v", empty)
	}

	var live NoteRecord
	if err := database.Where("note_id = ?", "live").Take(&live).Error; err != nil {
		testContext.Fatalf("failed to reload row: %v", err)
	}
	if live.IsDeleted {
		testContext.Fatalf("live row must not be touched")
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationTombstoneEmptyPayloads).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations should be a no-op: %v", err)
	}
}
