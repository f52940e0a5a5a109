package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/notes"
)

var _ notes.Gateway = (*Gateway)(nil)

func newTestGateway(t *testing.T, clock func() time.Time) *Gateway {
	t.Helper()
	gateway, err := NewGateway(Config{Dir: filepath.Join(t.TempDir(), "notes"), Clock: clock})
	if err != nil {
		t.Fatalf("unexpected gateway error: %v", err)
	}
	return gateway
}

func recordAt(t *testing.T, id, title string, updatedAt time.Time) string {
	t.Helper()
	record, err := notes.EncodeRecord(notes.Note{
		ID:        id,
		Title:     title,
		Content:   `[{"type":"paragraph","children":[{"text":"x"}]}]`,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	return record
}

func TestLoadNotesCreatesMissingDirectory(t *testing.T) {
	gateway := newTestGateway(t, nil)

	records, err := gateway.LoadNotes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if info, err := os.Stat(gateway.Dir()); err != nil || !info.IsDir() {
		t.Fatalf("expected notes directory to exist: %v", err)
	}
}

func TestSaveLoadDeleteRoundTrip(t *testing.T) {
	now := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	gateway := newTestGateway(t, func() time.Time { return now })
	ctx := context.Background()

	first := recordAt(t, "1700000000001", "first", now.Add(-time.Hour))
	second := recordAt(t, "1700000000002", "second", now.Add(-time.Hour))
	if err := gateway.SaveNote(ctx, "1700000000002", second); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if err := gateway.SaveNote(ctx, "1700000000001", first); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gateway.Dir(), "readme.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	records, err := gateway.LoadNotes(ctx)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(records) != 2 || records[0] != first || records[1] != second {
		t.Fatalf("unexpected records %v", records)
	}

	if err := gateway.DeleteNote(ctx, "1700000000001"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	records, err = gateway.LoadNotes(ctx)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(records) != 1 || records[0] != second {
		t.Fatalf("expected only second record, got %v", records)
	}
}

func TestDeleteOfMissingNoteSucceeds(t *testing.T) {
	gateway := newTestGateway(t, nil)
	if err := gateway.DeleteNote(context.Background(), "never-saved"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSaveAfterDeleteHonoursTombstone(t *testing.T) {
	deletedAt := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	gateway := newTestGateway(t, func() time.Time { return deletedAt })
	ctx := context.Background()

	if err := gateway.SaveNote(ctx, "a", recordAt(t, "a", "live", deletedAt.Add(-time.Minute))); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if err := gateway.DeleteNote(ctx, "a"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	straggler := recordAt(t, "a", "straggler", deletedAt.Add(-time.Second))
	if err := gateway.SaveNote(ctx, "a", straggler); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	records, _ := gateway.LoadNotes(ctx)
	if len(records) != 0 {
		t.Fatalf("straggler save resurrected the note: %v", records)
	}

	recreated := recordAt(t, "a", "recreated", deletedAt.Add(time.Second))
	if err := gateway.SaveNote(ctx, "a", recreated); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	records, _ = gateway.LoadNotes(ctx)
	if len(records) != 1 || records[0] != recreated {
		t.Fatalf("expected recreated note, got %v", records)
	}
	if _, err := os.Stat(filepath.Join(gateway.Dir(), "a"+tombstoneExtension)); !os.IsNotExist(err) {
		t.Fatalf("expected tombstone to be cleared, stat error %v", err)
	}
}

func TestLoadNotesPrunesExpiredTombstones(t *testing.T) {
	deletedAt := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	now := deletedAt
	gateway, err := NewGateway(Config{
		Dir:                filepath.Join(t.TempDir(), "notes"),
		Clock:              func() time.Time { return now },
		TombstoneRetention: time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected gateway error: %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"old", "recent"} {
		if err := gateway.SaveNote(ctx, id, recordAt(t, id, id, deletedAt.Add(-time.Minute))); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}
	}
	if err := gateway.DeleteNote(ctx, "old"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	now = deletedAt.Add(50 * time.Minute)
	if err := gateway.DeleteNote(ctx, "recent"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gateway.Dir(), "garbled"+tombstoneExtension), []byte("not a time"), filePermissions); err != nil {
		t.Fatalf("failed to write garbled tombstone: %v", err)
	}

	now = deletedAt.Add(90 * time.Minute)
	if _, err := gateway.LoadNotes(ctx); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	for id, expectExists := range map[string]bool{"old": false, "garbled": false, "recent": true} {
		_, err := os.Stat(filepath.Join(gateway.Dir(), id+tombstoneExtension))
		if exists := err == nil; exists != expectExists {
			t.Fatalf("tombstone %s: expected exists=%v, stat error %v", id, expectExists, err)
		}
	}

	straggler := recordAt(t, "recent", "straggler", deletedAt)
	if err := gateway.SaveNote(ctx, "recent", straggler); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	records, _ := gateway.LoadNotes(ctx)
	if len(records) != 0 {
		t.Fatalf("retained tombstone must still block stragglers, got %v", records)
	}
}

func TestInvalidIDsAreRejected(t *testing.T) {
	gateway := newTestGateway(t, nil)
	for _, id := range []string{"", " ", "../escape", `a\b`, "..", " padded"} {
		if err := gateway.SaveNote(context.Background(), id, "{}"); !errors.Is(err, ErrInvalidNoteID) {
			t.Fatalf("expected invalid id error for %q, got %v", id, err)
		}
		if err := gateway.DeleteNote(context.Background(), id); !errors.Is(err, ErrInvalidNoteID) {
			t.Fatalf("expected invalid id error for %q, got %v", id, err)
		}
	}
}

func TestStoreBootstrapsThroughFileGateway(t *testing.T) {
	gateway := newTestGateway(t, nil)
	store, err := notes.NewStore(notes.StoreConfig{Gateway: gateway})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	store.Initialize(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Wait(ctx); err != nil {
		t.Fatalf("pending writes did not finish: %v", err)
	}

	reloaded, err := notes.NewStore(notes.StoreConfig{Gateway: gateway})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	report := reloaded.Initialize(context.Background())
	if report.Loaded != 1 || report.Bootstrapped {
		t.Fatalf("expected persisted welcome note to load, got %#v", report)
	}
	if active, ok := reloaded.Active(); !ok || active.Title != notes.WelcomeNoteTitle {
		t.Fatalf("unexpected active note %#v", active)
	}
}
