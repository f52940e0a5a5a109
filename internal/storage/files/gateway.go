package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/notes"
	"go.uber.org/zap"
)

const (
	recordExtension    = ".json"
	tombstoneExtension = ".tombstone"
	tempFilePrefix     = "betternotes-tmp-"
	dirPermissions     = 0o700
	filePermissions    = 0o600
)

// DefaultTombstoneRetention bounds how long a deletion is remembered. Saves
// issued before a delete complete within seconds, so older tombstones guard
// nothing.
const DefaultTombstoneRetention = 30 * 24 * time.Hour

// ErrInvalidNoteID rejects ids that cannot be used as a file name.
var ErrInvalidNoteID = errors.New("files: invalid note id")

// Gateway stores one <id>.json record per note in a directory.
//
// Deletes leave an <id>.tombstone holding the deletion time. A later save is
// applied only when its record was updated after that time. LoadNotes prunes
// tombstones older than the retention.
type Gateway struct {
	dir       string
	clock     func() time.Time
	retention time.Duration
	logger    *zap.Logger
	mu        sync.Mutex
}

type Config struct {
	Dir                string
	Clock              func() time.Time
	TombstoneRetention time.Duration
	Logger             *zap.Logger
}

func NewGateway(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("files: notes directory is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retention := cfg.TombstoneRetention
	if retention <= 0 {
		retention = DefaultTombstoneRetention
	}
	return &Gateway{dir: cfg.Dir, clock: clock, retention: retention, logger: logger}, nil
}

// Dir returns the notes directory.
func (g *Gateway) Dir() string {
	return g.dir
}

// LoadNotes returns every stored record ordered by file name. A missing
// directory is created and yields no records.
func (g *Gateway) LoadNotes(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(g.dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create notes directory: %w", err)
	}

	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	tombstones := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempFilePrefix) {
			continue
		}
		switch filepath.Ext(name) {
		case recordExtension:
			names = append(names, name)
		case tombstoneExtension:
			tombstones = append(tombstones, strings.TrimSuffix(name, tombstoneExtension))
		}
	}
	sort.Strings(names)
	g.pruneTombstones(tombstones)

	records := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(g.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read note %s: %w", name, err)
		}
		records = append(records, string(data))
	}
	return records, nil
}

func (g *Gateway) SaveNote(ctx context.Context, id, record string) error {
	if err := validateID(id); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	deletedAt, tombstoned, err := g.readTombstone(id)
	if err != nil {
		return err
	}
	if tombstoned {
		if !notes.SupersedesTombstone(record, deletedAt) {
			g.logger.Debug("ignoring save for deleted note", zap.String("note_id", id))
			return nil
		}
	}

	if err := os.MkdirAll(g.dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}
	if err := writeFileAtomic(g.recordPath(id), []byte(record), filePermissions); err != nil {
		return err
	}
	if tombstoned {
		if err := os.Remove(g.tombstonePath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear tombstone: %w", err)
		}
	}
	return nil
}

func (g *Gateway) DeleteNote(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(g.dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}
	deletedAt := notes.FormatTimestamp(g.clock())
	if err := writeFileAtomic(g.tombstonePath(id), []byte(deletedAt), filePermissions); err != nil {
		return err
	}
	if err := os.Remove(g.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

// pruneTombstones removes expired or unreadable tombstones. Failures only log.
func (g *Gateway) pruneTombstones(ids []string) {
	if len(ids) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.clock().Add(-g.retention)
	for _, id := range ids {
		deletedAt, tombstoned, err := g.readTombstone(id)
		if err != nil {
			g.logger.Warn("failed to inspect tombstone", zap.String("note_id", id), zap.Error(err))
			continue
		}
		if tombstoned && !deletedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(g.tombstonePath(id)); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("failed to prune tombstone", zap.String("note_id", id), zap.Error(err))
			continue
		}
		g.logger.Debug("pruned tombstone", zap.String("note_id", id))
	}
}

func (g *Gateway) readTombstone(id string) (time.Time, bool, error) {
	data, err := os.ReadFile(g.tombstonePath(id))
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read tombstone: %w", err)
	}
	deletedAt, err := notes.ParseTimestamp(string(data))
	if err != nil {
		g.logger.Warn("unreadable tombstone, treating note as live", zap.String("note_id", id), zap.Error(err))
		return time.Time{}, false, nil
	}
	return deletedAt, true, nil
}

func (g *Gateway) recordPath(id string) string {
	return filepath.Join(g.dir, id+recordExtension)
}

func (g *Gateway) tombstonePath(id string) string {
	return filepath.Join(g.dir, id+tombstoneExtension)
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed != id {
		return fmt.Errorf("%w: %q", ErrInvalidNoteID, id)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.HasPrefix(id, tempFilePrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidNoteID, id)
	}
	return nil
}

// writeFileAtomic writes through a temp file in the same directory and renames it into place.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
