package notes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// Gateway is the persistence boundary. Records are full JSON note records.
type Gateway interface {
	LoadNotes(ctx context.Context) ([]string, error)
	SaveNote(ctx context.Context, id, record string) error
	DeleteNote(ctx context.Context, id string) error
}

type StoreConfig struct {
	Gateway Gateway
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Store holds the canonical note list and the active pointer. It is the only
// writer to the gateway.
type Store struct {
	mu       sync.RWMutex
	notes    []Note
	activeID string

	gateway Gateway
	clock   func() time.Time
	logger  *zap.Logger
	queue   *writeQueue
}

// LoadReport summarizes what Initialize found at the gateway.
type LoadReport struct {
	Loaded       int
	Repaired     int
	Skipped      int
	Bootstrapped bool
	Fallback     bool
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Gateway == nil {
		return nil, newServiceError(opStoreNew, "missing_gateway", errMissingGateway)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		gateway: cfg.Gateway,
		clock:   clock,
		logger:  logger,
		queue:   newWriteQueue(logger),
	}, nil
}

// Initialize replaces the in-memory list with the gateway contents. It never
// fails: a load error, or records none of which can be read, leaves a single
// unsaved welcome note. Only an empty gateway gets a saved welcome note.
func (s *Store) Initialize(ctx context.Context) LoadReport {
	var report LoadReport

	records, err := s.gateway.LoadNotes(ctx)
	if err != nil {
		s.logger.Error("notes load failed, using in-memory welcome note",
			zap.String("operation", opInitialize),
			zap.Error(err))
		welcome := welcomeNote(s.now())
		s.replaceAll([]Note{welcome})
		report.Fallback = true
		return report
	}

	loadedAt := s.now()
	loaded := make([]Note, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for index, raw := range records {
		note, repair, err := DecodeRecord(raw)
		if err != nil {
			s.logger.Warn("skipping unreadable note record",
				zap.String("operation", opInitialize),
				zap.Int("index", index),
				zap.Error(err))
			report.Skipped++
			continue
		}
		if _, duplicate := seen[note.ID]; duplicate {
			s.logger.Warn("skipping duplicate note record",
				zap.String("operation", opInitialize),
				zap.String("note_id", note.ID))
			report.Skipped++
			continue
		}
		seen[note.ID] = struct{}{}
		if note.CreatedAt.IsZero() {
			note.CreatedAt = loadedAt
		}
		if note.UpdatedAt.IsZero() {
			note.UpdatedAt = loadedAt
		}
		if repair.Any() {
			s.logger.Debug("repaired note record",
				zap.String("note_id", note.ID),
				zap.Bool("content", repair.Content),
				zap.Bool("title", repair.Title),
				zap.Bool("timestamps", repair.Timestamps))
			report.Repaired++
		}
		loaded = append(loaded, note)
	}

	if len(loaded) == 0 {
		welcome := welcomeNote(loadedAt)
		s.replaceAll([]Note{welcome})
		if report.Skipped > 0 {
			s.logger.Error("no readable note records, using in-memory welcome note",
				zap.String("operation", opInitialize),
				zap.Int("skipped", report.Skipped))
			report.Fallback = true
			return report
		}
		s.save(ctx, welcome)
		report.Bootstrapped = true
		return report
	}

	s.replaceAll(loaded)
	report.Loaded = len(loaded)
	s.logger.Info("notes loaded",
		zap.Int("count", report.Loaded),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped))
	return report
}

// Get returns the note with id.
func (s *Store) Get(id string) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := s.indexOf(id)
	if index < 0 {
		return Note{}, false
	}
	return s.notes[index], true
}

// Notes returns a copy of the list in order.
func (s *Store) Notes() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]Note, len(s.notes))
	copy(copied, s.notes)
	return copied
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// ActiveID returns the active note id, or "" when nothing is active.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns the active note when the pointer names a stored note.
func (s *Store) Active() (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := s.indexOf(s.activeID)
	if index < 0 {
		return Note{}, false
	}
	return s.notes[index], true
}

// SetActive moves the active pointer without checking that id exists.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

// Upsert replaces the note with the same id, appending it when absent, then
// issues a save. The active pointer is left alone.
func (s *Store) Upsert(ctx context.Context, note Note) {
	s.mu.Lock()
	index := s.indexOf(note.ID)
	if index < 0 {
		s.notes = append(s.notes, note)
	} else {
		s.notes[index] = note
	}
	s.mu.Unlock()

	s.save(ctx, note)
}

// Update applies mutate to the stored note with id under a single lock, then
// issues a save. It reports false and saves nothing when id is absent, so an
// edit racing a delete cannot put the note back.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Note)) (Note, bool) {
	s.mu.Lock()
	index := s.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return Note{}, false
	}
	note := s.notes[index]
	mutate(&note)
	note.ID = id
	s.notes[index] = note
	s.mu.Unlock()

	s.save(ctx, note)
	return note, true
}

// Remove drops the note with id and issues a delete. If id was active the
// pointer moves to the first remaining note, or to none.
func (s *Store) Remove(ctx context.Context, id string) (Note, bool) {
	s.mu.Lock()
	var removed Note
	index := s.indexOf(id)
	found := index >= 0
	if found {
		removed = s.notes[index]
		s.notes = append(s.notes[:index:index], s.notes[index+1:]...)
	}
	if s.activeID == id {
		s.activeID = ""
		if len(s.notes) > 0 {
			s.activeID = s.notes[0].ID
		}
	}
	s.mu.Unlock()

	s.queue.submit(ctx, opDelete, id, func(taskCtx context.Context) error {
		return s.gateway.DeleteNote(taskCtx, id)
	})
	return removed, found
}

// Pending returns the number of gateway calls still in flight.
func (s *Store) Pending() int {
	return s.queue.pending()
}

// Wait blocks until every issued gateway call has completed or ctx ends.
func (s *Store) Wait(ctx context.Context) error {
	return s.queue.wait(ctx)
}

func (s *Store) save(ctx context.Context, note Note) {
	record, err := EncodeRecord(note)
	if err != nil {
		s.logger.Error("notes service error",
			zap.String("operation", opSave),
			zap.String("reason", reasonEncodeFail),
			zap.String("note_id", note.ID),
			zap.Error(err))
		return
	}
	id := note.ID
	s.queue.submit(ctx, opSave, id, func(taskCtx context.Context) error {
		return s.gateway.SaveNote(taskCtx, id, record)
	})
}

func (s *Store) replaceAll(notes []Note) {
	s.mu.Lock()
	s.notes = notes
	s.activeID = notes[0].ID
	s.mu.Unlock()
}

func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

// indexOf expects s.mu to be held.
func (s *Store) indexOf(id string) int {
	for index, note := range s.notes {
		if note.ID == id {
			return index
		}
	}
	return -1
}
