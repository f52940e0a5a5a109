package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC)

type savedRecord struct {
	id     string
	record string
}

type fakeGateway struct {
	mu        sync.Mutex
	records   []string
	loadErr   error
	saveErr   error
	deleteErr error
	saves     []savedRecord
	deletes   []string
}

func (g *fakeGateway) LoadNotes(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	return append([]string(nil), g.records...), nil
}

func (g *fakeGateway) SaveNote(ctx context.Context, id, record string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves = append(g.saves, savedRecord{id: id, record: record})
	return g.saveErr
}

func (g *fakeGateway) DeleteNote(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes = append(g.deletes, id)
	return g.deleteErr
}

func (g *fakeGateway) savedRecords() []savedRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]savedRecord(nil), g.saves...)
}

func (g *fakeGateway) deletedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deletes...)
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		value := current
		current = current.Add(step)
		return value
	}
}

func fixedClock(value time.Time) func() time.Time {
	return func() time.Time {
		return value
	}
}

func newTestStore(t *testing.T, gateway Gateway) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Gateway: gateway,
		Clock:   steppingClock(baseTime, time.Second),
	})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func newTestController(t *testing.T, store *Store, provider IDProvider) *Controller {
	t.Helper()
	controller, err := NewController(ControllerConfig{
		Store:      store,
		Clock:      steppingClock(baseTime.Add(time.Hour), time.Second),
		IDProvider: provider,
	})
	if err != nil {
		t.Fatalf("unexpected controller error: %v", err)
	}
	return controller
}

func waitForStore(t *testing.T, store *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Wait(ctx); err != nil {
		t.Fatalf("pending gateway calls did not finish: %v", err)
	}
}

func mustRecord(t *testing.T, note Note) string {
	t.Helper()
	record, err := EncodeRecord(note)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	return record
}

func mustDecode(t *testing.T, record string) Note {
	t.Helper()
	note, _, err := DecodeRecord(record)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	return note
}

func sampleNote(id, title string, at time.Time) Note {
	return Note{
		ID:        id,
		Title:     title,
		Content:   defaultContent(),
		CreatedAt: at,
		UpdatedAt: at,
	}
}
