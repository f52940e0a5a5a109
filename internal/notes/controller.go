package notes

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/document"
	"go.uber.org/zap"
)

const maxIDAttempts = 8

type ControllerConfig struct {
	Store      *Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Controller turns user intents into store operations.
type Controller struct {
	store      *Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opControllerNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opControllerNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Controller{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Store exposes the backing store for read access.
func (c *Controller) Store() *Store {
	return c.store
}

// Notes returns the note list in order.
func (c *Controller) Notes() []Note {
	return c.store.Notes()
}

// ActiveNote returns the note currently selected for editing.
func (c *Controller) ActiveNote() (Note, bool) {
	return c.store.Active()
}

// SelectNote points the active pointer at id. Unknown ids select nothing.
func (c *Controller) SelectNote(id string) {
	c.store.SetActive(id)
}

// CreateNote appends a fresh note, persists it and makes it active.
func (c *Controller) CreateNote(ctx context.Context) (Note, error) {
	return c.CreateNoteWith(ctx, NewNoteTitle, document.Default())
}

// CreateNoteWith is CreateNote with the title and body filled in up front,
// so the note reaches the gateway in a single save.
func (c *Controller) CreateNoteWith(ctx context.Context, title string, doc document.Document) (Note, error) {
	content, err := c.encodeContent(opCreateNote, "", doc)
	if err != nil {
		return Note{}, err
	}

	id, err := c.nextID()
	if err != nil {
		c.logError(opCreateNote, "id_generation_failed", err)
		return Note{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	now := c.now()
	note := Note{
		ID:        id,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.store.Upsert(ctx, note)
	c.store.SetActive(note.ID)
	return note, nil
}

// UpdateTitle renames the note and persists the new version.
func (c *Controller) UpdateTitle(ctx context.Context, id, title string) (Note, error) {
	now := c.now()
	note, ok := c.store.Update(ctx, id, func(note *Note) {
		note.Title = title
		note.UpdatedAt = now
	})
	if !ok {
		c.logError(opUpdateTitle, reasonNotFound, ErrNoteNotFound, zap.String("note_id", id))
		return Note{}, newServiceError(opUpdateTitle, reasonNotFound, ErrNoteNotFound)
	}
	return note, nil
}

// UpdateContent replaces the note body and persists the new version. A
// document that would not read back as-is is stored as the default document.
func (c *Controller) UpdateContent(ctx context.Context, id string, doc document.Document) (Note, error) {
	content, err := c.encodeContent(opUpdateContent, id, doc)
	if err != nil {
		return Note{}, err
	}

	now := c.now()
	note, ok := c.store.Update(ctx, id, func(note *Note) {
		note.Content = content
		note.UpdatedAt = now
	})
	if !ok {
		c.logError(opUpdateContent, reasonNotFound, ErrNoteNotFound, zap.String("note_id", id))
		return Note{}, newServiceError(opUpdateContent, reasonNotFound, ErrNoteNotFound)
	}
	return note, nil
}

// DeleteNote removes the note; the store reassigns the active pointer.
func (c *Controller) DeleteNote(ctx context.Context, id string) (Note, bool) {
	return c.store.Remove(ctx, id)
}

// encodeContent serializes doc, storing the default document when doc would
// not read back as-is.
func (c *Controller) encodeContent(operation, id string, doc document.Document) (string, error) {
	content, err := document.Serialize(doc)
	if err != nil {
		c.logError(operation, "document_encode_failed", err, zap.String("note_id", id))
		return "", newServiceError(operation, "document_encode_failed", err)
	}
	if !document.Valid(content) {
		c.logger.Debug("replacing unusable document with default", zap.String("note_id", id))
		return defaultContent(), nil
	}
	return content, nil
}

func (c *Controller) nextID() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := c.idProvider.NewID()
		if err != nil {
			return "", err
		}
		if _, exists := c.store.Get(id); !exists {
			return id, nil
		}
		c.logger.Warn("generated note id already present, retrying", zap.String("note_id", id))
	}
	return "", errIDCollision
}

func (c *Controller) now() time.Time {
	return c.clock().UTC().Truncate(time.Millisecond)
}

func (c *Controller) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("notes service error", attrs...)
}
