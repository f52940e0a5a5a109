package notes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/document"
)

const (
	// WelcomeNoteID is the fixed identity of the bootstrap note.
	WelcomeNoteID = "1"
	// WelcomeNoteTitle titles the bootstrap note.
	WelcomeNoteTitle = "Welcome to BetterNotes"
	// NewNoteTitle titles notes created by the user.
	NewNoteTitle = "New Note"

	// TimestampLayout is ISO-8601 in UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Note is a single user document as held by the store.
type Note struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document decodes the note content for the editor.
func (n Note) Document() document.Document {
	return document.Deserialize(n.Content)
}

type noteRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// RecordRepair lists the fields DecodeRecord had to substitute.
type RecordRepair struct {
	Content    bool
	Title      bool
	Timestamps bool
}

// Any reports whether at least one field was repaired.
func (r RecordRepair) Any() bool {
	return r.Content || r.Title || r.Timestamps
}

// FormatTimestamp renders t in the persisted record layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp, with or without fractional seconds.
func ParseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// EncodeRecord serializes the full note record exchanged with the gateway.
func EncodeRecord(note Note) (string, error) {
	encoded, err := json.Marshal(noteRecord{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: FormatTimestamp(note.CreatedAt),
		UpdatedAt: FormatTimestamp(note.UpdatedAt),
	})
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DecodeRecord parses a persisted record. Only unparseable JSON or a missing
// id is an error; every other defect is repaired and reported. A missing
// timestamp takes the value of the other one; when both are missing they stay
// zero and the caller supplies the load time.
func DecodeRecord(raw string) (Note, RecordRepair, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Note{}, RecordRepair{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if fields == nil {
		return Note{}, RecordRepair{}, fmt.Errorf("%w: not an object", ErrInvalidRecord)
	}

	id, ok := stringField(fields, "id")
	if !ok || strings.TrimSpace(id) == "" {
		return Note{}, RecordRepair{}, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	var repair RecordRepair
	note := Note{ID: id}

	if title, ok := stringField(fields, "title"); ok {
		note.Title = title
	} else {
		repair.Title = true
	}

	content, ok := stringField(fields, "content")
	if !ok || !document.Valid(content) {
		content = defaultContent()
		repair.Content = true
	}
	note.Content = content

	note.CreatedAt, ok = timestampField(fields, "createdAt")
	if !ok {
		repair.Timestamps = true
	}
	note.UpdatedAt, ok = timestampField(fields, "updatedAt")
	if !ok {
		repair.Timestamps = true
	}
	switch {
	case note.CreatedAt.IsZero() && !note.UpdatedAt.IsZero():
		note.CreatedAt = note.UpdatedAt
	case note.UpdatedAt.IsZero() && !note.CreatedAt.IsZero():
		note.UpdatedAt = note.CreatedAt
	}

	return note, repair, nil
}

// RecordUpdatedAt extracts updatedAt from a record without full validation.
func RecordUpdatedAt(raw string) (time.Time, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return time.Time{}, false
	}
	return timestampField(fields, "updatedAt")
}

// SupersedesTombstone reports whether a save carrying record should replace a
// note deleted at deletedAt. Only edits made after the delete win; anything
// older is a straggler issued before the delete and is dropped.
func SupersedesTombstone(record string, deletedAt time.Time) bool {
	updatedAt, ok := RecordUpdatedAt(record)
	if !ok {
		return false
	}
	return updatedAt.After(deletedAt)
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func timestampField(fields map[string]json.RawMessage, key string) (time.Time, bool) {
	value, ok := stringField(fields, key)
	if !ok {
		return time.Time{}, false
	}
	parsed, err := ParseTimestamp(value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func defaultContent() string {
	return document.MustSerialize(document.Default())
}

func welcomeNote(now time.Time) Note {
	return Note{
		ID:        WelcomeNoteID,
		Title:     WelcomeNoteTitle,
		Content:   defaultContent(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
