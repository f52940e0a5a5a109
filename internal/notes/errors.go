package notes

import (
	"errors"
	"fmt"
)

var (
	// ErrNoteNotFound indicates that no note with the requested id is in the store.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrInvalidRecord indicates that a persisted record could not be decoded.
	ErrInvalidRecord = errors.New("notes: invalid record")

	errMissingGateway    = errors.New("gateway is required")
	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errIDCollision       = errors.New("generated id already present")
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew       = "notes.store.new"
	opControllerNew  = "notes.controller.new"
	opInitialize     = "notes.initialize"
	opSave           = "notes.save"
	opDelete         = "notes.delete"
	opCreateNote     = "notes.create_note"
	opUpdateTitle    = "notes.update_title"
	opUpdateContent  = "notes.update_content"
	reasonNotFound   = "note_not_found"
	reasonEncodeFail = "record_encode_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
