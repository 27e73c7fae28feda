package downloads

import (
	"errors"
	"fmt"

	"github.com/bindery/bindery/internal/downloader/types"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by repositories when an insert would create a
	// second non-terminal item for the same book and URL.
	ErrDuplicate = errors.New("duplicate active download")
	// ErrNotTrackable is returned by Resync for clients that cannot list
	// their downloads, such as watch folders.
	ErrNotTrackable = errors.New("download client cannot report its downloads")
	// ErrTerminal is returned by repositories when an update targets an item
	// that already finished. Re-asserting removal is the only exception.
	ErrTerminal = errors.New("download already finished")
)

// ProviderError is the backend failure family; see types.ProviderError.
type ProviderError = types.ProviderError

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
	// Err optionally names a more specific sentinel the error also matches.
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.Err != nil && target == e.Err)
}

// NotFoundError reports a referenced item, client or book that does not exist.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: id}
}

var errNotFinite = errors.New("value is not finite")
