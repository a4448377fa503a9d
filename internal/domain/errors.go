package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRange  = errors.New("invalid price range")
	ErrUnknownColumn = errors.New("unknown column")
	ErrInvalidBins   = errors.New("invalid bin count")
	ErrUnavailable   = errors.New("listing source unavailable")
)

// ErrInvalidRecord rejects a row during import.
type ErrInvalidRecord struct {
	Field  string
	Reason string
}

func (e ErrInvalidRecord) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownColumn wraps ErrUnknownColumn with the offending name and role.
func UnknownColumn(name, role string) error {
	return fmt.Errorf("%w: %q is not a %s column", ErrUnknownColumn, name, role)
}
