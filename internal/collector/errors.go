package collector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no index entry matched a lookup.
	ErrNotFound = errors.New("currency not found")
	// ErrAmbiguous means more than one index entry matched a lookup.
	ErrAmbiguous = errors.New("currency lookup is ambiguous")
)

// LookupError describes a failed symbol or name lookup.
type LookupError struct {
	Field   string // "symbol" or "name"
	Query   string
	Matches int
	Err     error
}

func (e *LookupError) Error() string {
	if errors.Is(e.Err, ErrAmbiguous) {
		return fmt.Sprintf("%s %q: %v (%d matches)", e.Field, e.Query, e.Err, e.Matches)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Query, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
