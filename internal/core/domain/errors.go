package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoAnswers         = errors.New("no rag answers found")
	ErrMissingColumn     = errors.New("missing column")
	ErrNotFound          = errors.New("not found")
	ErrTemporary         = errors.New("temporary failure")
	ErrUpstream          = errors.New("upstream failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserMessage renders the single human-readable message shown for a failed request.
// Value and precondition errors are shown verbatim, everything else is reported as unexpected.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case IsKind(err, ErrInvalidInput),
		IsKind(err, ErrUnsupportedFormat),
		IsKind(err, ErrNoAnswers),
		IsKind(err, ErrMissingColumn),
		IsKind(err, ErrNotFound):
		return err.Error()
	default:
		return fmt.Sprintf("an unexpected error occurred: %v", err)
	}
}
