package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

// ErrorClassification tells the executor whether to retry an error and whether the breaker counts it.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	// Ignore neither retries nor counts the error, e.g. caller cancellation or a 4xx.
	Ignore = ErrorClassification{}
	// Transient retries and counts the error.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent counts the error without retrying it.
	Permanent = ErrorClassification{RecordFailure: true}
)

// ClassifyCommon handles cancellation and open breakers. ok is false when the
// adapter's own classifier has to decide.
func ClassifyCommon(err error) (class ErrorClassification, ok bool) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignore, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	return ErrorClassification{}, false
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// MarkTemporary tags retryable failures and open breakers as domain.ErrTemporary
// so the API answers 503 instead of 500.
func MarkTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || classifier(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
