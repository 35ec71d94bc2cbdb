package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/resilience"
)

// connectivityErrors are the client errors a reconnect can cure.
var connectivityErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	for _, target := range connectivityErrors {
		if errors.Is(err, target) {
			return resilience.Transient
		}
	}
	return resilience.Permanent
}

func markTemporary(err error) error {
	return resilience.MarkTemporary("nats publish", err, classifyNATSError)
}
