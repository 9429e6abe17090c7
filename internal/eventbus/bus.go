// Package eventbus carries transaction events from the ingestion boundary to
// the evaluator over the transaction.process topic. Events always travel as
// codec frames, whether the transport is in-process or NATS.
package eventbus

import (
	"context"
	"errors"

	"github.com/rafaeljc/vigil/internal/transaction"
)

// TopicTransactionProcess is the topic every ingested event is published on.
const TopicTransactionProcess = "transaction.process"

var (
	ErrNoHandler      = errors.New("no handler subscribed to topic")
	ErrBusClosed      = errors.New("event bus is closed")
	ErrPublishTimeout = errors.New("timed out waiting for queue capacity")
)

// Handler consumes one decoded event.
type Handler func(ctx context.Context, e *transaction.Event) error

// Bus is an asynchronous, topic-addressed event channel.
type Bus interface {
	// Publish hands e to the transport. It returns once the event is queued,
	// not once it is handled.
	Publish(ctx context.Context, topic string, e *transaction.Event) error
	// Subscribe registers the consumer of topic.
	Subscribe(topic string, h Handler) error
	// Close stops accepting events and waits for in-flight ones until ctx is done.
	Close(ctx context.Context) error
}
