// Package ingest validates batches of transaction events and dispatches them
// onto the transaction.process topic. The HTTP and gRPC surfaces share it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/vigil/internal/eventbus"
	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

// DefaultMaxBatchSize applies when the dispatcher is built with a non-positive maximum.
const DefaultMaxBatchSize = 1000

var (
	ErrEmptyBatch    = errors.New("event batch cannot be empty")
	ErrBatchTooLarge = errors.New("event batch exceeds maximum size")
)

// EventError reports the first invalid event of a rejected batch.
type EventError struct {
	Index int
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("events[%d]: %v", e.Index, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// Result counts how many events of an accepted batch reached the bus.
type Result struct {
	Dispatched int `json:"dispatched"`
	Total      int `json:"total"`
}

// Dispatcher publishes accepted batches event by event.
type Dispatcher struct {
	logger       *slog.Logger
	bus          eventbus.Bus
	topic        string
	maxBatchSize int
}

// NewDispatcher creates a dispatcher publishing to eventbus.TopicTransactionProcess.
func NewDispatcher(logger *slog.Logger, bus eventbus.Bus, maxBatchSize int) *Dispatcher {
	validation.AssertNotNilInterface(bus, "event bus")
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	return &Dispatcher{
		logger:       logger,
		bus:          bus,
		topic:        eventbus.TopicTransactionProcess,
		maxBatchSize: maxBatchSize,
	}
}

// WithTopic overrides the topic events are published to. An empty topic keeps the default.
func (d *Dispatcher) WithTopic(topic string) *Dispatcher {
	if topic != "" {
		d.topic = topic
	}
	return d
}

// Topic is where accepted events are published.
func (d *Dispatcher) Topic() string {
	return d.topic
}

// MaxBatchSize is the largest batch Dispatch accepts.
func (d *Dispatcher) MaxBatchSize() int {
	return d.maxBatchSize
}

// Dispatch validates the whole batch and then publishes every event.
//
// A structurally invalid batch (empty, too large, or containing an invalid
// event) is rejected with an error and nothing is published. Otherwise the
// batch is accepted even if some publishes fail; those events are logged and
// left out of Result.Dispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, events []*transaction.Event) (Result, error) {
	if err := d.check(events); err != nil {
		return Result{}, err
	}

	observability.IngestBatchSize.Observe(float64(len(events)))

	res := Result{Total: len(events)}
	for i, e := range events {
		if err := d.bus.Publish(ctx, d.topic, e); err != nil {
			observability.IngestEventsTotal.WithLabelValues("failed").Inc()
			d.logger.Error("failed to dispatch event",
				slog.Int("index", i),
				slog.String("cin", e.CIN),
				slog.String("error", err.Error()),
			)
			continue
		}
		observability.IngestEventsTotal.WithLabelValues("dispatched").Inc()
		res.Dispatched++
	}

	if res.Dispatched < res.Total {
		d.logger.Warn("batch partially dispatched",
			slog.Int("dispatched", res.Dispatched),
			slog.Int("total", res.Total),
		)
	}
	return res, nil
}

func (d *Dispatcher) check(events []*transaction.Event) error {
	if len(events) == 0 {
		observability.IngestBatchesRejected.WithLabelValues("empty").Inc()
		return ErrEmptyBatch
	}
	if len(events) > d.maxBatchSize {
		observability.IngestBatchesRejected.WithLabelValues("too_large").Inc()
		return fmt.Errorf("%w: %d events, maximum is %d", ErrBatchTooLarge, len(events), d.maxBatchSize)
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			observability.IngestBatchesRejected.WithLabelValues("invalid_event").Inc()
			return &EventError{Index: i, Err: err}
		}
	}
	return nil
}
