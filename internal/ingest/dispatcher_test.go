package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/eventbus"
	"github.com/rafaeljc/vigil/internal/ingest"
	"github.com/rafaeljc/vigil/internal/testsupport"
	"github.com/rafaeljc/vigil/internal/transaction"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingBus is an eventbus.Bus that records publishes and can fail chosen ones.
type recordingBus struct {
	mu        sync.Mutex
	published []*transaction.Event
	topics    []string
	failCIN   string
}

func (b *recordingBus) Publish(_ context.Context, topic string, e *transaction.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.CIN == b.failCIN {
		return errors.New("queue full")
	}
	b.published = append(b.published, e)
	b.topics = append(b.topics, topic)
	return nil
}

func (b *recordingBus) Subscribe(string, eventbus.Handler) error { return nil }
func (b *recordingBus) Close(context.Context) error              { return nil }

func validEvent(cin string) *transaction.Event {
	return &transaction.Event{
		DebitAccount:   "ACC-001",
		CreditAccount:  "ACC-002",
		CIN:            cin,
		Amount:         decimal.RequireFromString("250.75"),
		TransactedTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func batch(n int) []*transaction.Event {
	events := make([]*transaction.Event, n)
	for i := range events {
		events[i] = validEvent("CIN-1")
	}
	return events
}

func TestNewDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("Should panic without a bus", func(t *testing.T) {
		assert.Panics(t, func() { ingest.NewDispatcher(quietLogger, nil, 10) })
	})

	t.Run("Should default the maximum batch size", func(t *testing.T) {
		d := ingest.NewDispatcher(quietLogger, &recordingBus{}, 0)
		assert.Equal(t, ingest.DefaultMaxBatchSize, d.MaxBatchSize())
	})

	t.Run("Should keep the default topic when the override is empty", func(t *testing.T) {
		d := ingest.NewDispatcher(quietLogger, &recordingBus{}, 1).WithTopic("")
		assert.Equal(t, eventbus.TopicTransactionProcess, d.Topic())
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should publish every event on the process topic", func(t *testing.T) {
		// Arrange
		bus := &recordingBus{}
		d := ingest.NewDispatcher(quietLogger, bus, 10)

		// Act
		res, err := d.Dispatch(ctx, batch(3))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, ingest.Result{Dispatched: 3, Total: 3}, res)
		assert.Equal(t, []string{"transaction.process", "transaction.process", "transaction.process"}, bus.topics)
	})

	t.Run("Should publish on an overridden topic", func(t *testing.T) {
		bus := &recordingBus{}
		d := ingest.NewDispatcher(quietLogger, bus, 10).WithTopic("payments.screen")

		_, err := d.Dispatch(ctx, batch(1))

		require.NoError(t, err)
		assert.Equal(t, []string{"payments.screen"}, bus.topics)
	})

	t.Run("Should accept a batch of exactly the maximum size", func(t *testing.T) {
		d := ingest.NewDispatcher(quietLogger, &recordingBus{}, 5)

		res, err := d.Dispatch(ctx, batch(5))

		require.NoError(t, err)
		assert.Equal(t, 5, res.Dispatched)
	})

	t.Run("Should report partial dispatch when some publishes fail", func(t *testing.T) {
		bus := &recordingBus{failCIN: "CIN-bad"}
		d := ingest.NewDispatcher(quietLogger, bus, 10)
		events := []*transaction.Event{validEvent("CIN-1"), validEvent("CIN-bad"), validEvent("CIN-2")}

		testsupport.AssertMetricDelta(t, "vigil_ingest_events_total", map[string]string{"outcome": "failed"}, 1, func() {
			res, err := d.Dispatch(ctx, events)

			require.NoError(t, err)
			assert.Equal(t, ingest.Result{Dispatched: 2, Total: 3}, res)
		})
	})

	rejections := []struct {
		name   string
		events []*transaction.Event
		reason string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "Should reject an empty batch",
			events: nil,
			reason: "empty",
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ingest.ErrEmptyBatch) },
		},
		{
			name:   "Should reject a batch over the maximum",
			events: batch(6),
			reason: "too_large",
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ingest.ErrBatchTooLarge) },
		},
		{
			name: "Should reject the whole batch when one event is invalid",
			events: []*transaction.Event{
				validEvent("CIN-1"),
				{DebitAccount: "A", CreditAccount: "B", CIN: "  ", Amount: decimal.NewFromInt(1), TransactedTime: time.Now()},
			},
			reason: "invalid_event",
			check: func(t *testing.T, err error) {
				var eventErr *ingest.EventError
				require.ErrorAs(t, err, &eventErr)
				assert.Equal(t, 1, eventErr.Index)
				assert.ErrorIs(t, err, transaction.ErrInvalidEvent)
				assert.Contains(t, err.Error(), "cin cannot be null or blank")
			},
		},
		{
			name:   "Should reject a nil event",
			events: []*transaction.Event{nil},
			reason: "invalid_event",
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, transaction.ErrInvalidEvent) },
		},
	}

	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			bus := &recordingBus{}
			d := ingest.NewDispatcher(quietLogger, bus, 5)

			// Act
			var err error
			testsupport.AssertMetricDelta(t, "vigil_ingest_batches_rejected_total", map[string]string{"reason": tt.reason}, 1, func() {
				_, err = d.Dispatch(ctx, tt.events)
			})

			// Assert
			tt.check(t, err)
			assert.Empty(t, bus.published, "nothing is published from a rejected batch")
		})
	}
}
