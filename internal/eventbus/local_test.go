package eventbus_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/eventbus"
	"github.com/rafaeljc/vigil/internal/testsupport"
	"github.com/rafaeljc/vigil/internal/transaction"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEvent(cin string, amount int64) *transaction.Event {
	return &transaction.Event{
		DebitAccount:   "ACC-001",
		CreditAccount:  "ACC-002",
		CIN:            cin,
		Amount:         decimal.NewFromInt(amount),
		TransactedTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func newLocalBus(t *testing.T, cfg eventbus.LocalConfig) *eventbus.LocalBus {
	t.Helper()
	bus := eventbus.NewLocalBus(quietLogger, transaction.NewCodec(transaction.FrameByteLength), cfg)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func TestLocalBus_Publish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Should deliver the decoded event to the subscriber", func(t *testing.T) {
		t.Parallel()
		bus := newLocalBus(t, eventbus.LocalConfig{Workers: 2, QueueSize: 8})
		received := make(chan *transaction.Event, 1)
		require.NoError(t, bus.Subscribe(eventbus.TopicTransactionProcess, func(_ context.Context, e *transaction.Event) error {
			received <- e
			return nil
		}))
		sent := newEvent("CIN-1", 15000)

		err := bus.Publish(ctx, eventbus.TopicTransactionProcess, sent)

		require.NoError(t, err)
		select {
		case got := <-received:
			assert.True(t, sent.Equal(got))
			assert.NotSame(t, sent, got)
		case <-time.After(2 * time.Second):
			t.Fatal("event was not delivered")
		}
	})

	t.Run("Should fail when nothing subscribes to the topic", func(t *testing.T) {
		t.Parallel()
		bus := newLocalBus(t, eventbus.LocalConfig{})

		err := bus.Publish(ctx, "unknown.topic", newEvent("CIN-1", 1))

		assert.ErrorIs(t, err, eventbus.ErrNoHandler)
	})

	t.Run("Should refuse a second handler for the same topic", func(t *testing.T) {
		t.Parallel()
		bus := newLocalBus(t, eventbus.LocalConfig{})
		noop := func(context.Context, *transaction.Event) error { return nil }
		require.NoError(t, bus.Subscribe("t", noop))

		err := bus.Subscribe("t", noop)

		assert.Error(t, err)
	})

	t.Run("Should reject non-ASCII events under legacy framing", func(t *testing.T) {
		t.Parallel()
		bus := eventbus.NewLocalBus(quietLogger, transaction.NewCodec(transaction.FrameLegacyCharCount), eventbus.LocalConfig{})
		t.Cleanup(func() { _ = bus.Close(ctx) })
		require.NoError(t, bus.Subscribe("t", func(context.Context, *transaction.Event) error { return nil }))

		err := bus.Publish(ctx, "t", newEvent("CIN-é", 1))

		assert.ErrorIs(t, err, transaction.ErrNonASCII)
	})

	t.Run("Should keep publish order for one customer", func(t *testing.T) {
		t.Parallel()
		bus := newLocalBus(t, eventbus.LocalConfig{Workers: 4, QueueSize: 256})
		var mu sync.Mutex
		var amounts []int64
		require.NoError(t, bus.Subscribe("t", func(_ context.Context, e *transaction.Event) error {
			mu.Lock()
			defer mu.Unlock()
			amounts = append(amounts, e.Amount.IntPart())
			return nil
		}))

		for i := range int64(100) {
			require.NoError(t, bus.Publish(ctx, "t", newEvent("CIN-ordered", i)))
		}

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(amounts) == 100
		}, 2*time.Second, 10*time.Millisecond)
		for i, a := range amounts {
			assert.Equal(t, int64(i), a)
		}
	})

	t.Run("Should time out when the partition queue stays full", func(t *testing.T) {
		t.Parallel()
		bus := newLocalBus(t, eventbus.LocalConfig{Workers: 1, QueueSize: 1, SendTimeout: 20 * time.Millisecond})
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		require.NoError(t, bus.Subscribe("t", func(context.Context, *transaction.Event) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		}))
		defer close(release)

		require.NoError(t, bus.Publish(ctx, "t", newEvent("CIN-1", 1)))
		<-started
		require.NoError(t, bus.Publish(ctx, "t", newEvent("CIN-1", 2)))

		err := bus.Publish(ctx, "t", newEvent("CIN-1", 3))

		assert.ErrorIs(t, err, eventbus.ErrPublishTimeout)
	})

	t.Run("Should count handler failures", func(t *testing.T) {
		bus := newLocalBus(t, eventbus.LocalConfig{})
		require.NoError(t, bus.Subscribe("t", func(context.Context, *transaction.Event) error {
			return errors.New("boom")
		}))

		testsupport.AssertMetricDeltaAsync(t, "vigil_eventbus_handler_errors_total", map[string]string{"transport": "local"}, 1, func() {
			require.NoError(t, bus.Publish(ctx, "t", newEvent("CIN-1", 1)))
		})
	})
}

func TestLocalBus_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Should handle queued events before returning", func(t *testing.T) {
		t.Parallel()
		bus := eventbus.NewLocalBus(quietLogger, transaction.NewCodec(transaction.FrameByteLength), eventbus.LocalConfig{Workers: 2, QueueSize: 64})
		var mu sync.Mutex
		handled := 0
		require.NoError(t, bus.Subscribe("t", func(context.Context, *transaction.Event) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			handled++
			mu.Unlock()
			return nil
		}))
		for i := range int64(20) {
			require.NoError(t, bus.Publish(ctx, "t", newEvent(fmt.Sprintf("CIN-%d", i), i)))
		}

		err := bus.Close(ctx)

		require.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 20, handled)
	})

	t.Run("Should reject publishes after close", func(t *testing.T) {
		t.Parallel()
		bus := eventbus.NewLocalBus(quietLogger, transaction.NewCodec(transaction.FrameByteLength), eventbus.LocalConfig{})
		require.NoError(t, bus.Subscribe("t", func(context.Context, *transaction.Event) error { return nil }))
		require.NoError(t, bus.Close(ctx))

		err := bus.Publish(ctx, "t", newEvent("CIN-1", 1))

		assert.ErrorIs(t, err, eventbus.ErrBusClosed)
		assert.NoError(t, bus.Close(ctx), "closing twice is a no-op")
	})
}
