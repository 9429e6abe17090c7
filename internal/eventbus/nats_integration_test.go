//go:build integration

package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/eventbus"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/testsupport"
)

func TestNATSBus_Integration(t *testing.T) {
	ctx := context.Background()
	natsCtr, err := testsupport.StartNATSContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = natsCtr.Terminate(ctx) })

	codec := transaction.NewCodec(transaction.FrameByteLength)

	t.Run("Should round-trip an event through the queue group", func(t *testing.T) {
		// Arrange
		bus, err := eventbus.ConnectNATS(natsCtr.Config, codec, time.Second, quietLogger)
		require.NoError(t, err)
		defer bus.Close(ctx)

		received := make(chan *transaction.Event, 1)
		require.NoError(t, bus.Subscribe(eventbus.TopicTransactionProcess, func(_ context.Context, e *transaction.Event) error {
			received <- e
			return nil
		}))
		sent := newEvent("CIN-nats", 42000)

		// Act
		err = bus.Publish(ctx, eventbus.TopicTransactionProcess, sent)

		// Assert
		require.NoError(t, err)
		select {
		case got := <-received:
			assert.True(t, sent.Equal(got))
		case <-time.After(5 * time.Second):
			t.Fatal("event was not delivered over nats")
		}
	})

	t.Run("Should deliver each event to one member of the queue group", func(t *testing.T) {
		// Arrange
		counts := make(chan string, 100)
		var buses []*eventbus.NATSBus
		for _, name := range []string{"a", "b"} {
			bus, err := eventbus.ConnectNATS(natsCtr.Config, codec, time.Second, quietLogger)
			require.NoError(t, err)
			buses = append(buses, bus)
			member := name
			require.NoError(t, bus.Subscribe("transaction.queue", func(context.Context, *transaction.Event) error {
				counts <- member
				return nil
			}))
		}
		defer func() {
			for _, b := range buses {
				_ = b.Close(ctx)
			}
		}()

		// Act
		for i := range int64(20) {
			require.NoError(t, buses[0].Publish(ctx, "transaction.queue", newEvent("CIN-q", i)))
		}

		// Assert
		require.Eventually(t, func() bool { return len(counts) == 20 }, 5*time.Second, 20*time.Millisecond)
		time.Sleep(200 * time.Millisecond)
		assert.Len(t, counts, 20, "no event is handled twice")
	})

	t.Run("Should reject publishes after close", func(t *testing.T) {
		bus, err := eventbus.ConnectNATS(natsCtr.Config, codec, time.Second, quietLogger)
		require.NoError(t, err)
		require.True(t, bus.Conn().IsConnected())

		require.NoError(t, bus.Close(ctx))
		err = bus.Publish(ctx, "t", newEvent("CIN-1", 1))

		assert.ErrorIs(t, err, eventbus.ErrBusClosed)
	})
}
