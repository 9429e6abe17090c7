//go:build integration

package alert_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/alert"
	"github.com/rafaeljc/vigil/internal/testsupport"
)

func TestRedisStreamSink_Integration(t *testing.T) {
	ctx := context.Background()
	rc, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Terminate(ctx) })

	t.Run("Should append the alert to the stream", func(t *testing.T) {
		// Arrange
		sink := alert.NewRedisStreamSink(rc.Client, "vigil:alerts:test", 100)
		a := sampleAlert()

		// Act
		err := sink.Publish(ctx, a)

		// Assert
		require.NoError(t, err)
		entries, err := rc.Client.XRange(ctx, "vigil:alerts:test", "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		values := entries[0].Values
		assert.Equal(t, a.ID, values["id"])
		assert.Equal(t, "2", values["ruleId"])
		assert.Equal(t, "75000.5", values["amount"])
		assert.Equal(t, "2024-01-15T10:30:00Z", values["transactedTime"])
	})

	t.Run("Should trim the stream near its maximum length", func(t *testing.T) {
		sink := alert.NewRedisStreamSink(rc.Client, "vigil:alerts:trim", 10)

		for range 500 {
			require.NoError(t, sink.Publish(ctx, sampleAlert()))
		}

		length, err := rc.Client.XLen(ctx, "vigil:alerts:trim").Result()
		require.NoError(t, err)
		assert.Less(t, length, int64(500))
	})

	t.Run("Should fail once the client is closed", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: rc.Config.Address()})
		sink := alert.NewRedisStreamSink(client, "vigil:alerts:closed", 10)
		require.NoError(t, client.Close())

		err := sink.Publish(ctx, sampleAlert())

		assert.Error(t, err)
	})
}
