package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	t.Parallel()

	t.Run("Should return the injected logger instance when present", func(t *testing.T) {
		// Arrange
		expected := slog.New(slog.NewJSONHandler(io.Discard, nil))

		// Act
		got := FromContext(WithContext(context.Background(), expected))

		// Assert
		assert.Same(t, expected, got)
	})

	t.Run("Should fall back to the default logger when context is empty", func(t *testing.T) {
		assert.Same(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("Should enrich the stored logger", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		base := slog.New(slog.NewJSONHandler(&buf, nil))
		ctx := WithContext(context.Background(), base)

		// Act
		ctx = With(ctx, "request_id", "abc")
		FromContext(ctx).Info("enriched")

		// Assert
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "abc", entry["request_id"])
	})
}
