package transaction

import (
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec(FrameByteLength)

	tests := []struct {
		name  string
		event *Event
	}{
		{name: "Should round-trip a typical event", event: validEvent()},
		{
			name: "Should preserve arbitrary precision and nanoseconds",
			event: &Event{
				DebitAccount:   "SUSP-77",
				CreditAccount:  "OFF-SHORE-1",
				CIN:            "VIP-42",
				Amount:         decimal.RequireFromString("98765432109876543210.123456789"),
				TransactedTime: time.Date(2023, 12, 31, 23, 59, 59, 123456789, time.UTC),
			},
		},
		{
			name: "Should round-trip multi-byte text with byte-length framing",
			event: &Event{
				DebitAccount:   "Zoë-Account",
				CreditAccount:  "账户-2",
				CIN:            "CIN-Ω",
				Amount:         decimal.RequireFromString("-12.5"),
				TransactedTime: time.Unix(0, 0).UTC(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			frame, err := codec.Encode(tt.event)
			require.NoError(t, err)
			decoded, err := codec.Decode(frame)

			// Assert
			require.NoError(t, err)
			assert.True(t, tt.event.Equal(decoded), "want %+v, got %+v", tt.event, decoded)
			assert.Equal(t, uint32(len(frame)-4), binary.BigEndian.Uint32(frame))
		})
	}
}

func TestCodec_RoundTripRandomASCII(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_ .\"\\/"
	randText := func() string {
		b := make([]byte, 1+rng.Intn(24))
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		// leading letter keeps the field non-blank
		b[0] = 'X'
		return string(b)
	}

	for _, framing := range []Framing{FrameByteLength, FrameLegacyCharCount} {
		codec := NewCodec(framing)
		for range 200 {
			e := &Event{
				DebitAccount:   randText(),
				CreditAccount:  randText(),
				CIN:            randText(),
				Amount:         decimal.New(rng.Int63n(1_000_000_000), -int32(rng.Intn(6))),
				TransactedTime: time.Unix(rng.Int63n(4_000_000_000), rng.Int63n(1_000_000_000)),
			}

			frame, err := codec.Encode(e)
			require.NoError(t, err)
			decoded, err := codec.Decode(frame)
			require.NoError(t, err)
			require.True(t, e.Equal(decoded), "framing %s: want %+v, got %+v", framing, e, decoded)
		}
	}
}

func TestCodec_Document(t *testing.T) {
	t.Parallel()

	frame, err := NewCodec(FrameByteLength).Encode(validEvent())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(frame[4:], &doc))

	assert.Equal(t, "ACC-001", doc["debitAccount"])
	assert.Equal(t, "15000", doc["amount"], "amount travels as a decimal string")
	assert.Equal(t, "2024-01-15T10:30:00Z", doc["transactedTime"])
}

func TestCodec_Errors(t *testing.T) {
	t.Parallel()

	codec := NewCodec(FrameByteLength)
	good, err := codec.Encode(validEvent())
	require.NoError(t, err)

	frameOf := func(doc string) []byte {
		f := make([]byte, 4+len(doc))
		binary.BigEndian.PutUint32(f, uint32(len(doc)))
		copy(f[4:], doc)
		return f
	}

	t.Run("Should reject a frame shorter than the prefix", func(t *testing.T) {
		t.Parallel()
		_, err := codec.Decode([]byte{0, 0})
		assert.ErrorIs(t, err, ErrFrameTooShort)
	})

	t.Run("Should reject a truncated payload", func(t *testing.T) {
		t.Parallel()
		_, err := codec.Decode(good[:len(good)-3])
		assert.ErrorIs(t, err, ErrFrameLength)
	})

	t.Run("Should reject an oversized prefix", func(t *testing.T) {
		t.Parallel()
		f := append([]byte(nil), good...)
		binary.BigEndian.PutUint32(f, MaxFrameSize+1)
		_, err := codec.Decode(f)
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		t.Parallel()
		_, err := codec.Decode(frameOf(`{"debitAccount":`))
		assert.Error(t, err)
	})

	t.Run("Should reject a decoded event with blank fields", func(t *testing.T) {
		t.Parallel()
		_, err := codec.Decode(frameOf(`{"debitAccount":"A","creditAccount":"B","cin":" ","amount":"1","transactedTime":"2024-01-15T10:30:00Z"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("Should reject a bad amount", func(t *testing.T) {
		t.Parallel()
		_, err := codec.Decode(frameOf(`{"debitAccount":"A","creditAccount":"B","cin":"C","amount":"1e","transactedTime":"2024-01-15T10:30:00Z"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("Should refuse to encode an invalid event", func(t *testing.T) {
		t.Parallel()
		e := validEvent()
		e.CIN = ""
		_, err := codec.Encode(e)
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestCodec_LegacyFraming(t *testing.T) {
	t.Parallel()

	legacy := NewCodec(FrameLegacyCharCount)

	t.Run("Should reject non-ASCII content at encode time", func(t *testing.T) {
		t.Parallel()
		e := validEvent()
		e.DebitAccount = "Zoë"
		_, err := legacy.Encode(e)
		assert.ErrorIs(t, err, ErrNonASCII)
	})

	t.Run("Should reject non-ASCII frames at decode time", func(t *testing.T) {
		t.Parallel()
		e := validEvent()
		e.DebitAccount = "Zoë"
		frame, err := NewCodec(FrameByteLength).Encode(e)
		require.NoError(t, err)

		_, err = legacy.Decode(frame)
		assert.ErrorIs(t, err, ErrNonASCII)
	})

	t.Run("Should interoperate with byte framing for ASCII", func(t *testing.T) {
		t.Parallel()
		frame, err := legacy.Encode(validEvent())
		require.NoError(t, err)

		decoded, err := NewCodec(FrameByteLength).Decode(frame)
		require.NoError(t, err)
		assert.True(t, validEvent().Equal(decoded))
	})
}

func TestParseFraming(t *testing.T) {
	t.Parallel()

	f, err := ParseFraming("legacy")
	require.NoError(t, err)
	assert.Equal(t, FrameLegacyCharCount, f)

	f, err = ParseFraming("")
	require.NoError(t, err)
	assert.Equal(t, FrameByteLength, f)

	_, err = ParseFraming("utf16")
	assert.Error(t, err)
}
