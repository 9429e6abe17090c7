package transaction

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// CodecName identifies the event wire format on transports that carry a codec header.
const CodecName = "transaction-event-codec"

// MaxFrameSize bounds a single encoded event, prefix excluded.
const MaxFrameSize = 1 << 20

const prefixSize = 4

// Framing selects how the 4-byte length prefix is computed.
type Framing int

const (
	// FrameByteLength prefixes the encoded byte count. Any UTF-8 content round-trips.
	FrameByteLength Framing = iota
	// FrameLegacyCharCount prefixes the character count, as older producers did.
	// Only ASCII content is accepted because that is where characters and bytes agree.
	FrameLegacyCharCount
)

// ParseFraming maps a configuration value ("bytes", "legacy") to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "bytes":
		return FrameByteLength, nil
	case "legacy":
		return FrameLegacyCharCount, nil
	default:
		return 0, fmt.Errorf("unknown framing %q", s)
	}
}

func (f Framing) String() string {
	if f == FrameLegacyCharCount {
		return "legacy"
	}
	return "bytes"
}

var (
	ErrFrameTooShort = errors.New("frame shorter than length prefix")
	ErrFrameLength   = errors.New("frame length prefix does not match payload")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrNonASCII      = errors.New("legacy framing requires ASCII content")
)

// wireEvent is the self-describing document carried inside a frame.
// Amount travels as a decimal string so no precision is lost in transit.
type wireEvent struct {
	DebitAccount   string `json:"debitAccount"`
	CreditAccount  string `json:"creditAccount"`
	CIN            string `json:"cin"`
	Amount         string `json:"amount"`
	TransactedTime string `json:"transactedTime"`
}

// Codec encodes events into length-prefixed frames and back.
// It is stateless and safe for concurrent use.
type Codec struct {
	framing Framing
}

// NewCodec returns a codec using the given framing.
func NewCodec(framing Framing) *Codec {
	return &Codec{framing: framing}
}

// Framing returns the framing this codec writes and expects.
func (c *Codec) Framing() Framing {
	return c.framing
}

// Encode validates e and returns its frame.
func (c *Codec) Encode(e *Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(wireEvent{
		DebitAccount:   e.DebitAccount,
		CreditAccount:  e.CreditAccount,
		CIN:            e.CIN,
		Amount:         e.Amount.String(),
		TransactedTime: e.TransactedTime.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	if len(doc) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	// json.Marshal leaves non-ASCII runes as raw UTF-8, so the document can be checked directly.
	// For ASCII the character count equals the byte count.
	if c.framing == FrameLegacyCharCount && !isASCII(doc) {
		return nil, ErrNonASCII
	}

	frame := make([]byte, prefixSize+len(doc))
	binary.BigEndian.PutUint32(frame, uint32(len(doc)))
	copy(frame[prefixSize:], doc)
	return frame, nil
}

// Decode parses a complete frame and validates the resulting event.
func (c *Codec) Decode(frame []byte) (*Event, error) {
	if len(frame) < prefixSize {
		return nil, ErrFrameTooShort
	}

	length := int(binary.BigEndian.Uint32(frame))
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	doc := frame[prefixSize:]
	if c.framing == FrameLegacyCharCount && !isASCII(doc) {
		return nil, ErrNonASCII
	}
	if length != len(doc) {
		return nil, fmt.Errorf("%w: prefix %d, payload %d", ErrFrameLength, length, len(doc))
	}

	var w wireEvent
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	e := &Event{
		DebitAccount:  w.DebitAccount,
		CreditAccount: w.CreditAccount,
		CIN:           w.CIN,
	}

	if w.Amount != "" {
		amount, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: amount: %v", ErrInvalidEvent, err)
		}
		e.Amount = amount
	}

	if w.TransactedTime != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.TransactedTime)
		if err != nil {
			return nil, fmt.Errorf("%w: transactedTime: %v", ErrInvalidEvent, err)
		}
		e.TransactedTime = ts
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
