package config

import (
	"fmt"
	"time"
)

// Event transports.
const (
	TransportLocal = "local"
	TransportNATS  = "nats"
)

// Wire framings.
const (
	FramingBytes  = "bytes"
	FramingLegacy = "legacy"
)

// EventsConfig configures batch ingestion and the internal event channel.
type EventsConfig struct {
	Transport    string `envconfig:"TRANSPORT" default:"local" validate:"oneof=local nats"`
	Topic        string `envconfig:"TOPIC" default:"transaction.process"`
	MaxBatchSize int    `envconfig:"MAX_BATCH_SIZE" default:"1000" validate:"min=1"`
	Framing      string `envconfig:"FRAMING" default:"bytes" validate:"oneof=bytes legacy"`

	// In-process transport
	Workers     int           `envconfig:"WORKERS" default:"4" validate:"min=1"`
	QueueSize   int           `envconfig:"QUEUE_SIZE" default:"1024" validate:"min=1"`
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"5s" validate:"gt=0"`

	// HandlerTimeout bounds the processing of one event by a consumer.
	HandlerTimeout time.Duration `envconfig:"HANDLER_TIMEOUT" default:"10s" validate:"gt=0"`
}

// Validate checks EventsConfig fields for correctness.
func (c *EventsConfig) Validate() error {
	return validateNoWhitespace(c.Topic, fmt.Sprintf("events topic %q", c.Topic))
}
