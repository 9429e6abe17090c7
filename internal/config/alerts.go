package config

// Alert sinks.
const (
	AlertSinkLog   = "log"
	AlertSinkRedis = "redis"
)

// AlertsConfig configures where matched-rule alerts are published.
type AlertsConfig struct {
	Sink      string `envconfig:"SINK" default:"log" validate:"oneof=log redis"`
	StreamKey string `envconfig:"STREAM_KEY" default:"vigil:alerts" validate:"required"`
	// MaxLen caps the Redis stream (approximate trimming).
	MaxLen int64 `envconfig:"MAX_LEN" default:"100000" validate:"min=1"`
}
