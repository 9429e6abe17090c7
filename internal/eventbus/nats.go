package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rafaeljc/vigil/internal/config"
	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

const transportNATS = "nats"

// NATSBus publishes codec frames as NATS messages. Subscribers join a queue
// group, so each event is handled by exactly one running instance.
type NATSBus struct {
	logger         *slog.Logger
	codec          *transaction.Codec
	conn           *nats.Conn
	queueGroup     string
	handlerTimeout time.Duration
	closed         chan struct{}
}

// ConnectNATS dials the servers in cfg.URL.
func ConnectNATS(cfg *config.NATSConfig, codec *transaction.Codec, handlerTimeout time.Duration, logger *slog.Logger) (*NATSBus, error) {
	validation.AssertNotNil(cfg, "nats config")
	validation.AssertNotNil(codec, "codec")
	if logger == nil {
		logger = slog.Default()
	}
	if handlerTimeout <= 0 {
		handlerTimeout = 10 * time.Second
	}

	b := &NATSBus{
		logger:         logger,
		codec:          codec,
		queueGroup:     cfg.QueueGroup,
		handlerTimeout: handlerTimeout,
		closed:         make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.PingInterval(cfg.PingInterval),
		nats.DrainTimeout(cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrlRedacted()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(b.closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", slog.String("subject", subject), slog.String("error", err.Error()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(strings.TrimSpace(cfg.URL), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	b.conn = conn

	logger.Info("connected to nats",
		slog.String("url", conn.ConnectedUrlRedacted()),
		slog.String("queue_group", cfg.QueueGroup),
	)
	return b, nil
}

// Conn exposes the connection for health checks.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

func (b *NATSBus) Publish(ctx context.Context, topic string, e *transaction.Event) error {
	err := b.publish(ctx, topic, e)
	if err != nil {
		observability.BusPublishTotal.WithLabelValues(transportNATS, "fail").Inc()
		return err
	}
	observability.BusPublishTotal.WithLabelValues(transportNATS, "success").Inc()
	return nil
}

func (b *NATSBus) publish(ctx context.Context, topic string, e *transaction.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.conn.IsClosed() || b.conn.IsDraining() {
		return ErrBusClosed
	}

	frame, err := b.codec.Encode(e)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(topic, frame); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(topic string, h Handler) error {
	_, err := b.conn.QueueSubscribe(topic, b.queueGroup, func(msg *nats.Msg) {
		b.deliver(msg, h)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	return b.conn.Flush()
}

func (b *NATSBus) deliver(msg *nats.Msg, h Handler) {
	e, err := b.codec.Decode(msg.Data)
	if err != nil {
		observability.BusHandlerErrors.WithLabelValues(transportNATS).Inc()
		b.logger.Error("dropping undecodable message",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.handlerTimeout)
	defer cancel()

	if err := h(ctx, e); err != nil {
		observability.BusHandlerErrors.WithLabelValues(transportNATS).Inc()
		b.logger.Error("event handler failed",
			slog.String("subject", msg.Subject),
			slog.String("cin", e.CIN),
			slog.String("error", err.Error()),
		)
	}
}

// Close drains subscriptions and pending publishes, then waits for the
// connection to close until ctx is done.
func (b *NATSBus) Close(ctx context.Context) error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}

	select {
	case <-b.closed:
		return nil
	case <-ctx.Done():
		b.conn.Close()
		return fmt.Errorf("nats drain interrupted: %w", ctx.Err())
	}
}
