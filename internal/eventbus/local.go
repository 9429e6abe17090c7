package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

const transportLocal = "local"

// LocalConfig sizes the in-process transport.
type LocalConfig struct {
	Workers        int
	QueueSize      int
	SendTimeout    time.Duration
	HandlerTimeout time.Duration
}

type envelope struct {
	topic   string
	frame   []byte
	handler Handler
}

// LocalBus is an in-process transport. Events are spread over a fixed set of
// partitions by a murmur3 hash of the customer id, so one customer's events are
// handled in publish order. Each partition has one worker.
type LocalBus struct {
	logger     *slog.Logger
	codec      *transaction.Codec
	cfg        LocalConfig
	partitions []chan envelope

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	wg sync.WaitGroup
}

// NewLocalBus starts cfg.Workers partition workers.
func NewLocalBus(logger *slog.Logger, codec *transaction.Codec, cfg LocalConfig) *LocalBus {
	validation.AssertNotNil(codec, "codec")
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Workers = max(cfg.Workers, 1)
	cfg.QueueSize = max(cfg.QueueSize, 1)
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}

	b := &LocalBus{
		logger:     logger,
		codec:      codec,
		cfg:        cfg,
		partitions: make([]chan envelope, cfg.Workers),
		handlers:   make(map[string]Handler),
	}

	perPartition := max(cfg.QueueSize/cfg.Workers, 1)
	for i := range b.partitions {
		ch := make(chan envelope, perPartition)
		b.partitions[i] = ch
		b.wg.Add(1)
		go b.work(i, ch)
	}
	return b
}

func (b *LocalBus) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.handlers[topic]; exists {
		return fmt.Errorf("topic %q already has a handler", topic)
	}
	b.handlers[topic] = h
	return nil
}

func (b *LocalBus) Publish(ctx context.Context, topic string, e *transaction.Event) error {
	err := b.publish(ctx, topic, e)
	if err != nil {
		observability.BusPublishTotal.WithLabelValues(transportLocal, "fail").Inc()
		return err
	}
	observability.BusPublishTotal.WithLabelValues(transportLocal, "success").Inc()
	return nil
}

func (b *LocalBus) publish(ctx context.Context, topic string, e *transaction.Event) error {
	frame, err := b.codec.Encode(e)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	h, ok := b.handlers[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, topic)
	}

	env := envelope{topic: topic, frame: frame, handler: h}
	ch := b.partitions[b.partition(e.CIN)]

	timer := time.NewTimer(b.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case ch <- env:
		observability.BusQueueDepth.Inc()
		return nil
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBus) partition(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(b.partitions)))
}

func (b *LocalBus) work(id int, ch <-chan envelope) {
	defer b.wg.Done()

	for env := range ch {
		observability.BusQueueDepth.Dec()
		b.deliver(id, env)
	}
}

func (b *LocalBus) deliver(id int, env envelope) {
	e, err := b.codec.Decode(env.frame)
	if err != nil {
		observability.BusHandlerErrors.WithLabelValues(transportLocal).Inc()
		b.logger.Error("dropping undecodable frame",
			slog.String("topic", env.topic),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HandlerTimeout)
	defer cancel()

	if err := env.handler(ctx, e); err != nil {
		observability.BusHandlerErrors.WithLabelValues(transportLocal).Inc()
		b.logger.Error("event handler failed",
			slog.String("topic", env.topic),
			slog.Int("partition", id),
			slog.String("cin", e.CIN),
			slog.String("error", err.Error()),
		)
	}
}

// Close stops new publishes, lets the workers drain their queues and waits
// for them until ctx is done.
func (b *LocalBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, ch := range b.partitions {
		close(ch)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus drain interrupted: %w", ctx.Err())
	}
}
