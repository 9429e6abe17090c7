package alert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/vigil/internal/validation"
)

// RedisStreamSink appends alerts to a Redis Stream, trimming it to roughly
// maxLen entries.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	validation.AssertNotNil(client, "redis client")
	if stream == "" {
		panic("alert: stream key cannot be empty")
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string { return "redis" }

func (s *RedisStreamSink) Publish(ctx context.Context, a Alert) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":             a.ID,
			"ruleId":         strconv.FormatInt(a.RuleID, 10),
			"expression":     a.Expression,
			"description":    a.Description,
			"cin":            a.CIN,
			"debitAccount":   a.DebitAccount,
			"creditAccount":  a.CreditAccount,
			"amount":         a.Amount.String(),
			"transactedTime": a.TransactedTime.UTC().Format(time.RFC3339Nano),
			"detectedAt":     a.DetectedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
