package alert

import (
	"context"
	"log/slog"
	"time"
)

// LogSink writes each alert as a structured WARN record with the message "ALERT".
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, a Alert) error {
	s.logger.LogAttrs(ctx, slog.LevelWarn, "ALERT",
		slog.String("alert_id", a.ID),
		slog.Int64("rule_id", a.RuleID),
		slog.String("expression", a.Expression),
		slog.String("description", a.Description),
		slog.String("cin", a.CIN),
		slog.String("debit_account", a.DebitAccount),
		slog.String("credit_account", a.CreditAccount),
		slog.String("amount", a.Amount.String()),
		slog.String("transacted_time", a.TransactedTime.Format(time.RFC3339Nano)),
	)
	return nil
}
