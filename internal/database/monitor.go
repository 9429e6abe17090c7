package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/vigil/internal/observability"
)

// RunPoolMonitor samples pool statistics into Prometheus every interval
// until ctx is cancelled. It blocks; run it in its own goroutine.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	record(pool.Stat())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record(pool.Stat())
		}
	}
}

func record(s *pgxpool.Stat) {
	observability.DBPoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))
	observability.DBPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	observability.DBPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	observability.DBPoolAcquireCount.Set(float64(s.AcquireCount()))
	observability.DBPoolAcquireDuration.Set(s.AcquireDuration().Seconds())
	observability.DBPoolWaitCount.Set(float64(s.EmptyAcquireCount()))
}
