// Package health provides the readiness checks for vigil's dependencies.
// Each checker satisfies observability.Checker.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Remote checks get their own bound in case the probe context is loose.
const pingTimeout = 2 * time.Second

var (
	ErrNoRulesLoaded   = errors.New("no rules loaded")
	ErrNoRulesCompiled = errors.New("rules loaded but none compiled successfully")
)

// RuleCatalog reports how many rules the service currently holds.
type RuleCatalog interface {
	CachedRules() int
	CompiledRules() int
}

// RuleCacheChecker is down until at least one rule is loaded and compiled.
type RuleCacheChecker struct {
	catalog RuleCatalog
}

func NewRuleCacheChecker(catalog RuleCatalog) *RuleCacheChecker {
	return &RuleCacheChecker{catalog: catalog}
}

func (c *RuleCacheChecker) Name() string { return "rule-cache" }

func (c *RuleCacheChecker) Check(_ context.Context) error {
	if c.catalog.CachedRules() == 0 {
		return ErrNoRulesLoaded
	}
	if c.catalog.CompiledRules() == 0 {
		return ErrNoRulesCompiled
	}
	return nil
}

// PostgresChecker pings the rule database pool.
type PostgresChecker struct {
	pool *pgxpool.Pool
}

func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

func (c *PostgresChecker) Name() string { return "postgres" }

func (c *PostgresChecker) Check(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return c.pool.Ping(ctx)
}

// RedisChecker pings the alert sink's Redis client.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return c.client.Ping(ctx).Err()
}

// NATSChecker reports the event bus connection state. It does not round-trip
// to the server; nats.go already tracks liveness with its own pings.
type NATSChecker struct {
	conn *nats.Conn
}

func NewNATSChecker(conn *nats.Conn) *NATSChecker {
	return &NATSChecker{conn: conn}
}

func (c *NATSChecker) Name() string { return "nats" }

func (c *NATSChecker) Check(_ context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("nats connection is nil")
	}
	if !c.conn.IsConnected() {
		return fmt.Errorf("nats connection is %s", c.conn.Status())
	}
	return nil
}
