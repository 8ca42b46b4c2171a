package health

import (
	"context"
	"time"

	"github.com/solvio/solvio-core/internal/common/database"
)

// FuncChecker adapts a plain function into a Checker
type FuncChecker struct {
	name     string
	critical bool
	fn       func(ctx context.Context) Probe
}

func NewFuncChecker(name string, critical bool, fn func(ctx context.Context) Probe) *FuncChecker {
	return &FuncChecker{name: name, critical: critical, fn: fn}
}

func (f *FuncChecker) Name() string                    { return f.name }
func (f *FuncChecker) Critical() bool                  { return f.critical }
func (f *FuncChecker) Check(ctx context.Context) Probe { return f.fn(ctx) }

// NewPostgresChecker probes the database with a trivial query. Critical:
// without Postgres neither profiles nor the audit trail are reachable.
func NewPostgresChecker(db *database.PostgresDB) Checker {
	return NewFuncChecker("database", true, func(ctx context.Context) Probe {
		start := time.Now()
		var one int
		err := db.Pool.QueryRow(ctx, "SELECT 1").Scan(&one)
		return classify(time.Since(start), 500*time.Millisecond, err)
	})
}

// NewRedisChecker probes Redis with PING. Critical: the encrypted
// fingerprint store and provider session live there.
func NewRedisChecker(redis *database.RedisClient) Checker {
	return NewFuncChecker("redis", true, func(ctx context.Context) Probe {
		start := time.Now()
		err := redis.Client.Ping(ctx).Err()
		return classify(time.Since(start), 200*time.Millisecond, err)
	})
}

func classify(latency, slow time.Duration, err error) Probe {
	probe := Probe{
		Status:    StatusUp,
		LatencyMS: float64(latency.Milliseconds()),
	}
	if err != nil {
		probe.Status = StatusDown
		probe.Detail = err.Error()
		return probe
	}
	if latency > slow {
		probe.Status = StatusDegraded
		probe.Detail = "high latency"
	}
	return probe
}
