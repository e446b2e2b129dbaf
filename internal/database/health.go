package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

// PostgresPinger pings the pool.
func PostgresPinger(pool *pgxpool.Pool) Pinger {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

// RedisPinger pings the client.
func RedisPinger(rdb *redis.Client) Pinger {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// Check runs every pinger and reports "ok" or the error text per name.
func Check(ctx context.Context, pingers map[string]Pinger) (map[string]string, bool) {
	out := make(map[string]string, len(pingers))
	healthy := true
	for name, ping := range pingers {
		if err := ping(ctx); err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}
