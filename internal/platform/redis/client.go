package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"credpass/internal/platform/config"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credpass_redis_pool_hits_total",
		Help: "Number of times a free connection was found in the pool",
	})
	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credpass_redis_pool_misses_total",
		Help: "Number of times a free connection was not found in the pool",
	})
	poolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credpass_redis_pool_timeouts_total",
		Help: "Number of times waiting for a connection timed out",
	})
	poolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "credpass_redis_pool_total_conns",
		Help: "Total connections in the pool",
	})
	poolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "credpass_redis_pool_idle_conns",
		Help: "Idle connections in the pool",
	})
)

// Client wraps go-redis with health checks and pool metrics. Both the
// issuance intent store and the Redis checkpoint store share one Client.
type Client struct {
	*redis.Client
	last *redis.PoolStats
}

// New connects to Redis. It returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// RecordPoolStats publishes the pool statistics gathered since the last call.
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	poolTotalConns.Set(float64(stats.TotalConns))
	poolIdleConns.Set(float64(stats.IdleConns))

	prev := c.last
	if prev == nil {
		prev = &redis.PoolStats{}
	}
	poolHits.Add(float64(delta(stats.Hits, prev.Hits)))
	poolMisses.Add(float64(delta(stats.Misses, prev.Misses)))
	poolTimeouts.Add(float64(delta(stats.Timeouts, prev.Timeouts)))
	c.last = stats
}

// RunPoolStats records pool statistics every interval until ctx is done.
func (c *Client) RunPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}

func delta(now, prev uint32) uint32 {
	if now < prev {
		return 0
	}
	return now - prev
}
