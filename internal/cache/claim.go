// Package cache holds the Redis-backed delivery claim that keeps several
// poll loop replicas from dispatching the same alarm twice.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimPrefix = "agenda:alarm:"

type Claimer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient parses a redis:// URL and checks the server is reachable.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// ClaimTTL covers a whole alert window (2 × tolerance) plus one missed poll tick.
func ClaimTTL(tolerance, pollInterval time.Duration) time.Duration {
	return 2*tolerance + pollInterval
}

// NewClaimer keeps each claim for ttl, which should outlive the alert window.
func NewClaimer(client *redis.Client, ttl time.Duration) *Claimer {
	return &Claimer{client: client, ttl: ttl}
}

// Claim returns true for exactly one caller per (appointment, alarm instant).
func (c *Claimer) Claim(ctx context.Context, appointmentID string, alarmAt time.Time) (bool, error) {
	ok, err := c.client.SetNX(ctx, ClaimKey(appointmentID, alarmAt), time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim alarm: %w", err)
	}
	return ok, nil
}

// Release drops a claim so a later tick can retry a failed delivery.
func (c *Claimer) Release(ctx context.Context, appointmentID string, alarmAt time.Time) error {
	return c.client.Del(ctx, ClaimKey(appointmentID, alarmAt)).Err()
}

func ClaimKey(appointmentID string, alarmAt time.Time) string {
	return fmt.Sprintf("%s%s:%d", claimPrefix, appointmentID, alarmAt.Unix())
}
