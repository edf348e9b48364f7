// Package analytics keeps lightweight run-outcome counters in Redis.
//
// Counters are bucketed by ISO week, matching the weekly cadence of the job,
// and expire after the configured retention. Writes are best-effort: a Redis
// outage never affects the run itself.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

// DefaultRetention keeps roughly a quarter of weekly history.
const DefaultRetention = 90 * 24 * time.Hour

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
	clock     func() time.Time
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{
		client:    client,
		retention: DefaultRetention,
		clock:     time.Now,
	}
}

// WithRetention overrides the counter TTL.
func (s *RedisSink) WithRetention(d time.Duration) *RedisSink {
	if d > 0 {
		s.retention = d
	}
	return s
}

// Record counts the run's terminal outcome. Errors are logged, never returned.
func (s *RedisSink) Record(ctx context.Context, run domain.Run) {
	if !run.Status.Terminal() {
		return
	}

	bucket := weekBucket(s.clock().UTC())
	keys := []string{
		fmt.Sprintf("weeklynews:runs:%s:%s", run.Status, bucket),
	}
	if run.Failure != domain.FailureNone {
		keys = append(keys, fmt.Sprintf("weeklynews:failures:%s:%s", run.Failure, bucket))
	}

	pipe := s.client.Pipeline()
	for _, key := range keys {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline: %v", err)
	}
}

// weekBucket formats t as an ISO week label, e.g. "2026-W35".
func weekBucket(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
