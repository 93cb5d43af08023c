// Package cache holds the short-TTL availability response cache. Entries are
// keyed under a per-person version counter, so invalidation is a single INCR
// and stale generations simply age out.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/advisorly/schedcore/internal/interval"
)

type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewAvailability returns nil when rdb is nil; callers treat a nil cache as a
// pass-through.
func NewAvailability(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Availability {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Availability{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Availability) Get(ctx context.Context, personID string, rangeUTC interval.Interval, eventTypeID string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	key, err := c.key(ctx, personID, rangeUTC, eventTypeID)
	if err != nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", "err", err)
		}
		return nil, false
	}
	return payload, true
}

func (c *Availability) Set(ctx context.Context, personID string, rangeUTC interval.Interval, eventTypeID string, payload []byte) {
	if c == nil {
		return
	}
	key, err := c.key(ctx, personID, rangeUTC, eventTypeID)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "err", err)
	}
}

// InvalidatePerson bumps the person's generation; every cached range for the
// person misses from then on.
func (c *Availability) InvalidatePerson(ctx context.Context, personID string) {
	if c == nil {
		return
	}
	if err := c.rdb.Incr(ctx, versionKey(personID)).Err(); err != nil {
		c.logger.Warn("availability cache invalidation failed", "person_id", personID, "err", err)
	}
}

func (c *Availability) key(ctx context.Context, personID string, rangeUTC interval.Interval, eventTypeID string) (string, error) {
	ver, err := c.rdb.Get(ctx, versionKey(personID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("avail:%s:%d:%d:%d:%s",
		personID, ver, rangeUTC.Start.Unix(), rangeUTC.End.Unix(), eventTypeID), nil
}

func versionKey(personID string) string {
	return "avail_ver:" + personID
}
