// Package dedup provides a redis-backed seen-listing guard. The pipeline
// uses it to skip listing URLs already processed inside the dedup window,
// so overlapping scrape passes do not re-parse the same page.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auctionhunter:seen:listing:"

type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// Seen marks the listing URL and reports whether it was already marked
// inside the TTL window. A nil deduplicator or empty URL is never a
// duplicate, so the guard degrades to a no-op without redis.
func (d *Deduplicator) Seen(ctx context.Context, url string) (bool, error) {
	if d == nil || d.rdb == nil || url == "" {
		return false, nil
	}
	key := keyPrefix + hashURL(url)
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Forget removes the mark so the URL is processed again on the next pass.
func (d *Deduplicator) Forget(ctx context.Context, url string) error {
	if d == nil || d.rdb == nil || url == "" {
		return nil
	}
	key := keyPrefix + hashURL(url)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
