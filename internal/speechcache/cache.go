package speechcache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eloquence-ai/eloquence/internal/observability"
)

// Options tune storage behavior. Zero values fall back to sane defaults.
type Options struct {
	TTL                time.Duration
	CompressionMinSize int
}

func (o *Options) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
	if o.CompressionMinSize <= 0 {
		o.CompressionMinSize = 1024
	}
}

type entryMeta struct {
	Compressed   bool  `json:"compressed"`
	OriginalSize int   `json:"original_size"`
	StoredSize   int   `json:"stored_size"`
	CreatedAt    int64 `json:"created_at"`
}

// Cache stores synthesized speech in Redis, keyed by what was said and how.
// Every failure on the read path degrades to a miss so synthesis always has
// a fallback; the caller never sees a cache error.
type Cache struct {
	rdb  *redis.Client
	opts Options
	obs  *observability.Metrics

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
	stores atomic.Int64
}

func New(rdb *redis.Client, opts Options, obs *observability.Metrics) *Cache {
	opts.applyDefaults()
	return &Cache{rdb: rdb, opts: opts, obs: obs}
}

// Get returns the cached audio for a synthesis request, or ok=false on a
// miss. Redis errors are logged and counted, then reported as a miss.
func (c *Cache) Get(ctx context.Context, text, language, voiceID, emotion string) ([]byte, bool) {
	start := time.Now()
	key := Key(text, language, voiceID, emotion)

	pipe := c.rdb.Pipeline()
	valCmd := pipe.Get(ctx, key)
	metaCmd := pipe.Get(ctx, metaKey(key))
	_, err := pipe.Exec(ctx)
	c.observeLatency(start)

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c.miss()
		}
		log.Printf("[speechcache] get %s: %v", key, err)
		c.errs.Add(1)
		c.countOp("error")
		return nil, false
	}

	data := []byte(valCmd.Val())
	var meta entryMeta
	if err := json.Unmarshal([]byte(metaCmd.Val()), &meta); err != nil {
		log.Printf("[speechcache] bad meta for %s: %v", key, err)
		c.errs.Add(1)
		c.countOp("error")
		return nil, false
	}

	if meta.Compressed {
		data, err = decompress(data)
		if err != nil {
			log.Printf("[speechcache] decompress %s: %v", key, err)
			c.errs.Add(1)
			c.countOp("error")
			return nil, false
		}
	}

	c.hits.Add(1)
	c.countOp("hit")
	return data, true
}

// Set stores synthesized audio under the request's key. Compression is
// applied only when it is actually worth it.
func (c *Cache) Set(ctx context.Context, text, language, voiceID, emotion string, audio []byte) error {
	key := Key(text, language, voiceID, emotion)
	stored, compressed := maybeCompress(audio, c.opts.CompressionMinSize)

	meta, err := json.Marshal(entryMeta{
		Compressed:   compressed,
		OriginalSize: len(audio),
		StoredSize:   len(stored),
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, stored, c.opts.TTL)
	pipe.Set(ctx, metaKey(key), meta, c.opts.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.errs.Add(1)
		return err
	}
	c.stores.Add(1)
	return nil
}

// Exists reports whether a request is already cached, without fetching it.
func (c *Cache) Exists(ctx context.Context, text, language, voiceID, emotion string) (bool, error) {
	n, err := c.rdb.Exists(ctx, Key(text, language, voiceID, emotion)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear deletes entries whose key matches the glob pattern (empty means all)
// and returns how many audio entries were removed. Each matched entry is
// removed together with its meta sibling, whether or not the sibling matches
// the pattern itself.
func (c *Cache) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	match := keyPrefix + ":" + pattern

	deleted := 0
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += len(batch) / 2
		batch = batch[:0]
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":meta") {
			continue
		}
		batch = append(batch, key, metaKey(key))
		if len(batch) >= 200 {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Metrics is a point-in-time snapshot of cache effectiveness, served on the
// admin API.
type Metrics struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	Stores  int64   `json:"stores"`
	HitRate float64 `json:"hit_rate"`
}

func (c *Cache) Metrics() Metrics {
	hits := c.hits.Load()
	misses := c.misses.Load()
	m := Metrics{
		Hits:   hits,
		Misses: misses,
		Errors: c.errs.Load(),
		Stores: c.stores.Load(),
	}
	if total := hits + misses; total > 0 {
		m.HitRate = float64(hits) / float64(total)
	}
	return m
}

func (c *Cache) miss() ([]byte, bool) {
	c.misses.Add(1)
	c.countOp("miss")
	return nil, false
}

func (c *Cache) countOp(result string) {
	if c.obs != nil {
		c.obs.CacheOps.WithLabelValues(result).Inc()
	}
}

func (c *Cache) observeLatency(start time.Time) {
	if c.obs != nil {
		c.obs.CacheLatency.Observe(time.Since(start).Seconds())
	}
}
