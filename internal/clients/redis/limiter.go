package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/utils"
)

// Pacer enforces a minimum spacing between outbound assistant calls for a
// given key (assistant id). Wait blocks until the caller may proceed or the
// context is done.
type Pacer interface {
	Wait(ctx context.Context, key string) error
	Close() error
}

// NewPacer returns a Redis-backed pacer when REDIS_ADDR is configured, so
// spacing holds across instances, and falls back to a per-process pacer
// otherwise.
func NewPacer(log *logger.Logger) (Pacer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := utils.GetEnvAsDuration("ASSISTANT_MIN_SPACING", 750*time.Millisecond, log)

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Info("REDIS_ADDR not set, using in-process pacer")
		return NewLocalPacer(interval), nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisPacer{
		log:      log.With("service", "RedisPacer"),
		rdb:      rdb,
		interval: interval,
	}, nil
}

type redisPacer struct {
	log      *logger.Logger
	rdb      *goredis.Client
	interval time.Duration
}

func (p *redisPacer) Wait(ctx context.Context, key string) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis pacer not initialized")
	}
	slot := "pace:" + key
	for {
		ok, err := p.rdb.SetNX(ctx, slot, 1, p.interval).Result()
		if err != nil {
			// Redis down must not take the conversation path down with it.
			p.log.Warn("pacer redis error, proceeding unpaced", "error", err)
			return nil
		}
		if ok {
			return nil
		}
		ttl, err := p.rdb.PTTL(ctx, slot).Result()
		if err != nil || ttl <= 0 {
			ttl = p.interval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ttl):
		}
	}
}

func (p *redisPacer) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// LocalPacer is the single-instance fallback: one token per key per interval.
type LocalPacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func NewLocalPacer(interval time.Duration) *LocalPacer {
	return &LocalPacer{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

func (p *LocalPacer) Wait(ctx context.Context, key string) error {
	for {
		p.mu.Lock()
		now := time.Now()
		prev, seen := p.last[key]
		if !seen || now.Sub(prev) >= p.interval {
			p.last[key] = now
			p.mu.Unlock()
			return nil
		}
		wait := p.interval - now.Sub(prev)
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p *LocalPacer) Close() error { return nil }
