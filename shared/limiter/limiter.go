package limiter

//go:generate go run go.uber.org/mock/mockgen -source=./limiter.go -destination=./mocks/limiter_mock.go -package=mocks

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mlaku/shared"
	"mlaku/shared/constant"
	"mlaku/shared/failure"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = 30 * time.Minute
)

// Limit is the event budget applied to one key.
type Limit = redis_rate.Limit

// Window allows max events per period, all of which may be spent at once.
func Window(maxEvents int, period time.Duration) Limit {
	return Limit{
		Rate:   maxEvents,
		Burst:  maxEvents,
		Period: period,
	}
}

// Limiter counts events per key. Redis is authoritative; when it cannot be
// reached an in-process limiter keeps enforcing the same limit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
	// Attempt consumes one event and fails with a 429 Failure once the
	// limit is exhausted.
	Attempt(ctx context.Context, key string, limit redis_rate.Limit) error
	Reset(ctx context.Context, key string) error
}

type limiterImpl struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
}

func New(client *redis.Client) Limiter {
	return &limiterImpl{
		limiter:  redis_rate.NewLimiter(client),
		fallback: newLocalLimiter(),
	}
}

func key(parts ...string) string {
	return shared.BuildCacheKey(constant.CachePrefixLimiter, parts...)
}

func (l *limiterImpl) Allow(ctx context.Context, k string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	res, err := l.limiter.Allow(ctx, key(k), limit)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("redis limiter unavailable, using local limiter")

		return l.fallback.allow(key(k), limit)
	}

	return res, nil
}

func (l *limiterImpl) Attempt(ctx context.Context, k string, limit redis_rate.Limit) error {
	res, err := l.Allow(ctx, k, limit)
	if err != nil {
		return fmt.Errorf("failed to check attempt limit: %w", err)
	}

	if res.Allowed == 0 {
		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))

		return failure.TooManyRequests(fmt.Sprintf("Too many attempts, try again in %d seconds", max(retryAfter, 1)))
	}

	return nil
}

func (l *limiterImpl) Reset(ctx context.Context, k string) error {
	l.fallback.reset(key(k))

	if err := l.limiter.Reset(ctx, key(k)); err != nil {
		return fmt.Errorf("failed to reset limiter: %w", err)
	}

	return nil
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	lastScan time.Time
}

func newLocalLimiter() *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*limiterEntry),
		lastScan: time.Now(),
	}
}

func (l *localLimiter) allow(k string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("invalid limit: %v", limit)
	}

	ratePerSec := float64(limit.Rate) / limit.Period.Seconds()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)

	entry, ok := l.limiters[k]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(ratePerSec), limit.Burst)}
		l.limiters[k] = entry
	}

	entry.lastAccess = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return &redis_rate.Result{Limit: limit, RetryAfter: limit.Period}, nil
	}

	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)

		return &redis_rate.Result{
			Limit:      limit,
			Allowed:    0,
			Remaining:  0,
			RetryAfter: delay,
			ResetAfter: delay,
		}, nil
	}

	return &redis_rate.Result{
		Limit:      limit,
		Allowed:    1,
		Remaining:  max(int(entry.limiter.TokensAt(now)), 0),
		RetryAfter: -1,
		ResetAfter: time.Duration(float64(time.Second) / ratePerSec),
	}, nil
}

func (l *localLimiter) reset(k string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.limiters, k)
}

// evict drops idle entries; the caller holds mu.
func (l *localLimiter) evict(now time.Time) {
	if now.Sub(l.lastScan) < cleanupInterval {
		return
	}

	l.lastScan = now

	for k, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(l.limiters, k)
		}
	}
}
