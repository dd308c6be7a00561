package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-blueledger/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix carries a hash tag so every lock key maps to one cluster
	// slot and the multi-key scripts never fail with CROSSSLOT.
	DefaultPrefix        = "{blueledger}:lock:"
	DefaultRetryInterval = 25 * time.Millisecond
	DefaultTTL           = 30 * time.Second
)

// acquireScript sets every key or none of them.
var acquireScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
  if redis.call("EXISTS", key) == 1 then
    return 0
  end
end
for _, key in ipairs(KEYS) do
  redis.call("SET", key, ARGV[1], "PX", ARGV[2])
end
return 1
`)

// releaseScript deletes only keys still owned by the token.
var releaseScript = redis.NewScript(`
local released = 0
for _, key in ipairs(KEYS) do
  if redis.call("GET", key) == ARGV[1] then
    redis.call("DEL", key)
    released = released + 1
  end
end
return released
`)

var ErrLockLost = errors.New("redislock: lock expired before release")

type Option func(*Locker)

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

func WithRetryInterval(interval time.Duration) Option {
	return func(l *Locker) {
		if interval > 0 {
			l.retryInterval = interval
		}
	}
}

func WithTokenGenerator(next func() string) Option {
	return func(l *Locker) {
		if next != nil {
			l.newToken = next
		}
	}
}

// Locker is a core.RecordLocker shared by every process pointed at the same
// Redis. Locks expire after ttl so a crashed holder cannot wedge a record.
type Locker struct {
	client        redis.UniversalClient
	prefix        string
	retryInterval time.Duration
	newToken      func() string
}

func New(client redis.UniversalClient, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redislock: redis client is required")
	}
	l := &Locker{
		client:        client,
		prefix:        DefaultPrefix,
		retryInterval: DefaultRetryInterval,
		newToken:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if _, clustered := client.(*redis.ClusterClient); clustered && !hasHashTag(l.prefix) {
		return nil, fmt.Errorf("redislock: prefix %q needs a {hash tag} on a cluster client", l.prefix)
	}
	return l, nil
}

// hasHashTag follows the Redis cluster rule: the first "{" must be followed
// by a non-empty run before the next "}".
func hasHashTag(prefix string) bool {
	_, rest, ok := strings.Cut(prefix, "{")
	if !ok {
		return false
	}
	tag, _, ok := strings.Cut(rest, "}")
	return ok && tag != ""
}

func (l *Locker) AcquireAll(ctx context.Context, keys []string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redislock: locker is not configured")
	}
	normalized, err := core.NormalizeLockKeys(keys)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	redisKeys := make([]string, len(normalized))
	for i, key := range normalized {
		redisKeys[i] = l.prefix + key
	}
	token := strings.TrimSpace(l.newToken())
	if token == "" {
		return nil, errors.New("redislock: lock token is required")
	}

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		acquired, err := l.tryAcquire(ctx, redisKeys, token, ttl)
		if err != nil {
			return nil, fmt.Errorf("redislock: acquire %s: %w", strings.Join(normalized, ","), err)
		}
		if acquired {
			return &handle{client: l.client, keys: redisKeys, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) tryAcquire(ctx context.Context, keys []string, token string, ttl time.Duration) (bool, error) {
	if len(keys) == 1 {
		return l.client.SetNX(ctx, keys[0], token, ttl).Result()
	}
	result, err := acquireScript.Run(ctx, l.client, keys, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

type handle struct {
	client redis.UniversalClient
	keys   []string
	token  string
}

func (h *handle) Unlock(ctx context.Context) error {
	if h == nil || len(h.keys) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	released, err := releaseScript.Run(ctx, h.client, h.keys, h.token).Int64()
	if err != nil {
		return fmt.Errorf("redislock: release: %w", err)
	}
	held := len(h.keys)
	h.keys = nil
	if int(released) < held {
		return ErrLockLost
	}
	return nil
}

var _ core.RecordLocker = (*Locker)(nil)
