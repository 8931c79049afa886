package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// requestBucketScript implementa el mismo token bucket que el limitador en memoria,
// guardado como hash {tokens, ts}. ARGV: burst, tokens por ms, ahora en ms, ttl en ms.
const requestBucketScript = `
local burst = tonumber(ARGV[1])
local perMs = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) * perMs)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(ts))
redis.call("PEXPIRE", KEYS[1], ttl)
return allowed
`

const (
	requestBucketPrefix  = "chat:bucket:"
	redisLimiterDeadline = 500 * time.Millisecond
)

type redisRequestLimiter struct {
	client redisEvaler
	window time.Duration
	burst  int
	prefix string
	now    func() time.Time
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisRequestLimiter crea un limitador compartido entre instancias con la
// misma cuota que NewMemoryRequestLimiter para los mismos window y max.
func NewRedisRequestLimiter(client *redis.Client, window time.Duration, max int) RequestLimiter {
	if client == nil {
		return nil
	}
	return newRedisRequestLimiter(client, window, max)
}

func newRedisRequestLimiter(client redisEvaler, window time.Duration, max int) *redisRequestLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRequestLimiter{
		client: client,
		window: window,
		burst:  max,
		prefix: requestBucketPrefix,
		now:    time.Now,
	}
}

// scriptArgs devuelve burst, tasa de reposicion por ms, instante actual y ttl del hash.
func (l *redisRequestLimiter) scriptArgs() []interface{} {
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	perMs := float64(l.burst) / float64(windowMs)
	ttl := (2 * l.window).Milliseconds()
	return []interface{}{
		l.burst,
		strconv.FormatFloat(perMs, 'f', -1, 64),
		l.now().UnixMilli(),
		ttl,
	}
}

func (l *redisRequestLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, redisLimiterDeadline)
	defer cancel()

	allowed, err := l.client.Eval(ctx, requestBucketScript, []string{l.prefix + key}, l.scriptArgs()...).Int()
	if err != nil {
		// Fail-open: Redis caido no bloquea el chat.
		return true
	}
	return allowed == 1
}
