package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RequestLimiter acota la cantidad de peticiones por clave (p.ej. conversacion).
// Las implementaciones usan un token bucket: hasta max peticiones seguidas y
// reposicion de un token cada window/max.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type memoryRequestLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	limiters  map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRequestLimiter crea un token bucket por clave: max peticiones por window.
func NewMemoryRequestLimiter(window time.Duration, max int) RequestLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRequestLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		idleTTL:  window * 2,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *memoryRequestLimiter) Allow(_ context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.evictIdle(now)
		l.lastSweep = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evictIdle borra los buckets sin uso; un bucket inactivo por idleTTL ya esta lleno.
func (l *memoryRequestLimiter) evictIdle(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, k)
		}
	}
}
