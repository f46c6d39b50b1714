package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiterEntries = 10000
	limiterCleanupInterval   = 5 * time.Minute
	limiterMaxIdleTime       = 30 * time.Minute
)

// limiterEntry tracks a token bucket and its last access time
type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// EventRateLimiter provides per-identifier rate limiting using the token
// bucket algorithm, with LRU eviction to bound memory. The authorization
// server uses it to throttle repeated failure-event logging so an attacker
// replaying a stolen code or token cannot flood the audit log.
type EventRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element // identifier -> list element
	lruList    *list.List               // LRU list of *limiterEntry
	rate       int
	burst      int
	maxEntries int
	logger     *slog.Logger
	stopOnce   sync.Once
	stop       chan struct{}
}

// NewEventRateLimiter creates a rate limiter allowing eventsPerSecond with
// the given burst per identifier. Idle entries are cleaned up in the
// background; call Stop to release the cleanup goroutine.
func NewEventRateLimiter(eventsPerSecond, burst int, logger *slog.Logger) *EventRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &EventRateLimiter{
		limiters:   make(map[string]*list.Element),
		lruList:    list.New(),
		rate:       eventsPerSecond,
		burst:      burst,
		maxEntries: defaultMaxLimiterEntries,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether an event from the given identifier fits within the
// rate budget, creating (and LRU-evicting) tracked buckets as needed.
func (rl *EventRateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.limiters[identifier]; ok {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if rl.maxEntries > 0 && len(rl.limiters) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
		lastAccess: now,
	}
	rl.limiters[identifier] = rl.lruList.PushFront(entry)

	return entry.limiter.Allow()
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (rl *EventRateLimiter) evictOldest() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*limiterEntry)
	delete(rl.limiters, entry.identifier)
	rl.lruList.Remove(elem)

	rl.logger.Debug("Rate limiter LRU eviction",
		"identifier", entry.identifier,
		"current_entries", len(rl.limiters))
}

func (rl *EventRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(limiterMaxIdleTime)
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes limiters that have not been accessed for maxIdleTime.
func (rl *EventRateLimiter) cleanup(maxIdleTime time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := rl.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*limiterEntry)
		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(rl.limiters, entry.identifier)
			rl.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.limiters))
	}
}

// Stop releases the cleanup goroutine. Safe to call more than once.
func (rl *EventRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
