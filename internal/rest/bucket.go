package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Rate-limit headers consumed from every response.
const (
	headerBucket     = "X-RateLimit-Bucket"
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerResetAfter = "X-RateLimit-Reset-After"
	headerScope      = "X-RateLimit-Scope"
	headerRetryAfter = "Retry-After"
)

// bucket tracks the quota state of one server-assigned rate-limit grouping.
// Before the first response attributes a route, its bucket is unlimited and
// grants immediately (limit < 0). A bucket may instead refill itself on a
// fixed window (window > 0), which is how the global quota is modeled.
//
// reserve admission is FIFO: callers queue on the turnstile channel, whose
// blocked senders are woken in arrival order. The token decrement happens
// while the caller still holds the turnstile, so granting is atomic with
// respect to other reservers.
type bucket struct {
	key       string
	turnstile chan struct{}

	mu        sync.Mutex
	limit     int // -1: unlimited (no server attribution yet)
	remaining int
	resetAt   time.Time
	window    time.Duration // self-refill period; zero for server-driven buckets
	seeded    bool          // server headers applied at least once
	pending   int           // slots earmarked for 429 retries waiting to redeem
}

// newBucket returns an optimistic, unlimited bucket for a route that has not
// yet seen rate-limit headers.
func newBucket(key string) *bucket {
	return &bucket{key: key, limit: -1, turnstile: make(chan struct{}, 1)}
}

// newWindowBucket returns a self-refilling bucket granting limit tokens per
// window. Used for the global quota.
func newWindowBucket(key string, limit int, window time.Duration) *bucket {
	return &bucket{
		key:       key,
		limit:     limit,
		remaining: limit,
		window:    window,
		turnstile: make(chan struct{}, 1),
	}
}

// reserve acquires one request slot, waiting for the bucket's reset when the
// quota is exhausted. Callers are admitted in submission order.
func (b *bucket) reserve(ctx context.Context) error {
	select {
	case b.turnstile <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.turnstile }()

	return b.take(ctx)
}

// redeem is the retry path after an authoritative 429 correction: it arrests
// the bucket for retryAfter, waits it out, and claims a slot ahead of
// reservers that arrived in the meantime. The claim is held as an earmark
// that take refuses to hand out, so the retry is never re-queued. The
// server's retry-after replaces any locally estimated reset.
func (b *bucket) redeem(ctx context.Context, retryAfter time.Duration) error {
	b.mu.Lock()
	b.remaining = 0
	b.resetAt = time.Now().Add(retryAfter)
	b.pending++
	b.mu.Unlock()

	if err := sleepContext(ctx, retryAfter); err != nil {
		b.mu.Lock()
		b.pending--
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.resetAt.IsZero() && !time.Now().Before(b.resetAt) {
		if b.limit >= 0 {
			b.remaining = b.limit
		}
		b.resetAt = time.Time{}
	}
	b.pending--
	if b.remaining > 0 {
		if b.window > 0 && b.resetAt.IsZero() {
			b.resetAt = time.Now().Add(b.window)
		}
		b.remaining--
	}
	return nil
}

// take waits until a token is available and decrements it. Unlike reserve it
// does not pass through the FIFO turnstile. Tokens earmarked by a pending
// 429 retry are not handed out.
func (b *bucket) take(ctx context.Context) error {
	b.mu.Lock()
	for {
		now := time.Now()

		if !b.resetAt.IsZero() && !now.Before(b.resetAt) {
			if b.limit >= 0 {
				b.remaining = b.limit
			}
			b.resetAt = time.Time{}
		}

		if b.limit < 0 && b.resetAt.IsZero() {
			// Optimistic grant: nothing known about this bucket beyond a
			// possible arrest, which has passed.
			b.mu.Unlock()
			return nil
		}

		if b.remaining-b.pending > 0 {
			if b.window > 0 && b.resetAt.IsZero() {
				// First grant of a fresh window starts the clock.
				b.resetAt = now.Add(b.window)
			}
			b.remaining--
			b.mu.Unlock()
			return nil
		}

		wait := time.Until(b.resetAt)
		if b.resetAt.IsZero() {
			// Exhausted with no reset on record: in-flight responses or a
			// retry's redeem will install one shortly, so recheck instead of
			// sleeping on a reset time that does not exist.
			wait = 5 * time.Millisecond
		}
		b.mu.Unlock()

		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
		b.mu.Lock()
	}
}

// update applies rate-limit headers from a response. The server's remaining
// count does not include requests still in flight, so after the first update
// the local count only ever moves down toward the server's value.
func (b *bucket) update(limit, remaining int, resetAfter time.Duration, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.limit = limit

	switch {
	case status == http.StatusTooManyRequests:
		b.remaining = 0
	case !b.seeded:
		b.remaining = remaining
	case remaining < b.remaining:
		b.remaining = remaining
	}

	if resetAfter > 0 {
		if until := time.Now().Add(resetAfter); until.After(b.resetAt) {
			b.resetAt = until
		}
	}
	b.seeded = true
}

// state returns a snapshot for logging and tests.
func (b *bucket) state() (limit, remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit, b.remaining, b.resetAt
}

// ledger owns every bucket and the route-to-bucket association. Multiple
// routes may map to one server bucket; a route with no association yet gets
// an optimistic bucket keyed by its own route key.
type ledger struct {
	mu      sync.Mutex
	routes  map[string]string  // route key -> server bucket key
	buckets map[string]*bucket // bucket key -> state
}

func newLedger() *ledger {
	return &ledger{
		routes:  make(map[string]string),
		buckets: make(map[string]*bucket),
	}
}

// bucket returns the bucket currently associated with the route key,
// creating an optimistic one on first use.
func (l *ledger) bucket(routeKey string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := routeKey
	if hash, ok := l.routes[routeKey]; ok {
		key = hash
	}
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(key)
		l.buckets[key] = b
	}
	return b
}

// record applies the rate-limit headers of a response to the ledger,
// remapping the route to the server-assigned bucket when one is supplied.
// It returns the bucket now associated with the route, or nil when the
// response carried no bucket attribution.
func (l *ledger) record(routeKey string, header http.Header, status int) *bucket {
	hash := header.Get(headerBucket)
	if hash == "" {
		return nil
	}

	limit, err := strconv.Atoi(header.Get(headerLimit))
	if err != nil {
		limit = 1
	}
	remaining, err := strconv.Atoi(header.Get(headerRemaining))
	if err != nil {
		remaining = 1
	}
	var resetAfter time.Duration
	if secs, err := strconv.ParseFloat(header.Get(headerResetAfter), 64); err == nil {
		resetAfter = time.Duration(secs * float64(time.Second))
	}

	l.mu.Lock()
	l.routes[routeKey] = hash
	b, ok := l.buckets[hash]
	if !ok {
		b = newBucket(hash)
		l.buckets[hash] = b
	}
	l.mu.Unlock()

	b.update(limit, remaining, resetAfter, status)
	return b
}

// sleepContext sleeps for d unless ctx is done first. A non-positive d
// returns immediately, still reporting an already-expired ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
