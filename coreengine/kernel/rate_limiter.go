package kernel

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/selene/coreengine/config"
)

// =============================================================================
// Rate Limit Result
// =============================================================================

// RateLimitResult is the outcome of one tenant check.
type RateLimitResult struct {
	Allowed      bool   `json:"allowed"`
	Window       string `json:"window,omitempty"` // "minute", "hour", "day"
	Current      int    `json:"current"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// Exceeded reports whether a window was over its limit.
func (r RateLimitResult) Exceeded() bool {
	return !r.Allowed
}

// =============================================================================
// Sliding Window
// =============================================================================

const bucketsPerWindow = 10

// slidingWindow counts requests in sub-buckets of one window. It is only
// touched under the RateLimiter lock.
type slidingWindow struct {
	window     time.Duration
	buckets    map[int64]int
	lastRecord time.Time
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	return &slidingWindow{window: window, buckets: make(map[int64]int)}
}

func (w *slidingWindow) bucketSize() time.Duration {
	return w.window / bucketsPerWindow
}

func (w *slidingWindow) bucketOf(now time.Time) int64 {
	return now.UnixNano() / int64(w.bucketSize())
}

func (w *slidingWindow) prune(now time.Time) {
	minBucket := w.bucketOf(now) - bucketsPerWindow
	for b := range w.buckets {
		if b < minBucket {
			delete(w.buckets, b)
		}
	}
}

func (w *slidingWindow) record(now time.Time) {
	w.prune(now)
	w.buckets[w.bucketOf(now)]++
	w.lastRecord = now
}

func (w *slidingWindow) count(now time.Time) int {
	minBucket := w.bucketOf(now) - bucketsPerWindow
	n := 0
	for b, c := range w.buckets {
		if b >= minBucket {
			n += c
		}
	}
	return n
}

// retryAfter is how long until the count drops below limit.
func (w *slidingWindow) retryAfter(now time.Time, limit int) time.Duration {
	current := w.count(now)
	if current < limit {
		return 0
	}
	minBucket := w.bucketOf(now) - bucketsPerWindow
	live := make([]int64, 0, len(w.buckets))
	for b := range w.buckets {
		if b >= minBucket {
			live = append(live, b)
		}
	}
	slices.SortFunc(live, cmp.Compare[int64])

	excess := current - limit + 1
	expired := 0
	size := int64(w.bucketSize())
	for _, b := range live {
		expired += w.buckets[b]
		if expired >= excess {
			// The bucket leaves the window once its end is a full window old.
			leaves := time.Unix(0, (b+1)*size).Add(w.window)
			return max(leaves.Sub(now), 0)
		}
	}
	return w.window
}

// =============================================================================
// Rate Limiter
// =============================================================================

type windowKey struct {
	tenantID string
	window   string
}

type windowSpec struct {
	name   string
	window time.Duration
	limit  int
}

// RateLimiter keeps sliding-window counters per tenant. Its result is fed to
// quota turns as a signal; the limiter itself never refuses anything.
type RateLimiter struct {
	specs   []windowSpec
	windows map[windowKey]*slidingWindow
	now     func() time.Time
	mu      sync.Mutex
}

// NewRateLimiter creates a limiter from the configured limits.
func NewRateLimiter(cfg config.RateLimitConfig, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		specs: []windowSpec{
			{"minute", time.Minute, cfg.RequestsPerMinute},
			{"hour", time.Hour, cfg.RequestsPerHour},
			{"day", 24 * time.Hour, cfg.RequestsPerDay},
		},
		windows: make(map[windowKey]*slidingWindow),
		now:     now,
	}
}

// Check tests every window for the tenant and, when all pass and record is
// set, counts the request.
func (r *RateLimiter) Check(tenantID string, record bool) RateLimitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	for _, s := range r.specs {
		if s.limit <= 0 {
			continue
		}
		w := r.window(tenantID, s)
		if current := w.count(now); current >= s.limit {
			wait := w.retryAfter(now, s.limit)
			return RateLimitResult{
				Window:       s.name,
				Current:      current,
				Limit:        s.limit,
				RetryAfterMS: int64(math.Ceil(float64(wait) / float64(time.Millisecond))),
			}
		}
	}

	if record {
		for _, s := range r.specs {
			if s.limit > 0 {
				r.window(tenantID, s).record(now)
			}
		}
	}

	remaining := math.MaxInt
	for _, s := range r.specs {
		if s.limit <= 0 {
			continue
		}
		remaining = min(remaining, max(s.limit-r.window(tenantID, s).count(now), 0))
	}
	if remaining == math.MaxInt {
		remaining = 0
	}
	return RateLimitResult{Allowed: true, Remaining: remaining}
}

func (r *RateLimiter) window(tenantID string, s windowSpec) *slidingWindow {
	key := windowKey{tenantID, s.name}
	w, ok := r.windows[key]
	if !ok {
		w = newSlidingWindow(s.window)
		r.windows[key] = w
	}
	return w
}

// Usage returns the current count per window for a tenant.
func (r *RateLimiter) Usage(tenantID string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	usage := make(map[string]int, len(r.specs))
	for _, s := range r.specs {
		if w, ok := r.windows[windowKey{tenantID, s.name}]; ok {
			usage[s.name] = w.count(now)
		} else {
			usage[s.name] = 0
		}
	}
	return usage
}

// ResetTenant drops all windows of a tenant and returns how many there were.
func (r *RateLimiter) ResetTenant(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key := range r.windows {
		if key.tenantID == tenantID {
			delete(r.windows, key)
			n++
		}
	}
	return n
}

// CleanupExpired removes windows that hold no requests and have seen none
// for at least retention.
func (r *RateLimiter) CleanupExpired(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	cleaned := 0
	for key, w := range r.windows {
		w.prune(now)
		if w.count(now) == 0 && now.Sub(w.lastRecord) >= retention {
			delete(r.windows, key)
			cleaned++
		}
	}
	return cleaned
}

// Len returns the number of live windows.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}
