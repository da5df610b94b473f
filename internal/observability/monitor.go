package observability

import (
	"log/slog"
	"sync"
	"time"
)

const (
	monitorWindow       = 5 * time.Minute
	monitorMinSamples   = 5
	monitorErrThreshold = 0.5
)

// ErrorRateMonitor tracks per-operation error rates over a sliding window
// and logs a warning when a rate crosses the threshold. It is advisory
// only; it never rejects work.
type ErrorRateMonitor struct {
	mu        sync.Mutex
	errors    map[string]*slidingWindow
	successes map[string]*slidingWindow
	logger    *slog.Logger
}

type slidingWindow struct {
	entries []time.Time
}

// NewErrorRateMonitor creates a monitor with the default window and threshold.
func NewErrorRateMonitor(logger *slog.Logger) *ErrorRateMonitor {
	return &ErrorRateMonitor{
		errors:    make(map[string]*slidingWindow),
		successes: make(map[string]*slidingWindow),
		logger:    logger,
	}
}

// RecordError records a failed operation and checks the error rate.
func (m *ErrorRateMonitor) RecordError(operation string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window(m.errors, operation).add()
	m.checkRate(operation)
}

// RecordSuccess records a successful operation.
func (m *ErrorRateMonitor) RecordSuccess(operation string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window(m.successes, operation).add()
}

// checkRate warns when the windowed error rate crosses the threshold.
// Must be called with m.mu held.
func (m *ErrorRateMonitor) checkRate(operation string) {
	errors := float64(m.window(m.errors, operation).count())
	successes := float64(m.window(m.successes, operation).count())
	total := errors + successes

	if total < monitorMinSamples {
		return
	}

	rate := errors / total
	if rate > monitorErrThreshold && m.logger != nil {
		m.logger.Warn("elevated error rate",
			slog.String("operation", operation),
			slog.Float64("error_rate", rate),
			slog.Float64("errors", errors),
			slog.Float64("total", total),
		)
	}
}

func (m *ErrorRateMonitor) window(set map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := set[key]
	if !ok {
		w = &slidingWindow{}
		set[key] = w
	}
	return w
}

func (w *slidingWindow) add() {
	now := time.Now()
	w.entries = append(w.entries, now)
	w.prune(now)
}

func (w *slidingWindow) count() int {
	w.prune(time.Now())
	return len(w.entries)
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-monitorWindow)
	i := 0
	for i < len(w.entries) && w.entries[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
