package queue

import (
	"log/slog"
	"sync"
	"time"
)

// DepthWarnThreshold is the queue depth above which a backpressure
// warning is logged.
const DepthWarnThreshold = 100

// DepthWarnInterval rate-limits how often the backpressure warning fires,
// since checks happen on every dequeue and the condition can persist.
const DepthWarnInterval = 5 * time.Second

// DepthMonitor rate-limits the queue-depth backpressure warning so a
// sustained overload logs once per interval instead of once per message.
type DepthMonitor struct {
	mu       sync.Mutex
	lastWarn time.Time
	logger   *slog.Logger
}

// NewDepthMonitor returns a DepthMonitor logging through logger (or the
// default logger if nil).
func NewDepthMonitor(logger *slog.Logger) *DepthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepthMonitor{logger: logger}
}

// Check logs a warning if depth exceeds DepthWarnThreshold and the last
// warning was more than DepthWarnInterval ago.
func (d *DepthMonitor) Check(depth int) {
	if depth <= DepthWarnThreshold {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if now.Sub(d.lastWarn) < DepthWarnInterval {
		return
	}
	d.lastWarn = now
	d.logger.Warn("queue depth exceeds threshold", "depth", depth, "threshold", DepthWarnThreshold)
}
