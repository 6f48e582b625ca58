// Package monitor tracks recent request outcomes and raises notifications
// for failures that need a developer's attention.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/devprobe/apidiag/classify"
	"github.com/devprobe/apidiag/common/config"
	"github.com/devprobe/apidiag/common/logger"
	"github.com/devprobe/apidiag/common/message"
	"github.com/devprobe/apidiag/pipeline"
)

// NotifyFunc delivers a notification. The default pushes through the
// configured message pusher.
type NotifyFunc func(ctx context.Context, title string, content string) error

// OutcomeMonitor keeps a fixed-size window of recent request outcomes and
// computes a rolling success rate. CORS failures additionally trigger a
// notification, rate-limited by a cooldown so a flapping endpoint does not
// flood the pusher.
type OutcomeMonitor struct {
	mu             sync.Mutex
	window         []bool
	size           int
	threshold      float64
	cooldown       time.Duration
	lastCORSNotice time.Time

	notify NotifyFunc
	logger glog.Logger
	now    func() time.Time
}

// Option customizes an OutcomeMonitor.
type Option func(*OutcomeMonitor)

// WithWindowSize overrides the rolling window size.
func WithWindowSize(size int) Option {
	return func(m *OutcomeMonitor) { m.size = size }
}

// WithThreshold overrides the healthy success-rate threshold.
func WithThreshold(threshold float64) Option {
	return func(m *OutcomeMonitor) { m.threshold = threshold }
}

// WithNotify replaces the notification delivery function.
func WithNotify(fn NotifyFunc) Option {
	return func(m *OutcomeMonitor) { m.notify = fn }
}

// WithCooldown overrides the CORS notification cooldown.
func WithCooldown(d time.Duration) Option {
	return func(m *OutcomeMonitor) { m.cooldown = d }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *OutcomeMonitor) { m.now = now }
}

// New builds an outcome monitor from the process configuration.
func New(opts ...Option) *OutcomeMonitor {
	m := &OutcomeMonitor{
		size:      config.MetricQueueSize,
		threshold: config.MetricSuccessRateThreshold,
		cooldown:  config.CORSNotifyCooldown,
		notify: func(ctx context.Context, title, content string) error {
			if !message.Enabled() {
				return nil
			}
			return message.SendMessage(ctx, title, content)
		},
		logger: logger.Logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.size < 1 {
		m.size = 1
	}
	return m
}

// RecordOutcome feeds one request outcome into the window. A CORS-classified
// failure raises a notification, subject to the cooldown.
func (m *OutcomeMonitor) RecordOutcome(ctx context.Context, outcome pipeline.Outcome) {
	m.mu.Lock()
	m.window = append(m.window, outcome.Success)
	if len(m.window) > m.size {
		m.window = m.window[len(m.window)-m.size:]
	}
	m.mu.Unlock()

	if outcome.Kind == classify.KindCORS {
		m.notifyCORSFailure(ctx, outcome)
	}
}

// SuccessRate returns the success fraction over the current window. An empty
// window counts as fully healthy.
func (m *OutcomeMonitor) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.window) == 0 {
		return 1
	}
	succeeded := 0
	for _, ok := range m.window {
		if ok {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(m.window))
}

// Healthy reports whether the rolling success rate is at or above the
// configured threshold.
func (m *OutcomeMonitor) Healthy() bool {
	return m.SuccessRate() >= m.threshold
}

func (m *OutcomeMonitor) notifyCORSFailure(ctx context.Context, outcome pipeline.Outcome) {
	m.mu.Lock()
	now := m.now()
	if !m.lastCORSNotice.IsZero() && now.Sub(m.lastCORSNotice) < m.cooldown {
		m.mu.Unlock()
		return
	}
	m.lastCORSNotice = now
	m.mu.Unlock()

	m.logger.Warn("CORS failure detected",
		zap.Int("status", outcome.Status),
		zap.String("message", outcome.Message),
	)

	content := fmt.Sprintf("CORS failure detected: %s", outcome.Message)
	if err := m.notify(ctx, "API diagnostics: CORS failure", content); err != nil {
		m.logger.Debug("failed to push CORS notification", zap.Error(err))
	}
}
