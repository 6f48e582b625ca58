package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devprobe/apidiag/classify"
	"github.com/devprobe/apidiag/pipeline"
)

func TestSuccessRateWindow(t *testing.T) {
	m := New(WithWindowSize(4), WithNotify(func(context.Context, string, string) error { return nil }))

	assert.Equal(t, 1.0, m.SuccessRate(), "empty window is fully healthy")

	ctx := context.Background()
	m.RecordOutcome(ctx, pipeline.Outcome{Success: true})
	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindNetwork})
	assert.Equal(t, 0.5, m.SuccessRate())

	// Push the failure out of the window.
	for i := 0; i < 4; i++ {
		m.RecordOutcome(ctx, pipeline.Outcome{Success: true})
	}
	assert.Equal(t, 1.0, m.SuccessRate())
}

func TestHealthyThreshold(t *testing.T) {
	m := New(
		WithWindowSize(10),
		WithThreshold(0.8),
		WithNotify(func(context.Context, string, string) error { return nil }),
	)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		m.RecordOutcome(ctx, pipeline.Outcome{Success: true})
	}
	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindHTTPServerError})
	m.RecordOutcome(ctx, pipeline.Outcome{Success: true})
	assert.True(t, m.Healthy(), "9/10 is above the 0.8 threshold")

	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindHTTPServerError})
	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindHTTPServerError})
	assert.False(t, m.Healthy())
}

// TestCORSNotificationCooldown ensures repeat CORS failures inside the
// cooldown window produce a single notification.
func TestCORSNotificationCooldown(t *testing.T) {
	var notified int32
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m := New(
		WithCooldown(time.Minute),
		WithClock(func() time.Time { return now }),
		WithNotify(func(context.Context, string, string) error {
			atomic.AddInt32(&notified, 1)
			return nil
		}),
	)

	ctx := context.Background()
	corsFailure := pipeline.Outcome{Kind: classify.KindCORS, Message: "blocked by CORS policy"}

	m.RecordOutcome(ctx, corsFailure)
	m.RecordOutcome(ctx, corsFailure)
	m.RecordOutcome(ctx, corsFailure)
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))

	// Once the cooldown passes, the next failure notifies again.
	now = now.Add(2 * time.Minute)
	m.RecordOutcome(ctx, corsFailure)
	assert.Equal(t, int32(2), atomic.LoadInt32(&notified))
}

func TestNonCORSFailuresDoNotNotify(t *testing.T) {
	var notified int32
	m := New(WithNotify(func(context.Context, string, string) error {
		atomic.AddInt32(&notified, 1)
		return nil
	}))

	ctx := context.Background()
	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindNetwork})
	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindTimeout})
	m.RecordOutcome(ctx, pipeline.Outcome{Success: false, Kind: classify.KindHTTPServerError})

	assert.Zero(t, atomic.LoadInt32(&notified))
}
