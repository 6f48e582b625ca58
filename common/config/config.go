package config

import (
	"time"

	"github.com/devprobe/apidiag/common/env"
)

var (
	// AppOrigin is the deployment origin of the web application whose backend
	// is being probed, e.g. "https://myapp.vercel.app". The environment
	// resolver derives the named environment from this value.
	AppOrigin = env.String("APP_ORIGIN", "http://localhost:3000")

	// AppEnv forces a named environment (development/production/staging)
	// instead of deriving it from AppOrigin. Empty means auto-detect.
	AppEnv = env.String("APP_ENV", "")

	// APIBaseURL overrides the resolved backend base URL for the active
	// environment. Empty means use the environment's default.
	APIBaseURL = env.String("API_BASE_URL", "")

	// APIToken is the bearer token used by the authorized admin probe. The
	// token is managed externally; this package only reads it.
	APIToken = env.String("API_TOKEN", "")

	// RequestTimeout overrides the per-request timeout for the active
	// environment. Zero means use the environment's default.
	RequestTimeout = env.Duration("REQUEST_TIMEOUT", 0)

	// RetryAttempts overrides the total attempt budget for retried requests.
	// Zero means use the environment's default; effective values are clamped
	// to at least one attempt.
	RetryAttempts = env.Int("RETRY_ATTEMPTS", 0)

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)

	// MessagePusherAddress is the webhook endpoint that receives diagnostic
	// notifications (CORS failures). Empty disables pushing.
	MessagePusherAddress = env.String("MESSAGE_PUSHER_ADDRESS", "")
	// MessagePusherToken authenticates against the message pusher service.
	MessagePusherToken = env.String("MESSAGE_PUSHER_TOKEN", "")

	// MetricQueueSize is the number of recent request outcomes kept by the
	// outcome monitor when computing the rolling success rate.
	MetricQueueSize = env.Int("METRIC_QUEUE_SIZE", 10)
	// MetricSuccessRateThreshold is the success rate below which the outcome
	// monitor reports the backend as unhealthy.
	MetricSuccessRateThreshold = float64(env.Int("METRIC_SUCCESS_RATE_THRESHOLD_PERCENT", 80)) / 100

	// CORSNotifyCooldown suppresses repeat CORS failure notifications inside
	// this window so a flapping endpoint does not flood the pusher.
	CORSNotifyCooldown = time.Second * time.Duration(env.Int("CORS_NOTIFY_COOLDOWN_SECONDS", 60))
)
