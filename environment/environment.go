// Package environment derives the active deployment environment and its
// request configuration from the web application's origin.
package environment

import (
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/zap"

	"github.com/devprobe/apidiag/common/config"
	"github.com/devprobe/apidiag/common/logger"
)

// Name identifies a deployment environment.
type Name string

const (
	Development Name = "development"
	Production  Name = "production"
	Staging     Name = "staging"
	Unknown     Name = "unknown"
)

// Config holds the request settings for a resolved environment. Values are
// immutable once resolved; resolving again re-derives them from scratch.
type Config struct {
	Name          Name
	BaseURL       string
	UseProxy      bool
	Timeout       time.Duration
	RetryAttempts int
}

// hostingSuffixes are hosting-platform domains whose presence in a hostname
// marks a production deployment.
var hostingSuffixes = []string{
	"vercel.app",
	"netlify.app",
	"onrender.com",
	"fly.dev",
	"herokuapp.com",
	"pages.dev",
	"github.io",
	"web.app",
	"firebaseapp.com",
	"surge.sh",
}

// localHostnames always resolve to the development environment.
var localHostnames = []string{"localhost", "127.0.0.1"}

func developmentConfig() Config {
	return Config{
		Name:          Development,
		BaseURL:       "http://localhost:4000",
		UseProxy:      true,
		Timeout:       10 * time.Second,
		RetryAttempts: 2,
	}
}

func productionConfig() Config {
	return Config{
		Name:          Production,
		BaseURL:       "https://api.devprobe.app",
		UseProxy:      false,
		Timeout:       15 * time.Second,
		RetryAttempts: 3,
	}
}

func stagingConfig() Config {
	cfg := productionConfig()
	cfg.Name = Staging
	cfg.BaseURL = "https://api-staging.devprobe.app"
	return cfg
}

// Resolve derives the environment configuration from the application origin,
// e.g. "https://myapp.vercel.app" or "http://localhost:3000". It never fails:
// an unparseable origin or an unrecognized hostname yields the unknown
// environment, which reuses production's settings under the name "unknown".
func Resolve(origin string) Config {
	hostname := hostnameOf(origin)

	for _, local := range localHostnames {
		if hostname == local {
			return developmentConfig()
		}
	}

	for _, suffix := range hostingSuffixes {
		if hostname != "" && strings.Contains(hostname, suffix) {
			return productionConfig()
		}
	}

	cfg := productionConfig()
	cfg.Name = Unknown
	return cfg
}

// FromEnv resolves the environment from process configuration: APP_ENV forces
// a named environment, otherwise the environment is derived from APP_ORIGIN.
// API_BASE_URL, REQUEST_TIMEOUT and RETRY_ATTEMPTS override the resolved
// values. The result always satisfies RetryAttempts >= 1.
func FromEnv() Config {
	var cfg Config
	switch Name(strings.ToLower(strings.TrimSpace(config.AppEnv))) {
	case Development:
		cfg = developmentConfig()
	case Production:
		cfg = productionConfig()
	case Staging:
		cfg = stagingConfig()
	default:
		cfg = Resolve(config.AppOrigin)
	}

	if config.APIBaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(config.APIBaseURL, "/")
	}
	if config.RequestTimeout > 0 {
		cfg.Timeout = config.RequestTimeout
	}
	if config.RetryAttempts > 0 {
		cfg.RetryAttempts = config.RetryAttempts
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}

	logger.Logger.Debug("resolved environment",
		zap.String("name", string(cfg.Name)),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("retry_attempts", cfg.RetryAttempts),
	)

	return cfg
}

// hostnameOf extracts the hostname (without port) from an origin string. A
// bare hostname without a scheme is accepted as-is.
func hostnameOf(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}

	u, err := url.Parse(origin)
	if err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}

	// No scheme: treat the whole value as host[:port].
	u, err = url.Parse("//" + origin)
	if err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}

	return strings.ToLower(origin)
}
