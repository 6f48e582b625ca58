// Package diagnose runs a fixed battery of connectivity checks against the
// resolved backend environment and aggregates the results into a report.
// Checks run sequentially; a failing check never aborts the ones after it,
// and the runner itself never returns an error.
package diagnose

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/devprobe/apidiag/common/config"
	"github.com/devprobe/apidiag/common/logger"
	"github.com/devprobe/apidiag/environment"
	"github.com/devprobe/apidiag/pipeline"
)

// Check names in their fixed execution order.
const (
	CheckEnvironment     = "environment"
	CheckCORS            = "cors"
	CheckAPIConnectivity = "apiConnectivity"
	CheckAdminAPI        = "adminApi"
	CheckDNSLookup       = "dnsLookup"
	CheckTCPConnect      = "tcpConnect"
)

const adminUsersPath = "/api/v1/admin/users"

// CheckResult is the outcome of one diagnostic check.
type CheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Details  string        `json:"details"`
	Duration time.Duration `json:"duration"`
}

// Report is one diagnostic run. Tests preserves the fixed check order.
type Report struct {
	Timestamp   time.Time          `json:"timestamp"`
	Environment environment.Config `json:"environment"`
	Tests       []CheckResult      `json:"tests"`
}

// FailedCount returns the number of failed checks in the report.
func (r Report) FailedCount() int {
	failed := 0
	for _, test := range r.Tests {
		if !test.Passed {
			failed++
		}
	}
	return failed
}

// LookupHostFunc resolves a hostname to addresses.
type LookupHostFunc func(ctx context.Context, host string) ([]string, error)

// DialFunc opens a raw connection to addr within the timeout.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Runner executes diagnostic batteries against one environment.
type Runner struct {
	cfg        environment.Config
	client     *pipeline.Client
	token      string
	origin     string
	logger     glog.Logger
	lookupHost LookupHostFunc
	dial       DialFunc
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithToken sets the bearer token for the authorized admin probe.
func WithToken(token string) RunnerOption {
	return func(r *Runner) { r.token = token }
}

// WithOrigin sets the Origin header value used by the CORS probe.
func WithOrigin(origin string) RunnerOption {
	return func(r *Runner) { r.origin = origin }
}

// WithRunnerLogger replaces the runner logger.
func WithRunnerLogger(l glog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithLookupHost replaces the DNS resolver used by the dnsLookup check.
func WithLookupHost(fn LookupHostFunc) RunnerOption {
	return func(r *Runner) { r.lookupHost = fn }
}

// WithDial replaces the dialer used by the tcpConnect check.
func WithDial(fn DialFunc) RunnerOption {
	return func(r *Runner) { r.dial = fn }
}

// NewRunner builds a diagnostics runner over an existing pipeline client.
func NewRunner(client *pipeline.Client, opts ...RunnerOption) *Runner {
	var dialer net.Dialer
	var resolver net.Resolver
	r := &Runner{
		cfg:        client.Config(),
		client:     client,
		token:      config.APIToken,
		origin:     config.AppOrigin,
		logger:     logger.Logger,
		lookupHost: resolver.LookupHost,
		dial:       dialer.DialContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunQuick runs the environment, cors and apiConnectivity checks.
func (r *Runner) RunQuick(ctx context.Context) Report {
	return r.run(ctx, []func(context.Context) CheckResult{
		r.checkEnvironment,
		r.checkCORS,
		r.checkAPIConnectivity,
	})
}

// RunFull runs the quick battery plus the authorized admin probe and the
// platform connectivity checks.
func (r *Runner) RunFull(ctx context.Context) Report {
	return r.run(ctx, []func(context.Context) CheckResult{
		r.checkEnvironment,
		r.checkCORS,
		r.checkAPIConnectivity,
		r.checkAdminAPI,
		r.checkDNSLookup,
		r.checkTCPConnect,
	})
}

func (r *Runner) run(ctx context.Context, checks []func(context.Context) CheckResult) Report {
	report := Report{
		Timestamp:   time.Now(),
		Environment: r.cfg,
		Tests:       make([]CheckResult, 0, len(checks)),
	}

	for _, check := range checks {
		start := time.Now()
		result := check(ctx)
		result.Duration = time.Since(start)
		report.Tests = append(report.Tests, result)

		if result.Passed {
			r.logger.Debug("diagnostic check passed",
				zap.String("check", result.Name),
				zap.Duration("elapsed", result.Duration),
			)
		} else {
			r.logger.Warn("diagnostic check failed",
				zap.String("check", result.Name),
				zap.String("details", result.Details),
				zap.Duration("elapsed", result.Duration),
			)
		}
	}

	return report
}

// checkEnvironment always passes and records the resolved configuration.
func (r *Runner) checkEnvironment(context.Context) CheckResult {
	return CheckResult{
		Name:   CheckEnvironment,
		Passed: true,
		Details: fmt.Sprintf("name=%s baseUrl=%s proxy=%t timeout=%s retryAttempts=%d",
			r.cfg.Name, r.cfg.BaseURL, r.cfg.UseProxy, r.cfg.Timeout, r.cfg.RetryAttempts),
	}
}

// checkCORS issues a bare GET to the base URL with the app origin attached.
// It passes as long as a response comes back at all; only transport-level
// failures (the ones a browser would surface as a thrown fetch) fail it.
func (r *Runner) checkCORS(ctx context.Context) CheckResult {
	headers := map[string]string{}
	if r.origin != "" {
		headers["Origin"] = r.origin
	}
	outcome := r.client.Get(ctx, "", headers)

	if outcome.Status == 0 {
		return CheckResult{
			Name:    CheckCORS,
			Details: fmt.Sprintf("no response from %s: %s (classified %s)", r.cfg.BaseURL, outcome.Message, outcome.Kind),
		}
	}
	return CheckResult{
		Name:    CheckCORS,
		Passed:  true,
		Details: fmt.Sprintf("base URL reachable, status %d", outcome.Status),
	}
}

// checkAPIConnectivity probes {baseUrl}/health. Any response within the
// timeout passes regardless of status code.
func (r *Runner) checkAPIConnectivity(ctx context.Context) CheckResult {
	outcome := r.client.Get(ctx, "/health", nil)

	if outcome.Status == 0 {
		return CheckResult{
			Name:    CheckAPIConnectivity,
			Details: fmt.Sprintf("health endpoint unreachable: %s (classified %s)", outcome.Message, outcome.Kind),
		}
	}
	return CheckResult{
		Name:    CheckAPIConnectivity,
		Passed:  true,
		Details: fmt.Sprintf("health endpoint responded with status %d", outcome.Status),
	}
}

// checkAdminAPI issues an authorized GET to the admin listing endpoint and
// requires a 200 with a JSON body. A missing token is a caller-side
// precondition failure, reported without issuing the request.
func (r *Runner) checkAdminAPI(ctx context.Context) CheckResult {
	if r.token == "" {
		return CheckResult{
			Name:    CheckAdminAPI,
			Details: "no API token configured, skipping authorized probe",
		}
	}

	outcome := r.client.Get(ctx, adminUsersPath, map[string]string{
		"Authorization": "Bearer " + r.token,
	})

	switch {
	case outcome.Status != http.StatusOK:
		return CheckResult{
			Name:    CheckAdminAPI,
			Details: fmt.Sprintf("admin endpoint returned status %d (classified %s): %s", outcome.Status, outcome.Kind, outcome.Message),
		}
	case len(outcome.Body) == 0:
		return CheckResult{
			Name:    CheckAdminAPI,
			Details: "admin endpoint returned 200 without a JSON body",
		}
	default:
		return CheckResult{
			Name:    CheckAdminAPI,
			Passed:  true,
			Details: fmt.Sprintf("admin endpoint returned %d bytes of JSON", len(outcome.Body)),
		}
	}
}

// checkDNSLookup resolves the backend hostname.
func (r *Runner) checkDNSLookup(ctx context.Context) CheckResult {
	host := r.baseHost()
	if host == "" {
		return CheckResult{Name: CheckDNSLookup, Details: fmt.Sprintf("cannot extract host from %q", r.cfg.BaseURL)}
	}

	addrs, err := r.lookupHost(ctx, host)
	if err != nil {
		return CheckResult{Name: CheckDNSLookup, Details: fmt.Sprintf("lookup %s: %v", host, err)}
	}
	return CheckResult{
		Name:    CheckDNSLookup,
		Passed:  true,
		Details: fmt.Sprintf("%s resolves to %d address(es)", host, len(addrs)),
	}
}

// checkTCPConnect opens a raw connection to the backend host and port.
func (r *Runner) checkTCPConnect(ctx context.Context) CheckResult {
	addr := r.baseHostPort()
	if addr == "" {
		return CheckResult{Name: CheckTCPConnect, Details: fmt.Sprintf("cannot extract address from %q", r.cfg.BaseURL)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	conn, err := r.dial(ctx, "tcp", addr)
	if err != nil {
		return CheckResult{Name: CheckTCPConnect, Details: fmt.Sprintf("dial %s: %v", addr, err)}
	}
	_ = conn.Close()
	return CheckResult{
		Name:    CheckTCPConnect,
		Passed:  true,
		Details: fmt.Sprintf("tcp connection to %s succeeded", addr),
	}
}

func (r *Runner) baseHost() string {
	u, err := url.Parse(r.cfg.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (r *Runner) baseHostPort() string {
	u, err := url.Parse(r.cfg.BaseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
