// Package classify tags failed requests with an error kind so the pipeline
// can decide whether to retry and the diagnostics report can explain what
// went wrong.
//
// CORS detection is deliberately heuristic: HTTP transports do not expose a
// structured CORS-error type, so classification falls back to substring
// matching against known browser phrasings plus a "no response on a
// cross-origin request" signal. This is a known precision limitation.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// Kind is the classification of a request failure.
type Kind string

const (
	KindNone            Kind = "none"
	KindCORS            Kind = "cors"
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindHTTPClientError Kind = "httpClientError"
	KindHTTPServerError Kind = "httpServerError"
	KindParse           Kind = "parse"
)

// ErrDecode marks a response body that failed to decode as the expected
// format. Wrap decode failures with it so Classify reports KindParse.
var ErrDecode = errors.New("response body decode failed")

// corsPhrases are browser-side CORS error phrasings, matched case-insensitively.
var corsPhrases = []string{
	"cors",
	"access-control-allow-origin",
	"cross-origin request blocked",
}

// networkPhrases are generic transport failure phrasings, matched case-insensitively.
var networkPhrases = []string{
	"network error",
	"err_network",
	"err_failed",
}

// Classify inspects a failed request and returns its error kind. resp may be
// nil when no response was received; crossOrigin indicates the request was
// known to target another origin. Precedence when multiple signals match:
// timeout > cors > network > HTTP status > parse > none.
func Classify(err error, resp *http.Response, crossOrigin bool) Kind {
	if isTimeout(err) {
		return KindTimeout
	}

	if err != nil {
		msg := strings.ToLower(err.Error())

		if matchesAny(msg, corsPhrases) {
			return KindCORS
		}
		// No response on a cross-origin request with no recognizable
		// platform network signal: assume the transport swallowed a CORS
		// rejection. Plain connection failures would otherwise be
		// misreported here, which is why platform signals are checked
		// first.
		if resp == nil && crossOrigin && !isPlatformNetworkError(err) && !matchesAny(msg, networkPhrases) {
			return KindCORS
		}

		if matchesAny(msg, networkPhrases) || isPlatformNetworkError(err) {
			return KindNetwork
		}
	}

	if resp != nil {
		if kind := kindFromStatus(resp.StatusCode); kind != KindNone {
			return kind
		}
	}

	if errors.Is(err, ErrDecode) {
		return KindParse
	}

	if err != nil && resp == nil {
		// Unclassified transport failure with no response.
		return KindNetwork
	}

	return KindNone
}

// Retryable reports whether a failure of the given kind is transient enough
// to retry. CORS and HTTP client errors are terminal.
func Retryable(kind Kind) bool {
	return kind == KindNetwork || kind == KindTimeout
}

func kindFromStatus(status int) Kind {
	switch {
	case status >= 400 && status < 500:
		return KindHTTPClientError
	case status >= 500 && status < 600:
		return KindHTTPServerError
	default:
		return KindNone
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isPlatformNetworkError detects structured network failures the platform
// exposes: DNS resolution errors, dial errors and the common connect errnos.
func isPlatformNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	return false
}

func matchesAny(msg string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
