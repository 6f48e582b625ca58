package pipeline

import "time"

// backoffDelay returns the pause before the given 1-based attempt number.
// The first attempt starts immediately; attempt k (k >= 2) waits
// 2^(k-2) seconds, so retries are spaced 1s, 2s, 4s, and so on.
func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(1<<(attempt-2)) * time.Second
}
