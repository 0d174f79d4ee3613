package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsAbnormalCloseCode reports whether a channel close code signals a
// transport failure rather than an orderly hangup.
func IsAbnormalCloseCode(code int) bool {
	// 1000 is normal closure, 1001 is going-away; both are orderly ends.
	return code != 1000 && code != 1001
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
