package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// defaultOwnerWindow is the recency window for session listings when the
// request does not pass ?hours=.
var defaultOwnerWindow = 24 * time.Hour

// SetOwnerWindowHours sets the default session recency window.
func SetOwnerWindowHours(h float64) {
	if h <= 0 {
		defaultOwnerWindow = 24 * time.Hour
		return
	}
	defaultOwnerWindow = time.Duration(h * float64(time.Hour))
}

// defaultCleanupAge is the staleness threshold for POST /api/sessions/cleanup
// when the request does not pass ?hours=.
var defaultCleanupAge = 24 * time.Hour

// SetCleanupAgeHours sets the default cleanup staleness threshold.
func SetCleanupAgeHours(h float64) {
	if h <= 0 {
		defaultCleanupAge = 24 * time.Hour
		return
	}
	defaultCleanupAge = time.Duration(h * float64(time.Hour))
}

// readyCheck reports whether the server's backing services are reachable.
var readyCheck = func() bool { return true }

// SetReadyCheck installs the readiness probe used by /readyz.
func SetReadyCheck(f func() bool) {
	if f == nil {
		readyCheck = func() bool { return true }
		return
	}
	readyCheck = f
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
