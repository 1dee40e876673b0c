package httpapi

import "time"

// loadTimeout bounds a POST /models/{name}/load request. Zero means no
// additional timeout beyond server/connection timeouts.
var loadTimeout time.Duration

// SetLoadTimeoutSeconds sets the load timeout in seconds (0 disables).
func SetLoadTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	loadTimeout = time.Duration(sec) * time.Second
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
