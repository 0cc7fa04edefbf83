// Package log provides a slog handler that masks secrets before they reach
// the log output.
//
// Crawls are configured with cookies and headers, and crawled URLs often
// carry tokens in their query string. SecureHandler masks:
//   - attributes whose key names a secret (cookie, authorization, token, ...)
//   - values shaped like secrets (JWTs, bearer and basic credentials)
//   - passwords in user:pass@ URLs and sensitive query parameter values
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
