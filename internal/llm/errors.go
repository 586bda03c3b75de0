package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFatalAPI marks API errors that retrying cannot fix: billing, quota, or
// credential problems. Callers should stop retrying and surface the error.
var ErrFatalAPI = errors.New("fatal API error")

// fatalPatterns are substrings of provider error messages that indicate a
// non-retryable account-level failure.
var fatalPatterns = []string{
	"credit balance",
	"rate limit exceeded",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication failed",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err matches a known fatal pattern.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError wraps fatal API errors with ErrFatalAPI so callers can use
// errors.Is; non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %s", ErrFatalAPI, err)
	}
	return err
}
