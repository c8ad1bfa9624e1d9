package limits

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aager/image-backfill/pkg/core"
)

// Bounds applied to run configuration and persisted values.
const (
	// MaxLookupKeyLength is the maximum length for catalog lookup keys
	MaxLookupKeyLength = 128

	// MaxAttempts is the hard limit for per-item processing attempts
	MaxAttempts = 20

	// MaxConcurrency is the hard limit for worker pool size
	MaxConcurrency = 256

	// MaxRPS is the hard limit for the external-call rate budget
	MaxRPS = 500.0

	// MaxBurst is the hard limit for the rate limiter burst size
	MaxBurst = 1000

	// MaxBatchSize is the hard limit for catalog enumeration pages
	MaxBatchSize = 5000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 500

	// MaxDownloadBytes is the hard limit for a single image download (32MB)
	MaxDownloadBytes = 32 << 20
)

// ValidateLookupKey validates a catalog lookup key before it is sent to
// the search service.
func ValidateLookupKey(key string) error {
	if key == "" {
		return core.ErrInvalidLookupKey
	}
	if utf8.RuneCountInString(key) > MaxLookupKeyLength {
		return core.ErrInvalidLookupKey
	}
	for _, r := range key {
		if !unicode.IsPrint(r) {
			return core.ErrInvalidLookupKey
		}
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampAttempts ensures the retry budget is within limits
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampConcurrency ensures the worker pool size is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// ClampRPS ensures the rate budget is positive and within limits
func ClampRPS(rps float64) float64 {
	if rps <= 0 {
		return 1
	}
	if rps > MaxRPS {
		return MaxRPS
	}
	return rps
}

// ClampBurst ensures the burst size is within limits
func ClampBurst(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBurst {
		return MaxBurst
	}
	return n
}

// ClampBatchSize ensures enumeration pages are within limits
func ClampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// ClampDownloadBytes ensures the download cap is positive and within limits
func ClampDownloadBytes(n int64) int64 {
	if n < 1 {
		return MaxDownloadBytes
	}
	if n > MaxDownloadBytes {
		return MaxDownloadBytes
	}
	return n
}
