// Package security provides validation, sanitization, and limits for the jobs package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobTypeNameLength is the maximum length for job type names
	MaxJobTypeNameLength = 255

	// MaxRunnerNameLength is the maximum length for runner identities
	MaxRunnerNameLength = 255

	// MaxParametersSize is the maximum size in bytes for serialized parameters (1MB)
	MaxParametersSize = 1 << 20

	// MaxErrorMessageLength is the maximum length for logged error messages
	MaxErrorMessageLength = 4096

	// MaxItemCount bounds a single progress update
	MaxItemCount = 1 << 30
)

// validJobTypeName matches alphanumeric, hyphens, underscores, dots and colons
var validJobTypeName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.:]*$`)

// ValidateJobTypeName validates a job type name
func ValidateJobTypeName(name string) error {
	if name == "" {
		return core.ErrInvalidJobTypeName
	}
	if len(name) > MaxJobTypeNameLength {
		return core.ErrJobTypeNameTooLong
	}
	if !validJobTypeName.MatchString(name) {
		return core.ErrInvalidJobTypeName
	}
	return nil
}

// ValidateRunnerName validates a runner identity
func ValidateRunnerName(name string) error {
	if len(name) > MaxRunnerNameLength {
		return core.ErrRunnerNameTooLong
	}
	return nil
}

// ValidateParametersSize rejects oversized serialized parameters
func ValidateParametersSize(data []byte) error {
	if len(data) > MaxParametersSize {
		return core.ErrParametersTooLarge
	}
	return nil
}

// ValidateItemCount checks a progress increment.
func ValidateItemCount(n int) error {
	if n < 1 || n > MaxItemCount {
		return core.ErrInvalidItemCount
	}
	return nil
}

// ValidateTotalItems checks a total item count.
func ValidateTotalItems(n int) error {
	if n < 0 || n > MaxItemCount {
		return core.ErrInvalidItemCount
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for logging
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

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}
