package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// ValidateIntRange validates that an integer is within the specified range (inclusive).
func ValidateIntRange(value, minVal, maxVal int) error {
	if value < minVal || value > maxVal {
		return fmt.Errorf("must be between %d and %d, got: %d", minVal, maxVal, value)
	}
	return nil
}

// ValidatePort validates that a port number is valid (1-65535).
func ValidatePort(port int) error {
	return ValidateIntRange(port, 1, 65535)
}

// ValidatePositiveDuration validates that a duration is positive.
func ValidatePositiveDuration(value time.Duration) error {
	if value <= 0 {
		return fmt.Errorf("must be positive, got: %s", value)
	}
	return nil
}

// ValidateNonNegativeDuration validates that a duration is non-negative.
func ValidateNonNegativeDuration(value time.Duration) error {
	if value < 0 {
		return fmt.Errorf("must be non-negative, got: %s", value)
	}
	return nil
}

// ValidateURL validates that a string is an absolute URL.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return errors.New("URL cannot be empty")
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" {
		return errors.New("URL must have a scheme (http:// or https://)")
	}
	if parsed.Host == "" {
		return errors.New("URL must have a host")
	}
	return nil
}

// ValidateNonEmpty validates that a string is not empty.
func ValidateNonEmpty(value string) error {
	if value == "" {
		return errors.New("cannot be empty")
	}
	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Key     string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// ValidateConfig checks the values of well known keys. Plugins validate their
// own settings when they're constructed.
func ValidateConfig(k *koanf.Koanf) []ValidationError {
	var errs []ValidationError
	check := func(key string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Key: key, Message: err.Error()})
		}
	}

	if k.Exists("address") {
		check("address", ValidateURL(k.String("address")))
	}
	if k.Exists("server.port") {
		check("server.port", ValidatePort(k.Int("server.port")))
	}
	if k.Exists("server.host") {
		check("server.host", ValidateNonEmpty(k.String("server.host")))
	}
	// Zero disables HSTS.
	if d := k.Duration("server.security.hstsExpiration"); d != 0 {
		check("server.security.hstsExpiration", ValidatePositiveDuration(d))
	}
	if k.Exists("server.security.corsMaxAge") {
		check("server.security.corsMaxAge", ValidateNonNegativeDuration(k.Duration("server.security.corsMaxAge")))
	}
	if k.Exists("auth.expiration") {
		check("auth.expiration", ValidatePositiveDuration(k.Duration("auth.expiration")))
	}
	return errs
}

// FormatValidationErrors formats validation errors into a readable message.
func FormatValidationErrors(errs []ValidationError) string {
	if len(errs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range errs {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	sb.WriteString("\nFix these errors in " + ConfigFile + " or environment variables and try again.")
	return sb.String()
}
