// Package environment reads configuration from environment variables.
//
// Every helper returns a value or a default instead of exiting, so the
// caller decides how a missing variable is reported.
package environment

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// String returns the variable's value and whether it was set at all, even
// when set to the empty string.
func String(name string) (string, bool) {
	return os.LookupEnv(name)
}

// StringOr returns the variable's value, or defaultValue when it is unset
// or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the variable's value, or an error when it is unset
// or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// DurationOr parses the variable as a time.Duration ("30s", "5m", "1h").
// Unset, empty and unparsable values all yield defaultValue.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr parses the variable as a comma-separated list with
// whitespace trimmed from each element. When the variable is unset, empty
// or contains only separators, defaultValue is returned.
func StringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	var result []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
