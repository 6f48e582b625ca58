package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the value of the environment variable, or defaultValue when unset.
func String(key string, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// Int returns the integer value of the environment variable, or defaultValue
// when unset or unparseable.
func Int(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Bool returns the boolean value of the environment variable, or defaultValue
// when unset or unparseable. Accepts the forms strconv.ParseBool accepts.
func Bool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Duration returns the duration value of the environment variable, or
// defaultValue when unset or unparseable. Bare integers are interpreted as
// seconds.
func Duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
