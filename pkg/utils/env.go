package utils

import (
	"os"
	"strconv"
	"strings"
)

// Env returns the trimmed value of key, or defaultValue when it is unset or blank
func Env(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// EnvBool reads key as a flag. Values other than true/1/yes/on and
// false/0/no/off leave defaultValue in place.
func EnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(Env(key, "")) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return defaultValue
}

// EnvUint32 reads key as an unsigned number. A value that does not parse
// leaves defaultValue in place.
func EnvUint32(key string, defaultValue uint32) uint32 {
	n, err := strconv.ParseUint(Env(key, ""), 10, 32)
	if err != nil {
		return defaultValue
	}
	return uint32(n)
}
