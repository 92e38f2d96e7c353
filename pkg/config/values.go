package config

import (
	"net/url"
	"strings"
)

// HasRealConfigValue reports whether a configuration value carries a real
// setting rather than a scaffolding placeholder. Values containing phrases
// like "should be set", starting with "optional", or containing
// "replace_with" come from example env files and must be treated as absent.
func HasRealConfigValue(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "should be set") ||
		strings.HasPrefix(lower, "optional") ||
		strings.Contains(lower, "replace_with") {
		return false
	}

	return true
}

// HasValidHTTPURL reports whether a configuration value is a real value that
// also parses as an absolute http or https URL.
func HasValidHTTPURL(value string) bool {
	if !HasRealConfigValue(value) {
		return false
	}

	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
