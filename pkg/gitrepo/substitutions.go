package gitrepo

import (
	"fmt"
	"regexp"
	"strings"
)

// Declarative accessor patterns in infrastructure program source. Each is
// replaced with a quoted literal so the pushed program no longer depends on
// runtime configuration lookups.
var (
	requirePattern   = regexp.MustCompile(`config\.require\(\s*"([^"]+)"\s*\)`)
	getSecretPattern = regexp.MustCompile(`config\.getSecret\(\s*"([^"]+)"\s*\)`)
	getPattern       = regexp.MustCompile(`config\.get\(\s*"([^"]+)"\s*\)\s*\|\|\s*("[^"]*")`)
)

// ApplySubstitutions rewrites file content for a push. Brace-delimited
// placeholders "{{key}}" are replaced with the raw parameter value.
// config.require("key") and config.getSecret("key") become the quoted
// parameter value; config.get("key") || "default" becomes the quoted
// parameter value when the key is present and keeps the default otherwise.
func ApplySubstitutions(content string, params map[string]string) string {
	for key, value := range params {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}

	content = requirePattern.ReplaceAllStringFunc(content, func(match string) string {
		key := requirePattern.FindStringSubmatch(match)[1]
		if value, ok := params[key]; ok {
			return quote(value)
		}
		return match
	})

	content = getSecretPattern.ReplaceAllStringFunc(content, func(match string) string {
		key := getSecretPattern.FindStringSubmatch(match)[1]
		if value, ok := params[key]; ok {
			return quote(value)
		}
		return match
	})

	content = getPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := getPattern.FindStringSubmatch(match)
		if value, ok := params[groups[1]]; ok {
			return quote(value)
		}
		return groups[2]
	})

	return content
}

func quote(value string) string {
	return fmt.Sprintf("%q", value)
}
