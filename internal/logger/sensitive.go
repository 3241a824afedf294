package logger

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials that may appear in request URLs, DSNs
// and broker addresses.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,&\s]{5,})`),
	// user:pass@ in DSNs and URLs
	regexp.MustCompile(`([a-zA-Z0-9_.-]+:)([^@/\s]+)(@)`),
}

var sensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "api_key",
	"apikey", "access_key", "secret_key", "authorization", "dsn",
}

// RedactSensitiveData replaces credential-looking substrings with [REDACTED].
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for i, pattern := range sensitivePatterns {
		if i == len(sensitivePatterns)-1 {
			input = pattern.ReplaceAllString(input, "$1[REDACTED]$3")
			continue
		}
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}
	return input
}

// RedactSensitiveFields returns a copy of fields where string values under
// credential-like keys are replaced and other strings are scrubbed.
func RedactSensitiveFields(fields []Field) []Field {
	result := make([]Field, len(fields))
	copy(result, fields)

	for i := range result {
		value, ok := result[i].Value.(string)
		if !ok || value == "" {
			continue
		}
		if isSensitiveKey(result[i].Key) {
			result[i].Value = "[REDACTED]"
			continue
		}
		result[i].Value = RedactSensitiveData(value)
	}
	return result
}

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeywords {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}
