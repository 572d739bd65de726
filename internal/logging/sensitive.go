// Package logging builds the workbench's structured loggers and keeps
// credentials and case identifiers out of log output.
package logging

import (
	"regexp"
	"strings"
)

// SensitiveFields contains attribute keys whose values are never logged.
var SensitiveFields = map[string]bool{
	"password":          true,
	"passwd":            true,
	"secret":            true,
	"token":             true,
	"api_key":           true,
	"apikey":            true,
	"x-api-key":         true,
	"authorization":     true,
	"bearer":            true,
	"credentials":       true,
	"session_token":     true,
	"sasl_password":     true,
	"secret_access_key": true,
	"access_key_id":     true,
	"kms_key_id":        true,
}

// MaskedValue replaces sensitive values.
const MaskedValue = "[REDACTED]"

// IsSensitiveField reports whether a key names a secret. Matching is
// case-insensitive and also catches keys that contain a sensitive name.
func IsSensitiveField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return true
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// MaskSensitiveValue masks value if fieldName is sensitive.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" || !IsSensitiveField(fieldName) {
		return value
	}
	return MaskedValue
}

// MaskString keeps the first and last characters of s visible.
func MaskString(s string, showFirst, showLast int) string {
	if s == "" {
		return s
	}
	if len(s) <= showFirst+showLast+3 {
		return MaskedValue
	}
	return s[:showFirst] + "***" + s[len(s)-showLast:]
}

// MaskAPIKey shows the first and last four characters of a key.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return MaskedValue
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// MaskAccountID partially masks an account id for debug output, for
// example "ACC-****-19".
func MaskAccountID(id string) string {
	if len(id) <= 6 {
		return MaskedValue
	}
	return id[:4] + "****" + id[len(id)-2:]
}

// SensitivePatterns match secrets embedded in free text such as backend
// error bodies.
var SensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd)['":\s]*[=:]\s*['"]?([a-zA-Z0-9_\-\.]+)['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`),
	regexp.MustCompile(`(?i)basic\s+[a-zA-Z0-9+/=]+`),
	regexp.MustCompile(`(AKIA|ASIA)[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)neo4j(\+s|\+ssc)?://[^:\s]+:[^@\s]+@`),
}

// MaskSensitivePatterns masks sensitive patterns in s.
func MaskSensitivePatterns(s string) string {
	result := s
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllString(result, MaskedValue)
	}
	return result
}

// SafeLogValue returns a loggable form of value for the given key.
func SafeLogValue(fieldName string, value any) any {
	if value == nil {
		return nil
	}
	if !IsSensitiveField(fieldName) {
		if s, ok := value.(string); ok {
			return MaskSensitivePatterns(s)
		}
		return value
	}
	if v, ok := value.([]string); ok {
		masked := make([]string, len(v))
		for i := range v {
			masked[i] = MaskedValue
		}
		return masked
	}
	return MaskedValue
}
