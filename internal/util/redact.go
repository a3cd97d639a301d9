package util

import (
	"regexp"
	"strings"
)

var (
	keyValuePattern = regexp.MustCompile(`(?i)(api_key|apikey|x-api-key|secret|token|password|access_key|private_key)\s*[:=]\s*([^\s"']+)`)
	bearerPattern   = regexp.MustCompile(`(?i)(bearer)\s+[a-z0-9._~+/-]+=*`)
	privateKeyBlock = regexp.MustCompile(`(?is)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)
	jwtPattern      = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.?[a-zA-Z0-9_-]*`)
	skPattern       = regexp.MustCompile(`(?i)sk-[a-z0-9]{20,}`)
)

// Redacted replaces sensitive values in structured log payloads.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"x-api-key":     {},
	"api_key":       {},
	"apikey":        {},
	"token":         {},
	"access_token":  {},
	"secret":        {},
	"password":      {},
}

// RedactSecrets removes likely secrets from text.
func RedactSecrets(input string) string {
	out := keyValuePattern.ReplaceAllString(input, `$1=[REDACTED]`)
	out = bearerPattern.ReplaceAllString(out, `$1 [REDACTED]`)
	out = privateKeyBlock.ReplaceAllString(out, "[REDACTED PRIVATE KEY]")
	out = jwtPattern.ReplaceAllString(out, "[REDACTED JWT]")
	out = skPattern.ReplaceAllString(out, "[REDACTED KEY]")
	return out
}

// IsSensitiveKey reports whether a map key or header name holds a credential.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactValue walks decoded JSON and masks values stored under sensitive keys.
func RedactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = RedactValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = RedactValue(item)
		}
		return out
	case string:
		return RedactSecrets(val)
	default:
		return v
	}
}

// RedactHeaders returns header names mapped to values with credentials masked.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}
