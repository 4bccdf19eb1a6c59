package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked by the handler regardless of call site.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"hmac_secret":   {},
	"passphrase":    {},
	"private_key":   {},
	"secret":        {},
	"signature":     {},
}

// IsSensitive reports whether values logged under key are always masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// redact masks sensitive string attributes. Tokens already shortened by
// MaskToken pass through untouched.
func redact(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) || attr.Value.Kind() != slog.KindString {
		return attr
	}
	if value := attr.Value.String(); value == "" || strings.HasSuffix(value, RedactedValue) {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}

// MaskToken keeps a short prefix of a bearer credential so operators can
// correlate requests without leaking the secret.
func MaskToken(key, token string) slog.Attr {
	token = strings.TrimSpace(token)
	if token == "" {
		return slog.String(key, "")
	}
	if len(token) <= 8 {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, token[:6]+"..."+RedactedValue)
}
