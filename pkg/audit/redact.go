package audit

import (
	"net/url"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// sensitiveKeyPattern matches a map key that should always have its
// value redacted regardless of content, grounded on the same
// credential-key vocabulary used by the codebase's secret scanner.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)^(pass(word)?|secret|token|api[-_]?key|authorization|cookie|set[-_]?cookie|private[-_]?key|client[-_]?secret|refresh[-_]?token|access[-_]?token)$`)

var bearerLikePrefix = regexp.MustCompile(`(?i)^(Bearer|Splunk) `)

// jwtShape matches three base64url segments joined by dots, at least
// 40 characters long in total.
var jwtShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// Redact returns a copy of e with sensitive values replaced. It is
// applied before an event leaves the process, on disk and on the wire.
func Redact(e Event) Event {
	out := e
	out.Details = redactMap(e.Details)
	if out.Context != nil {
		ctx := *out.Context
		out.Context = &ctx
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val)
	case []any:
		redacted := make([]any, len(val))
		for i, item := range val {
			redacted[i] = redactValue(item)
		}
		return redacted
	case string:
		return redactString(val)
	default:
		return v
	}
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKeyPattern.MatchString(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactString(s string) string {
	if loc := bearerLikePrefix.FindStringIndex(s); loc != nil {
		return s[:loc[1]] + redactedPlaceholder
	}
	if len(s) >= 40 && jwtShape.MatchString(s) {
		return redactedPlaceholder
	}
	return s
}

var sensitiveQueryParams = map[string]bool{
	"key": true, "api_key": true, "apikey": true, "token": true,
	"access_token": true, "auth": true, "authorization": true,
	"signature": true, "sig": true, "password": true, "secret": true,
	"client_secret": true,
}

// RedactURL clears embedded userinfo and fragment, and replaces every
// value of any sensitive query parameter (matched case-insensitively)
// with REDACTED, preserving repetition count. If the input does not
// parse as a URL, it is returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key, values := range q {
			if sensitiveQueryParams[strings.ToLower(key)] {
				for i := range values {
					values[i] = "REDACTED"
				}
				q[key] = values
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
