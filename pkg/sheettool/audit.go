package sheettool

import (
	"fmt"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

// maxAuditChars bounds the serialized size of any single audit value
// (a parameter or a result field) before it is truncated.
const maxAuditChars = 20_000

const maxAuditDepth = 6
const maxAuditArrayLen = 50
const maxAuditObjectKeys = 50

var redactedHeaderNames = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
}

// buildAudit compacts one tool call into its audit-visible record:
// parameters and result are recursively truncated to bounded shapes,
// the fetch_external_data URL has its credentials stripped, and
// header-like keys that look like secrets are redacted outright.
func buildAudit(name string, params map[string]any, result *Result) ToolCallAudit {
	audit := ToolCallAudit{
		Tool:       name,
		Parameters: compactParams(name, params),
	}
	if result == nil {
		return audit
	}

	audit.OK = result.OK
	audit.Result = compactValue(resultToMap(result), 0).(map[string]any)
	if gate, ok := result.Data["dlp_decision"].(string); ok {
		audit.DLPDecision = gate
	}
	if n, ok := result.Data["redacted_cell_count"].(int); ok {
		audit.RedactedCellCount = n
	}
	return audit
}

func resultToMap(result *Result) map[string]any {
	out := map[string]any{
		"tool": result.Tool,
		"ok":   result.OK,
	}
	if len(result.Data) > 0 {
		out["data"] = result.Data
	}
	if len(result.Warnings) > 0 {
		out["warnings"] = result.Warnings
	}
	if result.Error != nil {
		out["error"] = map[string]any{"code": string(result.Error.Code), "message": result.Error.Message}
	}
	return out
}

// compactParams applies the same recursive truncation as results,
// plus tool-specific redaction: fetch_external_data's url has any
// embedded userinfo stripped, and any header map drops secret-looking
// entries entirely rather than truncating them.
func compactParams(name string, params map[string]any) map[string]any {
	cloned := make(map[string]any, len(params))
	for k, v := range params {
		cloned[k] = v
	}
	if name == "fetch_external_data" {
		if raw, ok := cloned["url"].(string); ok {
			cloned["url"] = audit.RedactURL(raw)
		}
		if headers, ok := cloned["headers"].(map[string]any); ok {
			cloned["headers"] = redactHeaders(headers)
		}
	}
	compacted := compactValue(cloned, 0)
	m, _ := compacted.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func redactHeaders(headers map[string]any) map[string]any {
	out := make(map[string]any, len(headers))
	for k, v := range headers {
		if isSecretHeaderName(k) {
			out[k] = "REDACTED"
			continue
		}
		out[k] = v
	}
	return out
}

func isSecretHeaderName(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := redactedHeaderNames[lower]; ok {
		return true
	}
	return strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") ||
		strings.Contains(lower, "signature") ||
		strings.Contains(lower, "api-key") ||
		strings.Contains(lower, "apikey") ||
		strings.HasSuffix(lower, "key")
}

// compactValue recursively bounds a value's shape: a string beyond
// maxAuditChars becomes a truncation envelope carrying its original
// length; an array beyond maxAuditArrayLen keeps its first elements plus
// a {truncated, original_length} marker; an object beyond
// maxAuditObjectKeys keeps that many keys plus truncated/original_keys
// entries; a value at maxAuditDepth becomes an envelope holding its %v
// text with original_chars 0.
func compactValue(v any, depth int) any {
	if depth >= maxAuditDepth {
		return truncationEnvelope(fmt.Sprintf("%v", v), 0)
	}

	switch val := v.(type) {
	case string:
		if len(val) > maxAuditChars {
			return truncationEnvelope(val[:maxAuditChars], len(val))
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		count := 0
		for k, item := range val {
			if count >= maxAuditObjectKeys {
				out["truncated"] = true
				out["original_keys"] = len(val)
				break
			}
			out[k] = compactValue(item, depth+1)
			count++
		}
		return out
	case []any:
		n := len(val)
		if n > maxAuditArrayLen {
			n = maxAuditArrayLen
		}
		out := make([]any, 0, n+1)
		for i := 0; i < n; i++ {
			out = append(out, compactValue(val[i], depth+1))
		}
		if len(val) > maxAuditArrayLen {
			out = append(out, map[string]any{"truncated": true, "original_length": len(val)})
		}
		return out
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return compactValue(items, depth)
	default:
		return val
	}
}

func truncationEnvelope(prefix string, originalChars int) map[string]any {
	return map[string]any{
		"truncated":      true,
		"value":          prefix,
		"original_chars": originalChars,
	}
}
