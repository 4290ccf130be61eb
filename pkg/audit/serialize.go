package audit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Vendor/product/version identify this product line in CEF/LEEF
// headers.
const (
	Vendor  = "Cellwarden"
	Product = "Cellwarden Audit"
	Version = "1.0"
)

// EncodeJSON serializes events as a JSON array, after redaction.
func EncodeJSON(events []Event) ([]byte, error) {
	redacted := make([]Event, len(events))
	for i, e := range events {
		redacted[i] = Redact(e)
	}
	return json.Marshal(redacted)
}

var failureEventType = regexp.MustCompile(`(?i)(failed|denied|blocked)`)

func severityFor(e Event) int {
	if !e.Success || failureEventType.MatchString(e.EventType) {
		return 8
	}
	if strings.HasPrefix(e.EventType, "admin.") {
		return 6
	}
	return 5
}

var cefHeaderEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, "\n", " ", "\r", " ")
var cefExtEscaper = strings.NewReplacer(`\`, `\\`, `=`, `\=`, "\n", " ", "\r", " ")

func escapeCEFHeader(s string) string { return cefHeaderEscaper.Replace(s) }
func escapeCEFExt(s string) string    { return cefExtEscaper.Replace(s) }

// EncodeCEF renders one event per line in Common Event Format.
func EncodeCEF(events []Event) string {
	var lines []string
	for _, raw := range events {
		e := Redact(raw)
		ext := cefExtensions(e)
		line := fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
			escapeCEFHeader(Vendor),
			escapeCEFHeader(Product),
			escapeCEFHeader(Version),
			escapeCEFHeader(e.EventType),
			escapeCEFHeader(e.EventType),
			severityFor(e),
			ext,
		)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func cefExtensions(e Event) string {
	kv := map[string]string{
		"externalId": e.ID,
		"rt":         e.Timestamp.Format("Jan 02 2006 15:04:05"),
		"suser":      e.Actor.ID,
		"outcome":    boolOutcome(e.Success),
	}
	if e.Resource != nil {
		kv["fname"] = e.Resource.Name
		kv["fileId"] = e.Resource.ID
	}
	if e.Error != nil {
		kv["reason"] = e.Error.Message
	}
	flattenDetails("details", e.Details, kv)
	return joinSortedKV(kv, " ")
}

func boolOutcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// EncodeLEEF renders one event per line in Log Event Extended Format
// using a tab delimiter between key=value segments.
func EncodeLEEF(events []Event) string {
	const delim = "\t"
	var lines []string
	for _, raw := range events {
		e := Redact(raw)
		kv := map[string]string{
			"devTime": e.Timestamp.Format("Jan 02 2006 15:04:05"),
			"usrName": e.Actor.ID,
			"cat":     e.EventType,
			"sev":     fmt.Sprintf("%d", severityFor(e)),
		}
		if e.Resource != nil {
			kv["resource"] = e.Resource.Name
		}
		if e.Error != nil {
			kv["reason"] = e.Error.Message
		}
		flattenDetails("details", e.Details, kv)

		header := fmt.Sprintf("LEEF:2.0|%s|%s|%s|%s|%s", Vendor, Product, Version, e.ID, delim)
		lines = append(lines, header+joinSortedKV(kv, delim))
	}
	return strings.Join(lines, "\n")
}

func flattenDetails(prefix string, details map[string]any, out map[string]string) {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := prefix + "." + k
		switch v := details[k].(type) {
		case map[string]any:
			flattenDetails(key, v, out)
		default:
			out[key] = fmt.Sprintf("%v", v)
		}
	}
}

func joinSortedKV(kv map[string]string, delim string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+escapeCEFExt(kv[k]))
	}
	return strings.Join(parts, delim)
}
