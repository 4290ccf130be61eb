package sheettool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/audit"
	"github.com/cellwarden/cellwarden/pkg/sheet"
)

const maxFetchRedirects = 5

type fetchExternalDataTool struct {
	// Client is the HTTP round-tripper used for the outbound request.
	// Tests substitute a client whose Transport is a fake RoundTripper.
	Client *http.Client
}

func (fetchExternalDataTool) Name() string { return "fetch_external_data" }

func (t fetchExternalDataTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	if !ec.Config.AllowExternalData {
		return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied, "external data fetch is disabled"), nil
	}
	if ec.Config.PreviewMode {
		return ok(ec.ToolName, ec.StartTime, map[string]any{
			"preview": true,
			"rows":    [][]any{},
		}), nil
	}

	rawURL, _ := ec.Params["url"].(string)
	if rawURL == "" {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing url parameter"), nil
	}
	transform := stringParam(ec.Params, "transform", "raw_text")
	destRef, _ := ec.Params["destination_cell"].(string)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, finalURL, err := fetchFollowingRedirects(ctx, client, rawURL, ec.Config.AllowedExternalHosts, ec.Config.MaxExternalBytes)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied, "%v", err), nil
	}

	var rows [][]sheet.CellData
	switch transform {
	case "raw_text":
		rows = [][]sheet.CellData{{{Value: string(body)}}}
	case "json":
		rows, err = jsonToTable(body, ec.Config.MaxToolRangeCells)
		if err != nil {
			return failf(ec.ToolName, ec.StartTime, ErrValidation, "%v", err), nil
		}
	default:
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "unsupported transform %q", transform), nil
	}

	data := map[string]any{
		"url":        audit.RedactURL(finalURL),
		"transform":  transform,
		"rows_count": len(rows),
	}

	if destRef != "" {
		destAddr, err := ParseA1Address(destRef, ec.Config.DefaultSheet, ec.Config.SheetNameResolver)
		if err != nil {
			return failf(ec.ToolName, ec.StartTime, ErrValidation, "malformed destination_cell: %v", err), nil
		}
		written := sheet.Range{
			Sheet: destAddr.Sheet, StartRow: destAddr.Row, StartCol: destAddr.Col,
			EndRow: destAddr.Row + len(rows) - 1, EndCol: destAddr.Col + maxRowLen(rows) - 1,
		}
		if written.Cells() > 0 {
			if err := ec.API.WriteRange(written, rows); err != nil {
				return failf(ec.ToolName, ec.StartTime, ErrRuntime, "write fetched data: %v", err), nil
			}
			ec.Metadata["written_range"] = written
			data["destination"] = FormatA1Range(written, ec.Config.SheetNameResolver)
		}
	} else {
		rowsAny := make([][]any, len(rows))
		for i, row := range rows {
			line := make([]any, len(row))
			for c, cell := range row {
				line[c] = cell.Value
			}
			rowsAny[i] = line
		}
		data["rows"] = rowsAny
	}

	return ok(ec.ToolName, ec.StartTime, data), nil
}

func maxRowLen(rows [][]sheet.CellData) int {
	max := 0
	for _, row := range rows {
		if len(row) > max {
			max = len(row)
		}
	}
	return max
}

// fetchFollowingRedirects performs the GET, manually following
// redirects up to maxFetchRedirects hops, re-validating the target
// host on every hop and dropping credential headers whenever the host
// changes. It never downgrades from https to http.
func fetchFollowingRedirects(ctx context.Context, client *http.Client, rawURL string, allowedHosts []string, maxBytes int64) ([]byte, string, error) {
	current := rawURL
	dropCredentials := false

	for hop := 0; ; hop++ {
		if hop > maxFetchRedirects {
			return nil, "", fmt.Errorf("too many redirects")
		}

		u, err := validateFetchURL(current, allowedHosts)
		if err != nil {
			return nil, "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", fmt.Errorf("building request: %w", err)
		}
		if dropCredentials {
			req.Header.Del("Authorization")
			req.Header.Del("Cookie")
		}

		noRedirectClient := *client
		noRedirectClient.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

		resp, err := noRedirectClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetching %s: %w", u.Host, err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return nil, "", fmt.Errorf("redirect with no Location header")
			}
			next, err := u.Parse(location)
			if err != nil {
				return nil, "", fmt.Errorf("malformed redirect location: %w", err)
			}
			if u.Scheme == "https" && next.Scheme == "http" {
				return nil, "", fmt.Errorf("refusing to downgrade from https to http on redirect")
			}
			if next.Host != u.Host {
				dropCredentials = true
			}
			current = next.String()
			continue
		}

		defer resp.Body.Close()
		if resp.ContentLength > 0 && maxBytes > 0 && resp.ContentLength > maxBytes {
			return nil, "", fmt.Errorf("declared content-length %d exceeds the %d byte cap", resp.ContentLength, maxBytes)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		var reader io.Reader = resp.Body
		if maxBytes > 0 {
			reader = io.LimitReader(resp.Body, maxBytes+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, "", fmt.Errorf("reading response body: %w", err)
		}
		if maxBytes > 0 && int64(len(body)) > maxBytes {
			return nil, "", fmt.Errorf("streamed body exceeds the %d byte cap", maxBytes)
		}
		return body, u.String(), nil
	}
}

// validateFetchURL enforces the http/https-only, no-userinfo,
// host-allowlist rules against raw.
func validateFetchURL(raw string, allowedHosts []string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https")
	}
	if u.User != nil {
		return nil, fmt.Errorf("url must not embed credentials")
	}
	if len(allowedHosts) == 0 {
		return nil, fmt.Errorf("external fetch has no allowed hosts configured")
	}
	if !hostAllowed(u, allowedHosts) {
		return nil, fmt.Errorf("host %q is not in the allowed external hosts list", u.Host)
	}
	return u, nil
}

func hostAllowed(u *url.URL, allowedHosts []string) bool {
	host := u.Hostname()
	port := u.Port()
	for _, allowed := range allowedHosts {
		allowedHost, allowedPort, err := net.SplitHostPort(allowed)
		if err != nil {
			allowedHost = allowed
			allowedPort = ""
		}
		if !strings.EqualFold(allowedHost, host) {
			continue
		}
		if allowedPort == "" || allowedPort == port {
			return true
		}
	}
	return false
}

// jsonToTable converts a JSON payload shaped as an array of arrays, an
// array of objects, or a single object into a rectangular table,
// rejecting shapes whose cell count would exceed maxCells.
func jsonToTable(body []byte, maxCells int) ([][]sheet.CellData, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("response is not valid json: %w", err)
	}

	switch v := decoded.(type) {
	case []any:
		return arrayToTable(v, maxCells)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		if err := checkCellBudget(2, len(keys), maxCells); err != nil {
			return nil, err
		}
		rows := make([][]sheet.CellData, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []sheet.CellData{{Value: k}, {Value: v[k]}})
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("json payload must be an array or object to convert to a table")
	}
}

func arrayToTable(items []any, maxCells int) ([][]sheet.CellData, error) {
	if len(items) == 0 {
		return [][]sheet.CellData{}, nil
	}

	if _, ok := items[0].(map[string]any); ok {
		columns := make([]string, 0)
		seen := map[string]bool{}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("array of objects must be uniform")
			}
			for k := range obj {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, k)
				}
			}
		}
		if err := checkCellBudget(len(items)+1, len(columns), maxCells); err != nil {
			return nil, err
		}
		rows := make([][]sheet.CellData, 0, len(items)+1)
		header := make([]sheet.CellData, len(columns))
		for i, c := range columns {
			header[i] = sheet.CellData{Value: c}
		}
		rows = append(rows, header)
		for _, item := range items {
			obj := item.(map[string]any)
			row := make([]sheet.CellData, len(columns))
			for i, c := range columns {
				row[i] = sheet.CellData{Value: obj[c]}
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	width := 1
	for _, item := range items {
		if arr, ok := item.([]any); ok && len(arr) > width {
			width = len(arr)
		}
	}
	if err := checkCellBudget(len(items), width, maxCells); err != nil {
		return nil, err
	}
	rows := make([][]sheet.CellData, len(items))
	for i, item := range items {
		row := make([]sheet.CellData, width)
		if arr, ok := item.([]any); ok {
			for j, v := range arr {
				row[j] = sheet.CellData{Value: v}
			}
		} else {
			row[0] = sheet.CellData{Value: item}
		}
		rows[i] = row
	}
	return rows, nil
}

func checkCellBudget(rows, cols, maxCells int) error {
	if maxCells > 0 && rows*cols > maxCells {
		return fmt.Errorf("converted table would span %d cells, exceeding the %d cap", rows*cols, maxCells)
	}
	return nil
}

