package sheettool

import "github.com/cellwarden/cellwarden/pkg/dlp"

// SheetNameResolver canonicalizes between a display name and a stable
// sheet id, so A1 parsing and DLP selectors can key off the stable id
// while results are formatted back using the display name.
type SheetNameResolver interface {
	ToStableID(displayName string) (string, bool)
	ToDisplayName(stableID string) (string, bool)
}

// DLPOptions configures the per-call DLP evaluation.
type DLPOptions struct {
	DocumentID               string
	SheetID                  string
	Policy                   dlp.Policy
	ClassificationRecords    []dlp.ClassificationRecord
	TableColumnResolver      dlp.TableColumnResolver
	IncludeRestrictedContent bool
	AuditLogger              AuditLogger
}

// AuditLogger receives one audit-visible record per tool call. The
// executor hands it an already-compacted view; callers wire this to
// the durable audit pipeline.
type AuditLogger interface {
	LogToolCall(record ToolCallAudit)
}

// ToolCallAudit is the audit-visible record of one tool invocation.
type ToolCallAudit struct {
	Tool             string
	Parameters       map[string]any
	Result           map[string]any
	OK               bool
	RedactedCellCount int
	DLPDecision      string
}

// ExecutorConfig holds the recognized options and their effects,
// mirroring the catalogue's documented configuration surface.
type ExecutorConfig struct {
	DefaultSheet         string
	SheetNameResolver    SheetNameResolver
	AllowExternalData    bool
	PreviewMode          bool
	AllowedExternalHosts []string

	MaxExternalBytes            int64
	MaxReadRangeCells           int
	MaxReadRangeChars           int
	MaxToolRangeCells           int
	MaxFilterRangeMatchingRows  int
	MaxDetectAnomalies          int

	IncludeFormulaValues bool
	DLP                  *DLPOptions
}

// DefaultExecutorConfig returns a conservative set of budgets.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultSheet:               "Sheet1",
		AllowExternalData:          false,
		MaxExternalBytes:           5 * 1024 * 1024,
		MaxReadRangeCells:          200_000,
		MaxReadRangeChars:          2_000_000,
		MaxToolRangeCells:          200_000,
		MaxFilterRangeMatchingRows: 50_000,
		MaxDetectAnomalies:         50_000,
	}
}
