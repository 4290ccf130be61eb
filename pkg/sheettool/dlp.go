package sheettool

import (
	"fmt"

	"github.com/cellwarden/cellwarden/pkg/dlp"
	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// dlpGate is the outcome of evaluating DLP for one tool call's
// selection range.
type dlpGate struct {
	decision dlp.Action
	index    *dlp.Index
	maxAllowed dlp.Level
}

// evaluateDLP runs the structured policy decision for rng under opts.
// When opts is nil, DLP is not configured and every call is allowed.
func evaluateDLP(rng sheet.Range, opts *DLPOptions) (dlpGate, error) {
	if opts == nil {
		return dlpGate{decision: dlp.ActionAllow}, nil
	}

	classification := dlp.EffectiveClassification(opts.ClassificationRecords, rng, opts.TableColumnResolver)
	result, err := dlp.EvaluatePolicy(dlp.EvaluationRequest{
		Action:         "ai.cloudProcessing",
		Classification: classification,
		Policy:         opts.Policy,
		Options:        dlp.EvaluationOptions{RestrictedAllowed: opts.IncludeRestrictedContent},
	})
	if err != nil {
		return dlpGate{}, fmt.Errorf("sheettool: dlp evaluation: %w", err)
	}

	gate := dlpGate{decision: result.Decision, maxAllowed: result.MaxAllowed}
	if result.Decision == dlp.ActionRedact {
		gate.index = dlp.BuildIndex(opts.ClassificationRecords, rng, result.MaxAllowed, opts.TableColumnResolver)
	}
	return gate, nil
}

// redactRow applies per-cell enforcement (plus the read_range-only
// heuristic scan) to one materialized row, returning the redacted
// count.
func redactRow(gate dlpGate, rng sheet.Range, rowOffset int, row []sheet.CellData, heuristicScan bool) int {
	if gate.decision != dlp.ActionRedact || gate.index == nil {
		if !heuristicScan {
			return 0
		}
	}

	redacted := 0
	for c := range row {
		absRow := rng.StartRow + rowOffset
		absCol := rng.StartCol + c

		denied := gate.index != nil && !gate.index.Allowed(absRow, absCol)
		if !denied && heuristicScan {
			if text, ok := row[c].Value.(string); ok && dlp.ScanCell(text) {
				denied = true
			}
		}
		if denied {
			cell := sheet.CellData{Value: redactedPlaceholder}
			if row[c].IsFormula() {
				cell.Formula = redactedPlaceholder
			}
			row[c] = cell
			redacted++
		}
	}
	return redacted
}

const redactedPlaceholder = "[REDACTED]"
