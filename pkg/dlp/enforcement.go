package dlp

import "github.com/cellwarden/cellwarden/pkg/sheet"

// cellOffset is a (row,col) pair relative to the start of the
// selection, used as the lazily-allocated per-cell rank map key.
type cellOffset struct {
	row, col int
}

// rangeRank pairs a selector range with its classification rank, kept
// sorted by rank descending so the cell check can early-exit.
type rangeRank struct {
	rng  sheet.Range
	rank Level
}

// Index is built once per tool call against the selection range and
// answers per-cell allow/deny questions in O(1) after O(n) setup,
// mirroring the spec's selector-then-fold enforcement algorithm.
type Index struct {
	selection  sheet.Range
	docSheet   Level
	columnRank []Level
	cellRank   map[cellOffset]Level
	ranges     []rangeRank
	maxAllowed Level
}

// BuildIndex constructs the enforcement index for one tool call's
// selection range.
func BuildIndex(records []ClassificationRecord, selection sheet.Range, maxAllowed Level, resolver TableColumnResolver) *Index {
	idx := &Index{
		selection:  selection,
		columnRank: make([]Level, selection.Cols()),
		cellRank:   map[cellOffset]Level{},
		maxAllowed: maxAllowed,
	}

	for _, rec := range records {
		switch rec.Selector.Kind {
		case SelectorDocument, SelectorSheet:
			if selectorIntersects(rec.Selector, selection, resolver) && rec.Classification.Level > idx.docSheet {
				idx.docSheet = rec.Classification.Level
			}
		case SelectorColumn:
			col := rec.Selector.Column
			if rec.Selector.Sheet == selection.Sheet && col >= selection.StartCol && col <= selection.EndCol {
				offset := col - selection.StartCol
				if rec.Classification.Level > idx.columnRank[offset] {
					idx.columnRank[offset] = rec.Classification.Level
				}
			}
		case SelectorTableColumn:
			if resolver == nil {
				continue
			}
			sheetName, col, ok := resolver.ResolveColumn(rec.Selector.TableID, rec.Selector.ColumnID)
			if ok && sheetName == selection.Sheet && col >= selection.StartCol && col <= selection.EndCol {
				offset := col - selection.StartCol
				if rec.Classification.Level > idx.columnRank[offset] {
					idx.columnRank[offset] = rec.Classification.Level
				}
			}
		case SelectorCell:
			if selection.Contains(rec.Selector.Address) {
				off := cellOffset{row: rec.Selector.Address.Row - selection.StartRow, col: rec.Selector.Address.Col - selection.StartCol}
				if rec.Classification.Level > idx.cellRank[off] {
					idx.cellRank[off] = rec.Classification.Level
				}
			}
		case SelectorRange:
			if rec.Selector.Range.Intersects(selection) {
				idx.ranges = append(idx.ranges, rangeRank{rng: rec.Selector.Range, rank: rec.Classification.Level})
			}
		}
	}

	sortRangesDescending(idx.ranges)
	return idx
}

func sortRangesDescending(ranges []rangeRank) {
	for i := 1; i < len(ranges); i++ {
		j := i
		for j > 0 && ranges[j-1].rank < ranges[j].rank {
			ranges[j-1], ranges[j] = ranges[j], ranges[j-1]
			j--
		}
	}
}

// Allowed reports whether the cell at (row,col) within the selection
// (0-based, absolute sheet coordinates) is permitted at the index's
// configured maxAllowed ceiling.
func (idx *Index) Allowed(row, col int) bool {
	return idx.EffectiveRank(row, col) <= idx.maxAllowed
}

// EffectiveRank computes the folded classification rank for one cell:
// max(doc,sheet) folded with column rank, cell rank, and intersecting
// range ranks (descending, early-exiting once no remaining range can
// raise the rank).
func (idx *Index) EffectiveRank(row, col int) Level {
	rank := idx.docSheet

	colOffset := col - idx.selection.StartCol
	if colOffset >= 0 && colOffset < len(idx.columnRank) && idx.columnRank[colOffset] > rank {
		rank = idx.columnRank[colOffset]
	}

	off := cellOffset{row: row - idx.selection.StartRow, col: colOffset}
	if cr, ok := idx.cellRank[off]; ok && cr > rank {
		rank = cr
	}

	addr := sheet.Address{Sheet: idx.selection.Sheet, Row: row, Col: col}
	for _, rr := range idx.ranges {
		if rr.rank <= rank {
			break
		}
		if rr.rng.Contains(addr) {
			rank = rr.rank
		}
	}
	return rank
}
