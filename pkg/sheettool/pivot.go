package sheettool

import (
	"strconv"
	"sync"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// pivotDefinition is one registered pivot's source and last-materialized
// destination, enough state to recompute and rewrite it in place.
type pivotDefinition struct {
	id          string
	spec        PivotSpec
	source      sheet.Range
	destination sheet.Range
}

// PivotSpec describes how a pivot table's output is derived from its
// source range: group rows by the values in groupByCol, aggregate the
// values in valueCol with aggregate.
type PivotSpec struct {
	GroupByCol int
	ValueCol   int
	Aggregate  PivotAggregate
	DestSheet  string
	DestRow    int
	DestCol    int
}

// PivotAggregate names a supported aggregation function.
type PivotAggregate string

const (
	PivotSum   PivotAggregate = "sum"
	PivotCount PivotAggregate = "count"
	PivotAvg   PivotAggregate = "avg"
	PivotMin   PivotAggregate = "min"
	PivotMax   PivotAggregate = "max"
)

// PivotRegistry tracks pivots created by create_pivot_table so later
// mutations to their source ranges can trigger a refresh.
type PivotRegistry struct {
	mu     sync.Mutex
	seq    int
	pivots map[string]*pivotDefinition
}

// NewPivotRegistry returns an empty registry.
func NewPivotRegistry() *PivotRegistry {
	return &PivotRegistry{pivots: map[string]*pivotDefinition{}}
}

// Register records a newly created pivot's source and destination.
func (p *PivotRegistry) Register(spec PivotSpec, source, destination sheet.Range) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := "pivot-" + strconv.Itoa(p.seq)
	p.pivots[id] = &pivotDefinition{id: id, spec: spec, source: source, destination: destination}
	return id
}

// Count returns the number of registered pivots, for diagnostics.
func (p *PivotRegistry) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pivots)
}

// RefreshAffectedBy recomputes every pivot whose source range intersects
// written. A pivot is skipped, rather than refreshed, when its source,
// its current destination, or the destination the refresh would write
// exceeds maxToolRangeCells; a skipped pivot leaves the workbook
// untouched.
func (p *PivotRegistry) RefreshAffectedBy(api sheet.SpreadsheetApi, written sheet.Range, maxToolRangeCells int) {
	p.mu.Lock()
	affected := make([]*pivotDefinition, 0)
	for _, def := range p.pivots {
		if def.source.Sheet == written.Sheet && def.source.Intersects(written) {
			affected = append(affected, def)
		}
	}
	p.mu.Unlock()

	for _, def := range affected {
		if maxToolRangeCells > 0 && (def.source.Cells() > maxToolRangeCells || def.destination.Cells() > maxToolRangeCells) {
			continue
		}
		if maxToolRangeCells > 0 {
			rows, err := api.ReadRange(def.source)
			if err != nil || 2*(len(aggregatePivot(rows, def.spec))+1) > maxToolRangeCells {
				continue
			}
		}
		newDest, err := recomputePivot(api, def.spec, def.source, def.destination)
		if err != nil {
			continue
		}
		p.mu.Lock()
		def.destination = newDest
		p.mu.Unlock()
	}
}

// recomputePivot clears previousDest and writes the
// freshly aggregated table in its place, returning the new destination
// footprint (never a union of the old and new rectangles).
func recomputePivot(api sheet.SpreadsheetApi, spec PivotSpec, source, previousDest sheet.Range) (sheet.Range, error) {
	rows, err := api.ReadRange(source)
	if err != nil {
		return sheet.Range{}, err
	}

	groups := aggregatePivot(rows, spec)

	if previousDest.Cells() > 0 {
		blank := make([][]sheet.CellData, previousDest.Rows())
		for i := range blank {
			blank[i] = make([]sheet.CellData, previousDest.Cols())
		}
		if err := api.WriteRange(previousDest, blank); err != nil {
			return sheet.Range{}, err
		}
	}

	out := make([][]sheet.CellData, 0, len(groups)+1)
	out = append(out, []sheet.CellData{{Value: "Key"}, {Value: string(spec.Aggregate)}})
	for _, g := range groups {
		out = append(out, []sheet.CellData{{Value: g.key}, {Value: g.value}})
	}

	newDest := sheet.Range{
		Sheet:    spec.DestSheet,
		StartRow: spec.DestRow,
		EndRow:   spec.DestRow + len(out) - 1,
		StartCol: spec.DestCol,
		EndCol:   spec.DestCol + 1,
	}
	if err := api.WriteRange(newDest, out); err != nil {
		return sheet.Range{}, err
	}
	return newDest, nil
}

type pivotGroup struct {
	key   string
	value float64
}

func aggregatePivot(rows [][]sheet.CellData, spec PivotSpec) []pivotGroup {
	order := make([]string, 0)
	sums := map[string]float64{}
	counts := map[string]int{}
	mins := map[string]float64{}
	maxs := map[string]float64{}

	for _, row := range rows {
		if spec.GroupByCol >= len(row) || spec.ValueCol >= len(row) {
			continue
		}
		key := cellToString(row[spec.GroupByCol])
		val, ok := cellToFloat(row[spec.ValueCol])
		if !ok {
			continue
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			mins[key] = val
			maxs[key] = val
		}
		sums[key] += val
		counts[key]++
		if val < mins[key] {
			mins[key] = val
		}
		if val > maxs[key] {
			maxs[key] = val
		}
	}

	out := make([]pivotGroup, 0, len(order))
	for _, key := range order {
		var v float64
		switch spec.Aggregate {
		case PivotCount:
			v = float64(counts[key])
		case PivotAvg:
			v = sums[key] / float64(counts[key])
		case PivotMin:
			v = mins[key]
		case PivotMax:
			v = maxs[key]
		default:
			v = sums[key]
		}
		out = append(out, pivotGroup{key: key, value: v})
	}
	return out
}
