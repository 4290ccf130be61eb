package sheettool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// cellToFloat attempts to coerce a cell's value to a float64, accepting
// numeric Go types and numeric-looking strings.
func cellToFloat(cell sheet.CellData) (float64, bool) {
	switch v := cell.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// cellToString renders a cell's value as display text, matching how a
// spreadsheet would show it.
func cellToString(cell sheet.CellData) string {
	switch v := cell.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// compareCells orders two cells for sorting: numeric comparison when
// both coerce to numbers, otherwise case-sensitive string comparison.
func compareCells(a, b sheet.CellData) int {
	af, aok := cellToFloat(a)
	bf, bok := cellToFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := cellToString(a), cellToString(b)
	return strings.Compare(as, bs)
}
