package sheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var a1RangePattern = regexp.MustCompile(`^(?:([^!]+)!)?([A-Za-z]+)(\d+)(?::([A-Za-z]+)(\d+))?$`)

// ParseRange parses a human-readable A1 reference, with an optional
// sheet qualifier (Sheet!A1:B2), into a 0-based Range. defaultSheet is
// used when the reference omits a sheet.
func ParseRange(ref, defaultSheet string) (Range, error) {
	m := a1RangePattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return Range{}, fmt.Errorf("sheet: invalid a1 reference %q", ref)
	}
	sheetName := m[1]
	if sheetName == "" {
		sheetName = defaultSheet
	}
	startCol, err := columnToIndex(m[2])
	if err != nil {
		return Range{}, err
	}
	startRow, err := strconv.Atoi(m[3])
	if err != nil {
		return Range{}, err
	}
	endCol, endRow := startCol, startRow
	if m[4] != "" {
		endCol, err = columnToIndex(m[4])
		if err != nil {
			return Range{}, err
		}
		endRow, err = strconv.Atoi(m[5])
		if err != nil {
			return Range{}, err
		}
	}

	r := Range{
		Sheet:    sheetName,
		StartRow: startRow - 1,
		EndRow:   endRow - 1,
		StartCol: startCol,
		EndCol:   endCol,
	}
	if r.EndRow < r.StartRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	if r.EndCol < r.StartCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	return r, nil
}

// FormatRange renders a Range back as an A1 string, prefixed with its
// sheet name using displayName when provided (for stable-id to
// display-name resolution).
func FormatRange(r Range, displayName string) string {
	sheetName := displayName
	if sheetName == "" {
		sheetName = r.Sheet
	}
	start := fmt.Sprintf("%s%d", indexToColumn(r.StartCol), r.StartRow+1)
	if r.StartRow == r.EndRow && r.StartCol == r.EndCol {
		return fmt.Sprintf("%s!%s", sheetName, start)
	}
	end := fmt.Sprintf("%s%d", indexToColumn(r.EndCol), r.EndRow+1)
	return fmt.Sprintf("%s!%s:%s", sheetName, start, end)
}

// FormatAddress renders a single Address back as an A1 string.
func FormatAddress(a Address, displayName string) string {
	sheetName := displayName
	if sheetName == "" {
		sheetName = a.Sheet
	}
	return fmt.Sprintf("%s!%s%d", sheetName, indexToColumn(a.Col), a.Row+1)
}

func columnToIndex(col string) (int, error) {
	col = strings.ToUpper(col)
	idx := 0
	for _, c := range col {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("sheet: invalid column letters %q", col)
		}
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1, nil
}

func indexToColumn(idx int) string {
	idx++
	var b strings.Builder
	for idx > 0 {
		idx--
		b.WriteByte(byte('A' + idx%26))
		idx /= 26
	}
	s := b.String()
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
