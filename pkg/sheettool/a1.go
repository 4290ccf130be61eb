package sheettool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// ParseA1Range parses a human-readable A1 reference, optionally
// sheet-qualified ("Sheet1!A1:B2"), into a 0-based inclusive Range.
// defaultSheet is used when the reference omits a sheet qualifier;
// resolver (if non-nil) canonicalizes the display name to a stable id.
func ParseA1Range(ref, defaultSheet string, resolver SheetNameResolver) (sheet.Range, error) {
	sheetName, body, err := splitSheetQualifier(ref, defaultSheet, resolver)
	if err != nil {
		return sheet.Range{}, err
	}

	parts := strings.SplitN(body, ":", 2)
	startCol, startRow, err := a1ToCoords(parts[0])
	if err != nil {
		return sheet.Range{}, fmt.Errorf("sheettool: invalid A1 reference %q: %w", ref, err)
	}
	endCol, endRow := startCol, startRow
	if len(parts) == 2 {
		endCol, endRow, err = a1ToCoords(parts[1])
		if err != nil {
			return sheet.Range{}, fmt.Errorf("sheettool: invalid A1 reference %q: %w", ref, err)
		}
	}
	if endRow < startRow {
		startRow, endRow = endRow, startRow
	}
	if endCol < startCol {
		startCol, endCol = endCol, startCol
	}

	return sheet.Range{Sheet: sheetName, StartRow: startRow, EndRow: endRow, StartCol: startCol, EndCol: endCol}, nil
}

// ParseA1Address parses a single-cell A1 reference.
func ParseA1Address(ref, defaultSheet string, resolver SheetNameResolver) (sheet.Address, error) {
	sheetName, body, err := splitSheetQualifier(ref, defaultSheet, resolver)
	if err != nil {
		return sheet.Address{}, err
	}
	col, row, err := a1ToCoords(body)
	if err != nil {
		return sheet.Address{}, fmt.Errorf("sheettool: invalid A1 reference %q: %w", ref, err)
	}
	return sheet.Address{Sheet: sheetName, Row: row, Col: col}, nil
}

func splitSheetQualifier(ref, defaultSheet string, resolver SheetNameResolver) (sheetName, body string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("sheettool: empty A1 reference")
	}
	if idx := strings.LastIndex(ref, "!"); idx >= 0 {
		sheetName = strings.Trim(ref[:idx], "'")
		body = ref[idx+1:]
	} else {
		sheetName = defaultSheet
		body = ref
	}
	if resolver != nil {
		if stableID, ok := resolver.ToStableID(sheetName); ok {
			sheetName = stableID
		}
	}
	return sheetName, body, nil
}

// FormatA1Address renders addr back to a display-friendly A1 string,
// translating through resolver when present.
func FormatA1Address(addr sheet.Address, resolver SheetNameResolver) string {
	name := addr.Sheet
	if resolver != nil {
		if display, ok := resolver.ToDisplayName(addr.Sheet); ok {
			name = display
		}
	}
	return fmt.Sprintf("%s!%s", name, colToLetters(addr.Col)+strconv.Itoa(addr.Row+1))
}

// FormatA1Range renders rng back to a display-friendly A1 string.
func FormatA1Range(rng sheet.Range, resolver SheetNameResolver) string {
	name := rng.Sheet
	if resolver != nil {
		if display, ok := resolver.ToDisplayName(rng.Sheet); ok {
			name = display
		}
	}
	start := colToLetters(rng.StartCol) + strconv.Itoa(rng.StartRow+1)
	end := colToLetters(rng.EndCol) + strconv.Itoa(rng.EndRow+1)
	if start == end {
		return fmt.Sprintf("%s!%s", name, start)
	}
	return fmt.Sprintf("%s!%s:%s", name, start, end)
}

func a1ToCoords(cellRef string) (col, row int, err error) {
	cellRef = strings.TrimSpace(cellRef)
	i := 0
	for i < len(cellRef) && isLetter(cellRef[i]) {
		i++
	}
	if i == 0 || i == len(cellRef) {
		return 0, 0, fmt.Errorf("malformed cell reference %q", cellRef)
	}
	letters := strings.ToUpper(cellRef[:i])
	digits := cellRef[i:]

	rowNum, err := strconv.Atoi(digits)
	if err != nil || rowNum < 1 {
		return 0, 0, fmt.Errorf("malformed row in cell reference %q", cellRef)
	}

	col = 0
	for _, c := range letters {
		col = col*26 + int(c-'A'+1)
	}
	return col - 1, rowNum - 1, nil
}

func colToLetters(col int) string {
	col++
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
