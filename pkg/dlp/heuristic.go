package dlp

import "regexp"

// heuristicPatterns are high-risk content patterns that, when matched,
// raise a cell's effective classification regardless of what
// structured DLP computed. Patterns are adapted from the codebase's
// general-purpose secret scanner, narrowed to the handful relevant to
// spreadsheet cell content.
var heuristicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----`),
	regexp.MustCompile(`^[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}$`),
	regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`),
}

// maxHeuristicScanChars bounds how much of a cell's text is scanned.
const maxHeuristicScanChars = 4096

// ScanCell returns true if the cell's text content matches a high-risk
// heuristic pattern and should be treated as Restricted regardless of
// its structured classification.
func ScanCell(text string) bool {
	if len(text) > maxHeuristicScanChars {
		text = text[:maxHeuristicScanChars]
	}
	for _, pattern := range heuristicPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
