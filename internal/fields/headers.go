package fields

import (
	"fmt"
	"strings"
)

// CleanHeaders trims headers and names blank ones "Column_<n>". Duplicate
// headers get a "_<n>" suffix so no column is shadowed.
//
// The cleaned names are lookup keys only. Readers keep the raw header text
// for rewriting the source file.
func CleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	seen := make(map[string]int, len(headers))

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		if n := seen[header]; n > 0 {
			seen[header] = n + 1
			header = fmt.Sprintf("%s_%d", header, n+1)
		} else {
			seen[header] = 1
		}
		cleaned[i] = header
	}

	return cleaned
}

// IsBlankRow reports whether every cell of row is empty or whitespace.
func IsBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
