package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "finsync/internal/sheets"
)

// parseRows converts a values matrix (as returned by Sheets API) into rows.
// A leading header row and rows without a run id are skipped.
func parseRows(values [][]any) []ports.Row {
	var out []ports.Row
	for i, raw := range values {
		cols := toStrings(raw)
		if i == 0 && strings.EqualFold(safeGet(cols, 0), ports.Header[0]) {
			continue
		}
		if safeGet(cols, 0) == "" {
			continue
		}
		out = append(out, ports.Row{
			RunID:        safeGet(cols, 0),
			UserID:       safeGet(cols, 1),
			AccountID:    safeGet(cols, 2),
			AccountName:  safeGet(cols, 3),
			Kind:         safeGet(cols, 4),
			Trigger:      safeGet(cols, 5),
			Status:       safeGet(cols, 6),
			Total:        atoi(safeGet(cols, 7)),
			New:          atoi(safeGet(cols, 8)),
			Updated:      atoi(safeGet(cols, 9)),
			ErrorCount:   atoi(safeGet(cols, 10)),
			StartedAt:    safeGet(cols, 11),
			CompletedAt:  safeGet(cols, 12),
			ErrorMessage: safeGet(cols, 13),
		})
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// atoi accepts the float formatting Sheets uses for numeric cells.
func atoi(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}
