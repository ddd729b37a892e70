package tool

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReadDailyLogs reads today's and yesterday's daily memory logs
// (~/.bizclaw/memory/YYYY-MM-DD.md) and returns their concatenated content.
// Returns "" if neither file exists or both are empty.
func ReadDailyLogs() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".bizclaw", "memory")

	now := time.Now()
	dates := []string{
		now.Format("2006-01-02"),
		now.AddDate(0, 0, -1).Format("2006-01-02"),
	}

	var parts []string
	for _, d := range dates {
		data, err := os.ReadFile(filepath.Join(dir, d+".md"))
		if err != nil || len(data) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}

	return strings.Join(parts, "\n\n")
}
