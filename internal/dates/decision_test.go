package dates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDecisionDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		year int
		want string
	}{
		{"two digit year", "23 Sep 25", 2024, "2025-09-23"},
		{"four digit year", "23 Sep 2025", 2024, "2025-09-23"},
		{"reference year", "23 Sep", 2025, "2025-09-23"},
		{"single digit day", "3 Feb", 2025, "2025-02-03"},
		{"garbage", "sometime soon", 2025, ""},
		{"empty", "", 2025, ""},
		{"no reference year", "23 Sep", 0, ""},
		{"leap day in leap reference", "29 Feb", 2024, "2024-02-29"},
		{"leap day in non-leap reference", "29 Feb", 2025, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDecisionDate(tt.raw, tt.year))
		})
	}
}
