package borrows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverdueDays(t *testing.T) {
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		end  time.Time
		want int
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"exactly due", due, 0},
		{"23 hours late truncates to zero", due.Add(23 * time.Hour), 0},
		{"24 hours late", due.Add(24 * time.Hour), 1},
		{"five and a half days late", due.Add(5*24*time.Hour + 12*time.Hour), 5},
		{"thirty days late", due.AddDate(0, 0, 30), 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OverdueDays(due, tc.end))
		})
	}
}
