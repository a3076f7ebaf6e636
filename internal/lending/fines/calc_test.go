package fines

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(daily, max string, grace int) Rule {
	return Rule{
		DailyAmount: decimal.RequireFromString(daily),
		MaxAmount:   decimal.RequireFromString(max),
		GraceDays:   grace,
	}
}

func TestCalculate(t *testing.T) {
	cases := []struct {
		name string
		days int
		rule Rule
		want string
	}{
		{"zero days", 0, rule("0.50", "100.00", 0), "0"},
		{"negative days", -3, rule("0.50", "100.00", 0), "0"},
		{"one day default rule", 1, rule("0.50", "100.00", 0), "0.50"},
		{"five days default rule", 5, rule("0.50", "100.00", 0), "2.50"},
		{"within grace", 3, rule("0.50", "100.00", 3), "0"},
		{"one past grace", 4, rule("0.50", "100.00", 3), "0.50"},
		{"capped", 400, rule("0.50", "100.00", 0), "100.00"},
		{"exactly at cap", 200, rule("0.50", "100.00", 0), "100.00"},
		{"uncapped when max is zero", 400, rule("0.50", "0", 0), "200.00"},
		{"free rule", 10, rule("0", "0", 0), "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Calculate(tc.days, tc.rule)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"want %s, got %s", tc.want, got)
		})
	}
}

func TestCalculateMonotonicInDays(t *testing.T) {
	r := rule("0.50", "100.00", 2)
	prev := decimal.Zero
	for d := 0; d <= 250; d++ {
		got := Calculate(d, r)
		require.False(t, got.LessThan(prev), "fine decreased at day %d: %s < %s", d, got, prev)
		require.False(t, got.GreaterThan(r.MaxAmount), "fine exceeded cap at day %d: %s", d, got)
		prev = got
	}
}

func TestDefaultRule(t *testing.T) {
	def := DefaultRule()
	assert.True(t, def.DailyAmount.Equal(decimal.RequireFromString("0.50")))
	assert.True(t, def.MaxAmount.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, 0, def.GraceDays)
	assert.True(t, def.Enabled)
}
