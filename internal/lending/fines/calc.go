package fines

import "github.com/shopspring/decimal"

// Default policy used when no rule row exists yet: 0.50/day, capped at
// 100.00, no grace days.
func DefaultRule() Rule {
	return Rule{
		DailyAmount: decimal.RequireFromString("0.50"),
		MaxAmount:   decimal.RequireFromString("100.00"),
		GraceDays:   0,
		Description: "default fine rule: 0.50 per day, capped at 100.00",
		Enabled:     true,
	}
}

// Calculate is the fine engine: a pure function of overdue days and the rule.
// Days within the grace period cost nothing; beyond it the daily rate applies
// to the excess, capped at MaxAmount when a positive cap is set.
func Calculate(overdueDays int, rule Rule) decimal.Decimal {
	if overdueDays <= rule.GraceDays {
		return decimal.Zero
	}

	effectiveDays := overdueDays - rule.GraceDays
	fine := rule.DailyAmount.Mul(decimal.NewFromInt(int64(effectiveDays)))

	if rule.MaxAmount.IsPositive() && fine.GreaterThan(rule.MaxAmount) {
		fine = rule.MaxAmount
	}
	return fine
}
