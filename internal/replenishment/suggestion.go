package replenishment

import "github.com/shopspring/decimal"

// SuggestionInput is everything a purchase suggestion depends on.
type SuggestionInput struct {
	PurchaseFlag int
	OnHand       decimal.Decimal
	Receivable   decimal.Decimal
	Min          int64
	Max          int64
}

// Suggest returns the quantity to buy to bring available stock up to max.
// Nothing is suggested while on-hand plus receivable covers min, or when the
// purchase flag blocks buying.
func Suggest(in SuggestionInput) decimal.Decimal {
	if (Policy{PurchaseFlag: in.PurchaseFlag}).Blocked() {
		return decimal.Zero
	}

	available := in.OnHand.Add(in.Receivable)
	if available.GreaterThanOrEqual(decimal.NewFromInt(in.Min)) {
		return decimal.Zero
	}

	return decimal.NewFromInt(in.Max).Sub(available)
}
