package replenishment

// Calculator derives grade, thresholds and suggestion for joined rows.
type Calculator struct{}

// NewCalculator creates a new calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate computes all metrics of a row under the given policy.
func (c *Calculator) Calculate(row *GroupRow, policy Policy) Metrics {
	metrics := Metrics{}

	// 1. Grade from the demand vector
	metrics.Grade = ClassifyGrade(row.Quantities())

	// 2. Min / max thresholds
	th := CalculateThresholds(ThresholdInput{
		Grade:        metrics.Grade,
		AvgLastTwo:   row.AvgLastTwo,
		AvgLastThree: row.AvgLastThree,
		SafetyStock:  policy.SafetyStock,
	})
	metrics.Min = th.Min
	metrics.Max = th.Max

	// 3. Purchase suggestion
	metrics.Suggestion = Suggest(SuggestionInput{
		PurchaseFlag: policy.PurchaseFlag,
		OnHand:       row.OnHand,
		Receivable:   row.Receivable,
		Min:          th.Min,
		Max:          th.Max,
	})

	return metrics
}
