package replenishment

import "github.com/shopspring/decimal"

var (
	regularDaysPerMonth  = decimal.NewFromInt(20)
	frequentDaysPerMonth = decimal.NewFromInt(30)
	coverDays            = decimal.NewFromInt(10)
	half                 = decimal.New(5, -1)
	one                  = decimal.NewFromInt(1)
)

// ThresholdInput is everything the min/max thresholds depend on.
type ThresholdInput struct {
	Grade        Grade
	AvgLastTwo   int64
	AvgLastThree int64
	SafetyStock  decimal.Decimal
}

// Thresholds are the stock levels a group should be kept between.
type Thresholds struct {
	Min int64
	Max int64
}

// CalculateThresholds derives min and max stock levels. Max is never below Min.
func CalculateThresholds(in ThresholdInput) Thresholds {
	avgThree := decimal.NewFromInt(in.AvgLastThree)

	// 1. Daily average, only graded groups sell often enough to have one
	dailyAvg := decimal.Zero
	switch in.Grade {
	case GradeRegular:
		dailyAvg = avgThree.Div(regularDaysPerMonth)
	case GradeFrequent:
		dailyAvg = avgThree.Div(frequentDaysPerMonth)
	}

	// 2. Stock for the cover days
	computedStock := dailyAvg.Mul(coverDays)

	// 3. Min never falls below the safety stock target
	minLevel := decimal.Max(computedStock, in.SafetyStock).Ceil()

	// 4. Candidate max
	var candidate decimal.Decimal
	switch {
	case avgThree.LessThanOrEqual(one):
		candidate = minLevel
	case in.Grade == GradeRegular:
		candidate = minLevel.Add(avgThree).Ceil()
	case in.Grade == GradeFrequent:
		candidate = minLevel.Add(half.Mul(decimal.NewFromInt(in.AvgLastTwo))).Ceil()
	default:
		candidate = decimal.Zero
	}

	// 5. Clamp so that max >= min
	maxLevel := candidate
	if candidate.LessThanOrEqual(minLevel) {
		maxLevel = minLevel
	}

	return Thresholds{Min: minLevel.IntPart(), Max: maxLevel.IntPart()}
}
