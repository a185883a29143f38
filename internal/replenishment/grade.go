package replenishment

import "github.com/shopspring/decimal"

// recentPeriods is the number of most recent months the grade 3 and grade 2
// rules look at. With the default five month window these are p[2], p[3]
// and p[4].
const recentPeriods = 3

// ClassifyGrade assigns the demand-regularity grade of a demand vector
// ordered oldest first. Rules are evaluated in priority order.
func ClassifyGrade(demand []decimal.Decimal) Grade {
	n := len(demand)

	recentNonZero := 0
	if n >= recentPeriods {
		for _, q := range demand[n-recentPeriods:] {
			if !q.IsZero() {
				recentNonZero++
			}
		}
	}

	if n >= recentPeriods && recentNonZero == recentPeriods {
		return GradeRegular
	}
	if recentNonZero >= 2 {
		return GradeFrequent
	}

	nonZero := 0
	for _, q := range demand {
		if !q.IsZero() {
			nonZero++
		}
	}
	if nonZero >= 3 && noConsecutiveGaps(demand) {
		return GradeSporadic
	}
	return GradeIrregular
}

// noConsecutiveGaps reports whether every pair of adjacent periods has a
// nonzero sum.
func noConsecutiveGaps(demand []decimal.Decimal) bool {
	for i := 1; i < len(demand); i++ {
		if demand[i-1].Add(demand[i]).IsZero() {
			return false
		}
	}
	return true
}
