package budget

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Progress is a budget's standing for its own period. Only Spent is cached;
// the rest is derived on every read.
type Progress struct {
	Budget     core.Budget
	Spent      core.Money
	Remaining  core.Money
	Percentage decimal.Decimal // capped at 100, two decimal places
	IsExceeded bool
	IsAlert    bool
}

func NewProgress(b core.Budget, spent core.Money) Progress {
	pct := decimal.Zero
	if b.Amount.Cents > 0 {
		pct = spent.Decimal().Div(b.Amount.Decimal()).Mul(hundred)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		pct = pct.Round(2)
	}

	return Progress{
		Budget:     b,
		Spent:      spent,
		Remaining:  b.Amount.Sub(spent),
		Percentage: pct,
		IsExceeded: spent.Cents > b.Amount.Cents,
		IsAlert:    pct.GreaterThanOrEqual(decimal.NewFromInt(int64(b.AlertPercentage))),
	}
}
