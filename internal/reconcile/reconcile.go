// Package reconcile computes cash-shift reconciliation figures. It does no
// I/O; callers gather the shift totals and pass them in.
package reconcile

import (
	"github.com/shopspring/decimal"

	"dontendero/backend/internal/domain"
)

// Summary is the result of reconciling a counted drawer against the ledger.
type Summary struct {
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	CountedCash  decimal.Decimal `json:"counted_cash"`
	Difference   decimal.Decimal `json:"difference"`
}

// Expected returns the cash that should be in the drawer:
// opening float plus cash sales plus manual inflows minus manual outflows.
func Expected(openingFloat decimal.Decimal, totals domain.ShiftTotals) decimal.Decimal {
	return openingFloat.
		Add(totals.CashSales).
		Add(totals.MovementsIn).
		Sub(totals.MovementsOut)
}

// Close reconciles a shift. The difference is counted minus expected, so a
// shortage comes out negative and a surplus positive. Values are never
// rounded or clamped.
func Close(openingFloat decimal.Decimal, totals domain.ShiftTotals, counted decimal.Decimal) Summary {
	expected := Expected(openingFloat, totals)
	return Summary{
		ExpectedCash: expected,
		CountedCash:  counted,
		Difference:   counted.Sub(expected),
	}
}
