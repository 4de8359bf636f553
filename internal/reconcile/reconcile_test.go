package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"dontendero/backend/internal/domain"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCloseNoActivity(t *testing.T) {
	summary := Close(dec("50000"), domain.ShiftTotals{}, dec("50000"))
	if !summary.ExpectedCash.Equal(dec("50000")) {
		t.Fatalf("expected cash = %s, want 50000", summary.ExpectedCash)
	}
	if !summary.Difference.IsZero() {
		t.Fatalf("difference = %s, want 0", summary.Difference)
	}
}

func TestCloseWithMovementsAndSales(t *testing.T) {
	totals := domain.ShiftTotals{
		CashSales:    dec("30000"),
		MovementsIn:  dec("20000"),
		MovementsOut: dec("5000"),
	}
	summary := Close(dec("0"), totals, dec("45000"))
	if !summary.ExpectedCash.Equal(dec("45000")) {
		t.Fatalf("expected cash = %s, want 45000", summary.ExpectedCash)
	}
	if !summary.Difference.IsZero() {
		t.Fatalf("difference = %s, want 0", summary.Difference)
	}
}

func TestCloseShortage(t *testing.T) {
	totals := domain.ShiftTotals{
		CashSales:    dec("30000"),
		MovementsIn:  dec("20000"),
		MovementsOut: dec("5000"),
	}
	summary := Close(dec("0"), totals, dec("44000"))
	if !summary.Difference.Equal(dec("-1000")) {
		t.Fatalf("difference = %s, want -1000", summary.Difference)
	}
}

func TestCloseSurplus(t *testing.T) {
	summary := Close(dec("10000"), domain.ShiftTotals{CashSales: dec("2500")}, dec("13000"))
	if !summary.Difference.Equal(dec("500")) {
		t.Fatalf("difference = %s, want 500", summary.Difference)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	totals := domain.ShiftTotals{
		CashSales:    dec("123456.78"),
		MovementsIn:  dec("1000.50"),
		MovementsOut: dec("250.25"),
	}
	first := Close(dec("75000"), totals, dec("199000"))
	second := Close(dec("75000"), totals, dec("199000"))
	if !first.ExpectedCash.Equal(second.ExpectedCash) || !first.Difference.Equal(second.Difference) {
		t.Fatalf("repeated close diverged: %+v vs %+v", first, second)
	}
}

func TestExpectedDecimalExact(t *testing.T) {
	// sums of cent-precision values must not drift
	totals := domain.ShiftTotals{CashSales: dec("0.10").Add(dec("0.20"))}
	got := Expected(dec("0"), totals)
	if !got.Equal(dec("0.30")) {
		t.Fatalf("expected = %s, want 0.30", got)
	}
}
