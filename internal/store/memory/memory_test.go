package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dontendero/backend/internal/domain"
	"dontendero/backend/internal/store"
)

func openTestShift(t *testing.T, s *Store, operator string, openingFloat int64) *domain.CashShift {
	t.Helper()
	shift, err := s.CreateShift(context.Background(), domain.CashShift{
		OrgID:        SeedOrgID,
		RegisterID:   "reg-principal",
		Operator:     operator,
		OpeningFloat: decimal.NewFromInt(openingFloat),
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	return shift
}

func TestCloseShiftComputesFiguresFromLedger(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	shift := openTestShift(t, s, "cajera-uno", 30000)

	if _, err := s.CreateMovement(ctx, domain.CashMovement{
		OrgID:     SeedOrgID,
		ShiftID:   shift.ID,
		Operator:  "cajera-uno",
		Direction: domain.MovementIn,
		Amount:    decimal.NewFromInt(5000),
		Reason:    "base adicional",
	}); err != nil {
		t.Fatalf("create movement: %v", err)
	}

	closed, err := s.CloseShift(ctx, SeedOrgID, shift.ID, decimal.NewFromInt(34000), "cierre turno", time.Now().UTC())
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.ExpectedCash == nil || !closed.ExpectedCash.Equal(decimal.NewFromInt(35000)) {
		t.Fatalf("expected cash %v, want 35000", closed.ExpectedCash)
	}
	if closed.CountedCash == nil || !closed.CountedCash.Equal(decimal.NewFromInt(34000)) {
		t.Fatalf("counted cash %v, want 34000", closed.CountedCash)
	}
	if closed.Difference == nil || !closed.Difference.Equal(decimal.NewFromInt(-1000)) {
		t.Fatalf("difference %v, want -1000", closed.Difference)
	}
}

func TestCloseShiftCountsRacingMovements(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	shift := openTestShift(t, s, "cajera-dos", 10000)

	// every movement racing the close must either land in the reconciled
	// expected cash or be rejected against the closed shift
	const workers = 16
	amount := decimal.NewFromInt(1000)
	var wg sync.WaitGroup
	movErrs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, movErrs[i] = s.CreateMovement(ctx, domain.CashMovement{
				OrgID:     SeedOrgID,
				ShiftID:   shift.ID,
				Operator:  "cajera-dos",
				Direction: domain.MovementIn,
				Amount:    amount,
				Reason:    "base adicional",
			})
		}(i)
	}

	var closed *domain.CashShift
	var closeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		closed, closeErr = s.CloseShift(ctx, SeedOrgID, shift.ID, decimal.NewFromInt(10000), "cierre en carrera", time.Now().UTC())
	}()
	wg.Wait()

	if closeErr != nil {
		t.Fatalf("close shift: %v", closeErr)
	}
	accepted := 0
	for _, err := range movErrs {
		if err == nil {
			accepted++
			continue
		}
		if !errors.Is(err, store.ErrNoOpenShift) {
			t.Fatalf("unexpected movement error: %v", err)
		}
	}

	want := decimal.NewFromInt(10000).Add(amount.Mul(decimal.NewFromInt(int64(accepted))))
	if closed.ExpectedCash == nil || !closed.ExpectedCash.Equal(want) {
		t.Fatalf("expected cash %v, want %s with %d accepted movements", closed.ExpectedCash, want, accepted)
	}
}

func TestOpenShiftUnknownRegisterRejected(t *testing.T) {
	s := NewSeeded()
	_, err := s.CreateShift(context.Background(), domain.CashShift{
		OrgID:        SeedOrgID,
		RegisterID:   "reg-fantasma",
		Operator:     "cajera-tres",
		OpeningFloat: decimal.NewFromInt(20000),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("open against nonexistent register err = %v, want ErrNotFound", err)
	}
}
