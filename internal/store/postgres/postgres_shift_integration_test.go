package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dontendero/backend/internal/domain"
	"dontendero/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("DONTENDERO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DONTENDERO_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestConcurrentShiftOpensOneWinner(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	orgID := fmt.Sprintf("org-it-%d", stamp)
	registerID := fmt.Sprintf("reg-it-%d", stamp)
	operator := fmt.Sprintf("cashier-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_shifts WHERE org_id = $1`, orgID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_registers WHERE org_id = $1`, orgID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, org_id, name) VALUES ($1, $2, 'Caja IT')
	`, registerID, orgID); err != nil {
		t.Fatalf("insert register: %v", err)
	}

	// race several opens for the same operator; the partial unique index
	// must let exactly one insert through
	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateShift(ctx, domain.CashShift{
				OrgID:        orgID,
				RegisterID:   registerID,
				Operator:     operator,
				OpeningFloat: decimal.NewFromInt(50000),
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, store.ErrOperatorShiftOpen) && !errors.Is(err, store.ErrRegisterInUse) {
			t.Fatalf("unexpected open error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one open to win, got %d", wins)
	}

	var openCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cash_shifts WHERE org_id = $1 AND status = 'open'
	`, orgID).Scan(&openCount); err != nil {
		t.Fatalf("count open shifts: %v", err)
	}
	if openCount != 1 {
		t.Fatalf("expected 1 open shift, got %d", openCount)
	}
}

func TestCloseShiftSecondCloseLoses(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	orgID := fmt.Sprintf("org-close-it-%d", stamp)
	registerID := fmt.Sprintf("reg-close-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_shifts WHERE org_id = $1`, orgID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_registers WHERE org_id = $1`, orgID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, org_id, name) VALUES ($1, $2, 'Caja Close IT')
	`, registerID, orgID); err != nil {
		t.Fatalf("insert register: %v", err)
	}

	shift, err := s.CreateShift(ctx, domain.CashShift{
		OrgID:        orgID,
		RegisterID:   registerID,
		Operator:     "cashier-close",
		OpeningFloat: decimal.NewFromInt(20000),
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	counted := decimal.NewFromInt(19500)
	diff := decimal.NewFromInt(-500)

	closed, err := s.CloseShift(ctx, orgID, shift.ID, counted, "primer cierre", time.Now().UTC())
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if closed.ExpectedCash == nil || !closed.ExpectedCash.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("expected = %v, want 20000", closed.ExpectedCash)
	}
	if closed.Difference == nil || !closed.Difference.Equal(diff) {
		t.Fatalf("difference = %v, want %s", closed.Difference, diff)
	}

	_, err = s.CloseShift(ctx, orgID, shift.ID, decimal.NewFromInt(99999), "segundo cierre", time.Now().UTC())
	if !errors.Is(err, store.ErrShiftNotFound) {
		t.Fatalf("second close err = %v, want ErrShiftNotFound", err)
	}

	// the first close's figures must stand
	got, err := s.GetShiftByID(ctx, orgID, shift.ID)
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if got.CountedCash == nil || !got.CountedCash.Equal(counted) {
		t.Fatalf("counted = %v, want %s", got.CountedCash, counted)
	}
	if got.Notes != "primer cierre" {
		t.Fatalf("notes = %q", got.Notes)
	}
}

func TestOpenShiftUnknownRegisterRejected(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	orgID := fmt.Sprintf("org-ghost-it-%d", stamp)
	otherOrg := fmt.Sprintf("org-ghost-other-%d", stamp)
	registerID := fmt.Sprintf("reg-ghost-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_shifts WHERE org_id IN ($1, $2)`, orgID, otherOrg)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_registers WHERE org_id IN ($1, $2)`, orgID, otherOrg)
	})

	_, err := s.CreateShift(ctx, domain.CashShift{
		OrgID:        orgID,
		RegisterID:   "reg-fantasma",
		Operator:     "cashier-ghost",
		OpeningFloat: decimal.NewFromInt(10000),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("open against nonexistent register err = %v, want ErrNotFound", err)
	}

	// a register belonging to another org must be just as invisible
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, org_id, name) VALUES ($1, $2, 'Caja Ajena')
	`, registerID, otherOrg); err != nil {
		t.Fatalf("insert register: %v", err)
	}
	_, err = s.CreateShift(ctx, domain.CashShift{
		OrgID:        orgID,
		RegisterID:   registerID,
		Operator:     "cashier-ghost",
		OpeningFloat: decimal.NewFromInt(10000),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("open against foreign-org register err = %v, want ErrNotFound", err)
	}
}

func TestCloseShiftCountsRacingMovements(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	orgID := fmt.Sprintf("org-race-it-%d", stamp)
	registerID := fmt.Sprintf("reg-race-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_movements WHERE org_id = $1`, orgID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_shifts WHERE org_id = $1`, orgID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_registers WHERE org_id = $1`, orgID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, org_id, name) VALUES ($1, $2, 'Caja Race IT')
	`, registerID, orgID); err != nil {
		t.Fatalf("insert register: %v", err)
	}

	shift, err := s.CreateShift(ctx, domain.CashShift{
		OrgID:        orgID,
		RegisterID:   registerID,
		Operator:     "cashier-race",
		OpeningFloat: decimal.NewFromInt(10000),
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	// race movements against the close: each movement must either land in
	// the reconciled expected cash or be rejected against the closed shift
	const workers = 8
	amount := decimal.NewFromInt(1000)
	var wg sync.WaitGroup
	movErrs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, movErrs[i] = s.CreateMovement(ctx, domain.CashMovement{
				OrgID:     orgID,
				ShiftID:   shift.ID,
				Operator:  "cashier-race",
				Direction: domain.MovementIn,
				Amount:    amount,
				Reason:    "base adicional",
			})
		}(i)
	}
	wg.Add(1)
	var closed *domain.CashShift
	var closeErr error
	go func() {
		defer wg.Done()
		closed, closeErr = s.CloseShift(ctx, orgID, shift.ID, decimal.NewFromInt(10000), "cierre en carrera", time.Now().UTC())
	}()
	wg.Wait()

	if closeErr != nil {
		t.Fatalf("close: %v", closeErr)
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

func TestDriverFailuresReportStorageError(t *testing.T) {
	databaseURL := os.Getenv("DONTENDERO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DONTENDERO_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// every call on a dead pool must surface as ErrStorage, never raw
	if _, err := s.GetShiftByID(ctx, "org-x", "shift-x"); !errors.Is(err, store.ErrStorage) {
		t.Fatalf("get shift err = %v, want ErrStorage", err)
	}
	if _, err := s.ListRegisters(ctx, "org-x"); !errors.Is(err, store.ErrStorage) {
		t.Fatalf("list registers err = %v, want ErrStorage", err)
	}
}

func TestStorageErrKeepsDomainErrors(t *testing.T) {
	if !errors.Is(storageErr(sql.ErrConnDone), store.ErrStorage) {
		t.Fatalf("expected driver error to wrap as ErrStorage")
	}
	if !errors.Is(storageErr(store.ErrNoOpenShift), store.ErrNoOpenShift) {
		t.Fatalf("expected sentinel to pass through")
	}
	if errors.Is(storageErr(store.ErrNoOpenShift), store.ErrStorage) {
		t.Fatalf("sentinel must not be reclassified as storage failure")
	}
	if storageErr(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
