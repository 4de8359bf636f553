package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"dontendero/backend/internal/domain"
	"dontendero/backend/internal/reconcile"
	"dontendero/backend/internal/store"
	"dontendero/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, storageErr(err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, storageErr(err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables and indexes on startup. The partial unique
// indexes on cash_shifts are what guarantee a single open shift per operator
// and per register even under concurrent opens.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id text PRIMARY KEY,
			name text NOT NULL,
			owner_email text NOT NULL DEFAULT '',
			plan_code text NOT NULL DEFAULT 'basico',
			subscription_status text NOT NULL DEFAULT 'trial',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username text PRIMARY KEY,
			password text NOT NULL,
			role text NOT NULL,
			org_id text NOT NULL,
			active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS cash_registers (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			name text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS cash_shifts (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			register_id text NOT NULL,
			operator text NOT NULL,
			opening_float numeric(14,2) NOT NULL CHECK (opening_float >= 0),
			status text NOT NULL,
			opened_at timestamptz NOT NULL,
			closed_at timestamptz,
			expected_cash numeric(14,2),
			counted_cash numeric(14,2),
			difference numeric(14,2),
			notes text NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cash_shifts_open_operator_idx
			ON cash_shifts (org_id, operator) WHERE status = 'open'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cash_shifts_open_register_idx
			ON cash_shifts (register_id) WHERE status = 'open'`,
		`CREATE TABLE IF NOT EXISTS cash_movements (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			shift_id text NOT NULL REFERENCES cash_shifts(id),
			operator text NOT NULL,
			direction text NOT NULL CHECK (direction IN ('in','out')),
			amount numeric(14,2) NOT NULL CHECK (amount > 0),
			reason text NOT NULL DEFAULT '',
			category_id text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS cash_movements_shift_idx ON cash_movements (shift_id)`,
		`CREATE TABLE IF NOT EXISTS products (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			name text NOT NULL,
			category text NOT NULL DEFAULT '',
			price numeric(14,2) NOT NULL CHECK (price > 0),
			stock integer NOT NULL DEFAULT 0 CHECK (stock >= 0),
			active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			shift_id text NOT NULL REFERENCES cash_shifts(id),
			operator text NOT NULL,
			payment_method text NOT NULL,
			customer_id text NOT NULL DEFAULT '',
			total numeric(14,2) NOT NULL,
			status text NOT NULL,
			cancel_reason text NOT NULL DEFAULT '',
			cancelled_at timestamptz,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sales_shift_idx ON sales (shift_id)`,
		`CREATE INDEX IF NOT EXISTS sales_org_created_idx ON sales (org_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			sale_id text NOT NULL REFERENCES sales(id),
			product_id text NOT NULL,
			name text NOT NULL DEFAULT '',
			qty integer NOT NULL CHECK (qty > 0),
			unit_price numeric(14,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sale_items_sale_idx ON sale_items (sale_id)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			name text NOT NULL,
			phone text NOT NULL DEFAULT '',
			credit_limit numeric(14,2) NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS credit_entries (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			customer_id text NOT NULL REFERENCES customers(id),
			sale_id text NOT NULL DEFAULT '',
			kind text NOT NULL CHECK (kind IN ('charge','payment')),
			amount numeric(14,2) NOT NULL CHECK (amount > 0),
			note text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS credit_entries_customer_idx ON credit_entries (customer_id)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id text PRIMARY KEY,
			org_id text NOT NULL,
			actor_username text NOT NULL,
			actor_role text NOT NULL,
			action text NOT NULL,
			entity_type text NOT NULL DEFAULT '',
			entity_id text NOT NULL DEFAULT '',
			detail text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS audit_logs_org_created_idx ON audit_logs (org_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr(err)
		}
	}
	return nil
}

func (s *Store) CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	if register.OrgID == "" || strings.TrimSpace(register.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if register.ID == "" {
		register.ID = xid.New("reg")
	}
	if register.CreatedAt.IsZero() {
		register.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, org_id, name, created_at)
		VALUES ($1,$2,$3,$4)
	`, register.ID, register.OrgID, register.Name, register.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	created := register
	return &created, nil
}

func (s *Store) ListRegisters(ctx context.Context, orgID string) ([]domain.CashRegister, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, created_at
		FROM cash_registers
		WHERE org_id = $1
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	registers := make([]domain.CashRegister, 0, 8)
	for rows.Next() {
		var r domain.CashRegister
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Name, &r.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		registers = append(registers, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return registers, nil
}

func (s *Store) GetRegisterByID(ctx context.Context, orgID string, registerID string) (*domain.CashRegister, error) {
	var r domain.CashRegister
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, created_at
		FROM cash_registers
		WHERE id = $1 AND org_id = $2
	`, registerID, orgID).Scan(&r.ID, &r.OrgID, &r.Name, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (s *Store) DeleteRegister(ctx context.Context, orgID string, registerID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cash_registers
		WHERE id = $1 AND org_id = $2
		AND NOT EXISTS (
			SELECT 1 FROM cash_shifts WHERE register_id = $1 AND status = 'open'
		)
	`, registerID, orgID)
	if err != nil {
		return storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if affected == 0 {
		if _, err := s.GetRegisterByID(ctx, orgID, registerID); err == nil {
			return store.ErrRegisterInUse
		}
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	if shift.OrgID == "" || shift.RegisterID == "" || shift.Operator == "" {
		return nil, store.ErrInvalidInput
	}
	if shift.OpeningFloat.IsNegative() {
		return nil, store.ErrInvalidAmount
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen

	// the INSERT only matches when the register exists in the org, so a
	// shift can never open against a ghost register
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_shifts (id, org_id, register_id, operator, opening_float, status, opened_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE EXISTS (
			SELECT 1 FROM cash_registers
			WHERE id = $3 AND org_id = $2
		)
	`, shift.ID, shift.OrgID, shift.RegisterID, shift.Operator, shift.OpeningFloat, shift.Status, shift.OpenedAt)
	if err != nil {
		switch uniqueConstraint(err) {
		case "cash_shifts_open_operator_idx":
			return nil, store.ErrOperatorShiftOpen
		case "cash_shifts_open_register_idx":
			return nil, store.ErrRegisterInUse
		}
		return nil, storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr(err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	created := shift
	return &created, nil
}

const shiftColumns = `id, org_id, register_id, operator, opening_float, status, opened_at, closed_at, expected_cash, counted_cash, difference, notes`

func scanShift(row interface{ Scan(...any) error }) (*domain.CashShift, error) {
	var shift domain.CashShift
	var closedAt sql.NullTime
	var expected, counted, difference decimal.NullDecimal
	err := row.Scan(
		&shift.ID, &shift.OrgID, &shift.RegisterID, &shift.Operator,
		&shift.OpeningFloat, &shift.Status, &shift.OpenedAt,
		&closedAt, &expected, &counted, &difference, &shift.Notes,
	)
	if err != nil {
		// callers distinguish sql.ErrNoRows, so pass it through unwrapped
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	if expected.Valid {
		shift.ExpectedCash = &expected.Decimal
	}
	if counted.Valid {
		shift.CountedCash = &counted.Decimal
	}
	if difference.Valid {
		shift.Difference = &difference.Decimal
	}
	return &shift, nil
}

func (s *Store) GetShiftByID(ctx context.Context, orgID string, shiftID string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE id = $1 AND org_id = $2
	`, shiftID, orgID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	return shift, nil
}

func (s *Store) GetOpenShiftByOperator(ctx context.Context, orgID string, operator string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE org_id = $1 AND operator = $2 AND status = 'open'
	`, orgID, operator)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	return shift, nil
}

func (s *Store) GetOpenShiftByRegister(ctx context.Context, orgID string, registerID string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE org_id = $1 AND register_id = $2 AND status = 'open'
	`, orgID, registerID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	return shift, nil
}

func (s *Store) GetShiftTotals(ctx context.Context, orgID string, shiftID string) (domain.ShiftTotals, error) {
	var totals domain.ShiftTotals

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total) FILTER (WHERE payment_method = 'cash'), 0), COUNT(*)
		FROM sales
		WHERE org_id = $1 AND shift_id = $2 AND status = 'paid'
	`, orgID, shiftID).Scan(&totals.CashSales, &totals.SaleCount)
	if err != nil {
		return domain.ShiftTotals{}, storageErr(err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'in'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = 'out'), 0)
		FROM cash_movements
		WHERE org_id = $1 AND shift_id = $2
	`, orgID, shiftID).Scan(&totals.MovementsIn, &totals.MovementsOut)
	if err != nil {
		return domain.ShiftTotals{}, storageErr(err)
	}

	return totals, nil
}

// CloseShift locks the open shift row, reads the totals, and writes every
// closing field inside one transaction. The row lock keeps movements and
// sales out of the window between the totals read and the update, and the
// status guard makes a concurrent double close lose: zero rows come back,
// the caller gets ErrShiftNotFound, and the first close's figures stand.
func (s *Store) CloseShift(ctx context.Context, orgID string, shiftID string, counted decimal.Decimal, notes string, closedAt time.Time) (*domain.CashShift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE id = $1 AND org_id = $2 AND status = 'open'
		FOR UPDATE
	`, shiftID, orgID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, storageErr(err)
	}

	var totals domain.ShiftTotals
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total) FILTER (WHERE payment_method = 'cash'), 0), COUNT(*)
		FROM sales
		WHERE org_id = $1 AND shift_id = $2 AND status = 'paid'
	`, orgID, shiftID).Scan(&totals.CashSales, &totals.SaleCount)
	if err != nil {
		return nil, storageErr(err)
	}
	err = tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'in'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = 'out'), 0)
		FROM cash_movements
		WHERE org_id = $1 AND shift_id = $2
	`, orgID, shiftID).Scan(&totals.MovementsIn, &totals.MovementsOut)
	if err != nil {
		return nil, storageErr(err)
	}

	summary := reconcile.Close(shift.OpeningFloat, totals, counted)

	row = tx.QueryRowContext(ctx, `
		UPDATE cash_shifts
		SET status = 'closed', closed_at = $3, expected_cash = $4, counted_cash = $5, difference = $6, notes = $7
		WHERE id = $1 AND org_id = $2 AND status = 'open'
		RETURNING `+shiftColumns+`
	`, shiftID, orgID, closedAt, summary.ExpectedCash, summary.CountedCash, summary.Difference, notes)
	closed, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, storageErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr(err)
	}
	return closed, nil
}

func (s *Store) ListShifts(ctx context.Context, orgID string, registerID string, limit int) ([]domain.CashShift, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE org_id = $1 AND ($2 = '' OR register_id = $2)
		ORDER BY opened_at DESC
		LIMIT $3
	`, orgID, registerID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	shifts := make([]domain.CashShift, 0, limit)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		shifts = append(shifts, *shift)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return shifts, nil
}

func (s *Store) CreateMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if movement.Direction != domain.MovementIn && movement.Direction != domain.MovementOut {
		return nil, store.ErrInvalidInput
	}
	if !movement.Amount.IsPositive() {
		return nil, store.ErrInvalidAmount
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	// the share lock waits out a close running against the same shift; once
	// the close commits the status re-check fails and the movement is
	// rejected instead of slipping past the reconciled totals
	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM cash_shifts
		WHERE id = $1 AND org_id = $2 AND status = 'open'
		FOR SHARE
	`, movement.ShiftID, movement.OrgID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenShift
		}
		return nil, storageErr(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, org_id, shift_id, operator, direction, amount, reason, category_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.OrgID, movement.ShiftID, movement.Operator,
		movement.Direction, movement.Amount, movement.Reason, movement.CategoryID, movement.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(err)
	}

	created := movement
	return &created, nil
}

func (s *Store) ListMovements(ctx context.Context, orgID string, shiftID string, limit int) ([]domain.CashMovement, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, shift_id, operator, direction, amount, reason, category_id, created_at
		FROM cash_movements
		WHERE org_id = $1 AND shift_id = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, orgID, shiftID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, limit)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.OrgID, &m.ShiftID, &m.Operator, &m.Direction, &m.Amount, &m.Reason, &m.CategoryID, &m.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return movements, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Status = domain.SaleStatusPaid

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	// share-locked so the sale serializes against a close of the same shift
	var openShift string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM cash_shifts
		WHERE id = $1 AND org_id = $2 AND status = 'open'
		FOR SHARE
	`, sale.ShiftID, sale.OrgID).Scan(&openShift)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenShift
		}
		return nil, storageErr(err)
	}

	for _, line := range sale.Items {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $3, updated_at = now()
			WHERE id = $1 AND org_id = $2 AND active = true AND stock >= $3
		`, line.ProductID, sale.OrgID, line.Qty)
		if err != nil {
			return nil, storageErr(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, storageErr(err)
		}
		if affected == 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, org_id, shift_id, operator, payment_method, customer_id, total, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.OrgID, sale.ShiftID, sale.Operator, sale.PaymentMethod, sale.CustomerID, sale.Total, sale.Status, sale.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	for _, line := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, name, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, line.ProductID, line.Name, line.Qty, line.UnitPrice)
		if err != nil {
			return nil, storageErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr(err)
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, orgID string, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var cancelledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, shift_id, operator, payment_method, customer_id, total, status, cancel_reason, cancelled_at, created_at
		FROM sales
		WHERE id = $1 AND org_id = $2
	`, saleID, orgID).Scan(
		&sale.ID, &sale.OrgID, &sale.ShiftID, &sale.Operator, &sale.PaymentMethod,
		&sale.CustomerID, &sale.Total, &sale.Status, &sale.CancelReason, &cancelledAt, &sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}

	items, err := s.listSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, qty, unit_price
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	items := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Qty, &line.UnitPrice); err != nil {
			return nil, storageErr(err)
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return items, nil
}

func (s *Store) CancelSale(ctx context.Context, orgID string, saleID string, reason string, at time.Time) (*domain.Sale, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET status = 'cancelled', cancel_reason = $3, cancelled_at = $4
		WHERE id = $1 AND org_id = $2 AND status = 'paid'
	`, saleID, orgID, reason, at)
	if err != nil {
		return nil, storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr(err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products p
		SET stock = stock + i.qty, updated_at = now()
		FROM sale_items i
		WHERE i.sale_id = $1 AND p.id = i.product_id AND p.org_id = $2
	`, saleID, orgID)
	if err != nil {
		return nil, storageErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr(err)
	}

	return s.GetSaleByID(ctx, orgID, saleID)
}

func (s *Store) ListSales(ctx context.Context, orgID string, shiftID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, shift_id, operator, payment_method, customer_id, total, status, cancel_reason, cancelled_at, created_at
		FROM sales
		WHERE org_id = $1 AND ($2 = '' OR shift_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, orgID, shiftID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var cancelledAt sql.NullTime
		if err := rows.Scan(
			&sale.ID, &sale.OrgID, &sale.ShiftID, &sale.Operator, &sale.PaymentMethod,
			&sale.CustomerID, &sale.Total, &sale.Status, &sale.CancelReason, &cancelledAt, &sale.CreatedAt,
		); err != nil {
			return nil, storageErr(err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		if cancelledAt.Valid {
			at := cancelledAt.Time.UTC()
			sale.CancelledAt = &at
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}

	for i := range sales {
		items, err := s.listSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, storageErr(err)
		}
		sales[i].Items = items
	}
	return sales, nil
}

func (s *Store) GetDailyReport(ctx context.Context, orgID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		OrgID:      orgID,
		Date:       from.Format("2006-01-02"),
		GrossTotal: decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0)
		FROM sales
		WHERE org_id = $1 AND status = 'paid' AND created_at >= $2 AND created_at < $3
	`, orgID, from, to).Scan(&report.Sales, &report.GrossTotal)
	if err != nil {
		return domain.DailyReport{}, storageErr(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total), 0)
		FROM sales
		WHERE org_id = $1 AND status = 'paid' AND created_at >= $2 AND created_at < $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, orgID, from, to)
	if err != nil {
		return domain.DailyReport{}, storageErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.DailyReportPayment
		if err := rows.Scan(&p.PaymentMethod, &p.Sales, &p.Total); err != nil {
			return domain.DailyReport{}, storageErr(err)
		}
		report.ByPayment = append(report.ByPayment, p)
	}
	if err := rows.Err(); err != nil {
		return domain.DailyReport{}, storageErr(err)
	}

	regRows, err := s.db.QueryContext(ctx, `
		SELECT sh.register_id, COUNT(*), COALESCE(SUM(sa.total), 0)
		FROM sales sa
		JOIN cash_shifts sh ON sh.id = sa.shift_id
		WHERE sa.org_id = $1 AND sa.status = 'paid' AND sa.created_at >= $2 AND sa.created_at < $3
		GROUP BY sh.register_id
		ORDER BY sh.register_id
	`, orgID, from, to)
	if err != nil {
		return domain.DailyReport{}, storageErr(err)
	}
	defer regRows.Close()

	for regRows.Next() {
		var r domain.DailyReportRegister
		if err := regRows.Scan(&r.RegisterID, &r.Sales, &r.Total); err != nil {
			return domain.DailyReport{}, storageErr(err)
		}
		report.ByRegister = append(report.ByRegister, r)
	}
	if err := regRows.Err(); err != nil {
		return domain.DailyReport{}, storageErr(err)
	}

	return report, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.OrgID == "" || strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, org_id, name, category, price, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, product.ID, product.OrgID, product.Name, product.Category, product.Price, product.Stock, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, storageErr(err)
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, orgID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, category, price, stock, active, created_at
		FROM products
		WHERE id = $1 AND org_id = $2
	`, productID, orgID).Scan(&p.ID, &p.OrgID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, orgID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, category, price, stock, active, created_at
		FROM products
		WHERE org_id = $1 AND active = true
		ORDER BY category, name
	`, orgID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, category = $4, price = $5, stock = $6, active = $7, updated_at = now()
		WHERE id = $1 AND org_id = $2
	`, product.ID, product.OrgID, product.Name, product.Category, product.Price, product.Stock, product.Active)
	if err != nil {
		return nil, storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr(err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, orgID string, productID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $3, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND stock + $3 >= 0
	`, productID, orgID, delta)
	if err != nil {
		return storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if affected == 0 {
		if _, err := s.GetProductByID(ctx, orgID, productID); err != nil {
			return storageErr(err)
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.OrgID == "" || strings.TrimSpace(customer.Name) == "" || customer.CreditLimit.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, org_id, name, phone, credit_limit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.OrgID, customer.Name, customer.Phone, customer.CreditLimit, customer.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, orgID string, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, phone, credit_limit, created_at
		FROM customers
		WHERE id = $1 AND org_id = $2
	`, customerID, orgID).Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.CreditLimit, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, orgID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, phone, credit_limit, created_at
		FROM customers
		WHERE org_id = $1
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.CreditLimit, &c.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return customers, nil
}

func (s *Store) CreateCreditEntry(ctx context.Context, entry domain.CreditEntry) (*domain.CreditEntry, error) {
	if entry.Kind != domain.CreditCharge && entry.Kind != domain.CreditPayment {
		return nil, store.ErrInvalidInput
	}
	if !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidAmount
	}
	if entry.ID == "" {
		entry.ID = xid.New("credit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_entries (id, org_id, customer_id, sale_id, kind, amount, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.OrgID, entry.CustomerID, entry.SaleID, entry.Kind, entry.Amount, entry.Note, entry.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	created := entry
	return &created, nil
}

func (s *Store) ListCreditEntries(ctx context.Context, orgID string, customerID string, limit int) ([]domain.CreditEntry, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, customer_id, sale_id, kind, amount, note, created_at
		FROM credit_entries
		WHERE org_id = $1 AND customer_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, orgID, customerID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	entries := make([]domain.CreditEntry, 0, limit)
	for rows.Next() {
		var e domain.CreditEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.CustomerID, &e.SaleID, &e.Kind, &e.Amount, &e.Note, &e.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return entries, nil
}

func (s *Store) GetCreditBalance(ctx context.Context, orgID string, customerID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE kind WHEN 'charge' THEN amount ELSE -amount END), 0)
		FROM credit_entries
		WHERE org_id = $1 AND customer_id = $2
	`, orgID, customerID).Scan(&balance)
	if err != nil {
		return decimal.Zero, storageErr(err)
	}
	return balance, nil
}

func (s *Store) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_email, plan_code, subscription_status, created_at
		FROM organizations
		WHERE id = $1
	`, orgID).Scan(&org.ID, &org.Name, &org.OwnerEmail, &org.PlanCode, &org.SubscriptionStatus, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr(err)
	}
	org.CreatedAt = org.CreatedAt.UTC()
	return &org, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, orgID string, planCode string, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET plan_code = $2, subscription_status = $3
		WHERE id = $1
	`, orgID, planCode, status)
	if err != nil {
		return storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, org_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.OrgID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return storageErr(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, orgID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE org_id = $1
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, orgID, nullTime(timePtrOrNil(from)), nullTime(timePtrOrNil(to)), limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.OrgID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, org_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, username, user.Password, user.Role, user.OrgID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return storageErr(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, orgID string) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, org_id, active, created_at
		FROM users
		WHERE org_id = $1
		ORDER BY username
	`, orgID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.OrgID, &u.Active, &u.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// storageErr marks driver and connection failures as storage unavailability
// so the API layer answers 503 instead of leaking SQL detail. Errors already
// carrying a domain meaning pass through untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		store.ErrNotFound, store.ErrInvalidInput, store.ErrInvalidAmount,
		store.ErrNoOpenShift, store.ErrOperatorShiftOpen, store.ErrRegisterInUse,
		store.ErrShiftNotFound, store.ErrInsufficientStock, store.ErrCreditLimit,
		store.ErrStorage,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", store.ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtrOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
