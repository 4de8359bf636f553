package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dontendero/backend/internal/domain"
	"dontendero/backend/internal/reconcile"
	"dontendero/backend/internal/store"
	"dontendero/backend/internal/xid"
)

// Store is the in-memory repository used in dev mode and in tests. It
// enforces the same shift invariants as the postgres store so the service
// layer behaves identically on both.
type Store struct {
	mu                  sync.RWMutex
	orgsByID            map[string]domain.Organization
	registersByID       map[string]domain.CashRegister
	shiftsByID          map[string]domain.CashShift
	openShiftByOperator map[string]string
	openShiftByRegister map[string]string
	movementsByShift    map[string][]domain.CashMovement
	salesByID           map[string]*domain.Sale
	productsByID        map[string]domain.Product
	customersByID       map[string]domain.Customer
	creditEntries       []domain.CreditEntry
	auditLogs           []domain.AuditLog
	usersByUsername     map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers(orgID string) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			OrgID:     orgID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

const SeedOrgID = "org-demo"

func NewSeeded() *Store {
	now := time.Now().UTC()

	org := domain.Organization{
		ID:                 SeedOrgID,
		Name:               "Tienda Demo",
		OwnerEmail:         "demo@dontendero.co",
		PlanCode:           "basico",
		SubscriptionStatus: domain.SubscriptionTrial,
		CreatedAt:          now,
	}

	registers := []domain.CashRegister{
		{ID: "reg-principal", OrgID: SeedOrgID, Name: "Caja Principal", CreatedAt: now},
		{ID: "reg-auxiliar", OrgID: SeedOrgID, Name: "Caja Auxiliar", CreatedAt: now},
	}

	products := []domain.Product{
		{ID: "prod-arroz", OrgID: SeedOrgID, Name: "Arroz 500g", Category: "granos", Price: decimal.NewFromInt(2800), Stock: 120, Active: true, CreatedAt: now},
		{ID: "prod-panela", OrgID: SeedOrgID, Name: "Panela 1lb", Category: "granos", Price: decimal.NewFromInt(3500), Stock: 80, Active: true, CreatedAt: now},
		{ID: "prod-leche", OrgID: SeedOrgID, Name: "Leche 1L", Category: "lacteos", Price: decimal.NewFromInt(4200), Stock: 60, Active: true, CreatedAt: now},
		{ID: "prod-huevos", OrgID: SeedOrgID, Name: "Huevos x30", Category: "granja", Price: decimal.NewFromInt(15500), Stock: 40, Active: true, CreatedAt: now},
		{ID: "prod-gaseosa", OrgID: SeedOrgID, Name: "Gaseosa 400ml", Category: "bebidas", Price: decimal.NewFromInt(3000), Stock: 150, Active: true, CreatedAt: now},
		{ID: "prod-pan", OrgID: SeedOrgID, Name: "Pan Tajado", Category: "panaderia", Price: decimal.NewFromInt(6200), Stock: 35, Active: true, CreatedAt: now},
		{ID: "prod-cafe", OrgID: SeedOrgID, Name: "Cafe 250g", Category: "bebidas", Price: decimal.NewFromInt(9800), Stock: 50, Active: true, CreatedAt: now},
		{ID: "prod-jabon", OrgID: SeedOrgID, Name: "Jabon de Bano", Category: "aseo", Price: decimal.NewFromInt(4500), Stock: 70, Active: true, CreatedAt: now},
	}

	customers := []domain.Customer{
		{ID: "cust-maria", OrgID: SeedOrgID, Name: "Maria Gomez", Phone: "3001234567", CreditLimit: decimal.NewFromInt(100000), CreatedAt: now},
		{ID: "cust-pedro", OrgID: SeedOrgID, Name: "Pedro Suarez", Phone: "3109876543", CreditLimit: decimal.NewFromInt(50000), CreatedAt: now},
	}

	registerMap := make(map[string]domain.CashRegister, len(registers))
	for _, r := range registers {
		registerMap[r.ID] = r
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}

	return &Store{
		orgsByID:            map[string]domain.Organization{org.ID: org},
		registersByID:       registerMap,
		shiftsByID:          make(map[string]domain.CashShift),
		openShiftByOperator: make(map[string]string),
		openShiftByRegister: make(map[string]string),
		movementsByShift:    make(map[string][]domain.CashMovement),
		salesByID:           make(map[string]*domain.Sale),
		productsByID:        productMap,
		customersByID:       customerMap,
		creditEntries:       make([]domain.CreditEntry, 0, 64),
		auditLogs:           make([]domain.AuditLog, 0, 128),
		usersByUsername:     seedUsers(SeedOrgID),
	}
}

func (s *Store) CreateRegister(_ context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	if strings.TrimSpace(register.OrgID) == "" || strings.TrimSpace(register.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if register.ID == "" {
		register.ID = xid.New("reg")
	}
	if register.CreatedAt.IsZero() {
		register.CreatedAt = time.Now().UTC()
	}
	s.registersByID[register.ID] = register
	created := register
	return &created, nil
}

func (s *Store) ListRegisters(_ context.Context, orgID string) ([]domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registers := make([]domain.CashRegister, 0, len(s.registersByID))
	for _, r := range s.registersByID {
		if r.OrgID == orgID {
			registers = append(registers, r)
		}
	}
	slices.SortFunc(registers, func(a, b domain.CashRegister) int {
		return cmpString(a.Name, b.Name)
	})
	return registers, nil
}

func (s *Store) GetRegisterByID(_ context.Context, orgID string, registerID string) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	register, exists := s.registersByID[registerID]
	if !exists || register.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	copyRegister := register
	return &copyRegister, nil
}

func (s *Store) DeleteRegister(_ context.Context, orgID string, registerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	register, exists := s.registersByID[registerID]
	if !exists || register.OrgID != orgID {
		return store.ErrNotFound
	}
	if _, open := s.openShiftByRegister[registerID]; open {
		return store.ErrRegisterInUse
	}
	delete(s.registersByID, registerID)
	return nil
}

func operatorShiftKey(orgID string, operator string) string {
	return orgID + "::" + operator
}

func (s *Store) CreateShift(_ context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	if strings.TrimSpace(shift.OrgID) == "" || strings.TrimSpace(shift.RegisterID) == "" || strings.TrimSpace(shift.Operator) == "" {
		return nil, store.ErrInvalidInput
	}
	if shift.OpeningFloat.IsNegative() {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	register, exists := s.registersByID[shift.RegisterID]
	if !exists || register.OrgID != shift.OrgID {
		return nil, store.ErrNotFound
	}
	if _, open := s.openShiftByOperator[operatorShiftKey(shift.OrgID, shift.Operator)]; open {
		return nil, store.ErrOperatorShiftOpen
	}
	if _, open := s.openShiftByRegister[shift.RegisterID]; open {
		return nil, store.ErrRegisterInUse
	}

	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.ExpectedCash = nil
	shift.CountedCash = nil
	shift.Difference = nil

	s.shiftsByID[shift.ID] = shift
	s.openShiftByOperator[operatorShiftKey(shift.OrgID, shift.Operator)] = shift.ID
	s.openShiftByRegister[shift.RegisterID] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShiftByID(_ context.Context, orgID string, shiftID string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetOpenShiftByOperator(_ context.Context, orgID string, operator string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.openShiftByOperator[operatorShiftKey(orgID, operator)]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetOpenShiftByRegister(_ context.Context, orgID string, registerID string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.openShiftByRegister[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.OrgID != orgID || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShiftTotals(_ context.Context, orgID string, shiftID string) (domain.ShiftTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.OrgID != orgID {
		return domain.ShiftTotals{}, store.ErrNotFound
	}
	return s.shiftTotalsLocked(shiftID), nil
}

// shiftTotalsLocked sums sales and movements for a shift. Callers must hold
// at least a read lock.
func (s *Store) shiftTotalsLocked(shiftID string) domain.ShiftTotals {
	totals := domain.ShiftTotals{
		CashSales:    decimal.Zero,
		MovementsIn:  decimal.Zero,
		MovementsOut: decimal.Zero,
	}
	for _, sale := range s.salesByID {
		if sale.ShiftID != shiftID || sale.Status != domain.SaleStatusPaid {
			continue
		}
		totals.SaleCount++
		if sale.PaymentMethod == domain.PaymentCash {
			totals.CashSales = totals.CashSales.Add(sale.Total)
		}
	}
	for _, m := range s.movementsByShift[shiftID] {
		switch m.Direction {
		case domain.MovementIn:
			totals.MovementsIn = totals.MovementsIn.Add(m.Amount)
		case domain.MovementOut:
			totals.MovementsOut = totals.MovementsOut.Add(m.Amount)
		}
	}
	return totals
}

// CloseShift reconciles and closes in one step under the store lock, so no
// movement or sale can land between the totals read and the close.
func (s *Store) CloseShift(_ context.Context, orgID string, shiftID string, counted decimal.Decimal, notes string, closedAt time.Time) (*domain.CashShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.OrgID != orgID || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftNotFound
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	summary := reconcile.Close(shift.OpeningFloat, s.shiftTotalsLocked(shiftID), counted)

	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt
	shift.ExpectedCash = &summary.ExpectedCash
	shift.CountedCash = &summary.CountedCash
	shift.Difference = &summary.Difference
	shift.Notes = notes

	delete(s.openShiftByOperator, operatorShiftKey(shift.OrgID, shift.Operator))
	delete(s.openShiftByRegister, shift.RegisterID)
	s.shiftsByID[shiftID] = shift
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) ListShifts(_ context.Context, orgID string, registerID string, limit int) ([]domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	shifts := make([]domain.CashShift, 0, limit)
	for _, shift := range s.shiftsByID {
		if shift.OrgID != orgID {
			continue
		}
		if registerID != "" && shift.RegisterID != registerID {
			continue
		}
		shifts = append(shifts, shift)
	}
	slices.SortFunc(shifts, func(a, b domain.CashShift) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if len(shifts) > limit {
		shifts = shifts[:limit]
	}
	return shifts, nil
}

func (s *Store) CreateMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if movement.Direction != domain.MovementIn && movement.Direction != domain.MovementOut {
		return nil, store.ErrInvalidInput
	}
	if !movement.Amount.IsPositive() {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[movement.ShiftID]
	if !exists || shift.OrgID != movement.OrgID || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNoOpenShift
	}

	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movementsByShift[movement.ShiftID] = append(s.movementsByShift[movement.ShiftID], movement)
	copyMovement := movement
	return &copyMovement, nil
}

func (s *Store) ListMovements(_ context.Context, orgID string, shiftID string, limit int) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	movements := s.movementsByShift[shiftID]
	result := make([]domain.CashMovement, len(movements))
	copy(result, movements)
	slices.SortFunc(result, func(a, b domain.CashMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[sale.ShiftID]
	if !exists || shift.OrgID != sale.OrgID || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNoOpenShift
	}

	// verify and decrement stock atomically under the lock
	for _, line := range sale.Items {
		product, ok := s.productsByID[line.ProductID]
		if !ok || product.OrgID != sale.OrgID || !product.Active {
			return nil, store.ErrNotFound
		}
		if product.Stock < line.Qty {
			return nil, store.ErrInsufficientStock
		}
	}
	for _, line := range sale.Items {
		product := s.productsByID[line.ProductID]
		product.Stock -= line.Qty
		s.productsByID[line.ProductID] = product
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Status = domain.SaleStatusPaid
	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) GetSaleByID(_ context.Context, orgID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists || sale.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) CancelSale(_ context.Context, orgID string, saleID string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists || sale.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPaid {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	for _, line := range sale.Items {
		if product, ok := s.productsByID[line.ProductID]; ok {
			product.Stock += line.Qty
			s.productsByID[line.ProductID] = product
		}
	}

	sale.Status = domain.SaleStatusCancelled
	sale.CancelReason = reason
	sale.CancelledAt = &at
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, orgID string, shiftID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if sale.OrgID != orgID {
			continue
		}
		if shiftID != "" && sale.ShiftID != shiftID {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetDailyReport(_ context.Context, orgID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		OrgID:      orgID,
		Date:       from.Format("2006-01-02"),
		GrossTotal: decimal.Zero,
	}
	byPayment := map[string]*domain.DailyReportPayment{}
	byRegister := map[string]*domain.DailyReportRegister{}

	for _, sale := range s.salesByID {
		if sale.OrgID != orgID || sale.Status != domain.SaleStatusPaid {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Sales++
		report.GrossTotal = report.GrossTotal.Add(sale.Total)

		p, ok := byPayment[sale.PaymentMethod]
		if !ok {
			p = &domain.DailyReportPayment{PaymentMethod: sale.PaymentMethod, Total: decimal.Zero}
			byPayment[sale.PaymentMethod] = p
		}
		p.Sales++
		p.Total = p.Total.Add(sale.Total)

		shift, ok := s.shiftsByID[sale.ShiftID]
		registerID := ""
		if ok {
			registerID = shift.RegisterID
		}
		r, ok := byRegister[registerID]
		if !ok {
			r = &domain.DailyReportRegister{RegisterID: registerID, Total: decimal.Zero}
			byRegister[registerID] = r
		}
		r.Sales++
		r.Total = r.Total.Add(sale.Total)
	}

	for _, p := range byPayment {
		report.ByPayment = append(report.ByPayment, *p)
	}
	for _, r := range byRegister {
		report.ByRegister = append(report.ByRegister, *r)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})
	slices.SortFunc(report.ByRegister, func(a, b domain.DailyReportRegister) int {
		return cmpString(a.RegisterID, b.RegisterID)
	})
	return report, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.OrgID) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, orgID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists || product.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context, orgID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if p.OrgID != orgID || !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists || existing.OrgID != product.OrgID {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, orgID string, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists || product.OrgID != orgID {
		return store.ErrNotFound
	}
	if product.Stock+delta < 0 {
		return store.ErrInsufficientStock
	}
	product.Stock += delta
	s.productsByID[productID] = product
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.OrgID) == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.CreditLimit.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, orgID string, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists || customer.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context, orgID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if c.OrgID == orgID {
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateCreditEntry(_ context.Context, entry domain.CreditEntry) (*domain.CreditEntry, error) {
	if entry.Kind != domain.CreditCharge && entry.Kind != domain.CreditPayment {
		return nil, store.ErrInvalidInput
	}
	if !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[entry.CustomerID]
	if !exists || customer.OrgID != entry.OrgID {
		return nil, store.ErrNotFound
	}

	if entry.ID == "" {
		entry.ID = xid.New("credit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.creditEntries = append(s.creditEntries, entry)
	created := entry
	return &created, nil
}

func (s *Store) ListCreditEntries(_ context.Context, orgID string, customerID string, limit int) ([]domain.CreditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.CreditEntry, 0, limit)
	for _, e := range s.creditEntries {
		if e.OrgID == orgID && e.CustomerID == customerID {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b domain.CreditEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetCreditBalance(_ context.Context, orgID string, customerID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists || customer.OrgID != orgID {
		return decimal.Zero, store.ErrNotFound
	}

	balance := decimal.Zero
	for _, e := range s.creditEntries {
		if e.OrgID != orgID || e.CustomerID != customerID {
			continue
		}
		switch e.Kind {
		case domain.CreditCharge:
			balance = balance.Add(e.Amount)
		case domain.CreditPayment:
			balance = balance.Sub(e.Amount)
		}
	}
	return balance, nil
}

func (s *Store) GetOrganization(_ context.Context, orgID string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgsByID[orgID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyOrg := org
	return &copyOrg, nil
}

func (s *Store) UpdateSubscription(_ context.Context, orgID string, planCode string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgsByID[orgID]
	if !exists {
		return store.ErrNotFound
	}
	org.PlanCode = planCode
	org.SubscriptionStatus = status
	s.orgsByID[orgID] = org
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, orgID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.OrgID != orgID {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context, orgID string) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		if u.OrgID == orgID {
			users = append(users, u)
		}
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return &dup
}
