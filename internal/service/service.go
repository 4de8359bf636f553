package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dontendero/backend/internal/billing"
	"dontendero/backend/internal/cache"
	"dontendero/backend/internal/domain"
	"dontendero/backend/internal/store"
	"dontendero/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const shiftCacheTTL = 30 * time.Second

type Service struct {
	repo       store.Repository
	shiftCache cache.ShiftCache
	signer     *billing.Signer
}

func New(repo store.Repository, shiftCache cache.ShiftCache, signer *billing.Signer) *Service {
	if shiftCache == nil {
		shiftCache = cache.NoopShiftCache{}
	}

	return &Service{
		repo:       repo,
		shiftCache: shiftCache,
		signer:     signer,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.OrgID == "" {
		return domain.Actor{}, fmt.Errorf("authenticated actor required")
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != "admin" {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if strings.TrimSpace(req.RegisterID) == "" {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}
	if req.OpeningFloat.IsNegative() {
		return domain.ShiftResponse{}, store.ErrInvalidAmount
	}

	if _, err := s.repo.GetOpenShiftByOperator(ctx, actor.OrgID, actor.Username); err == nil {
		return domain.ShiftResponse{}, store.ErrOperatorShiftOpen
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ShiftResponse{}, err
	}
	if holder, err := s.repo.GetOpenShiftByRegister(ctx, actor.OrgID, req.RegisterID); err == nil {
		return domain.ShiftResponse{}, fmt.Errorf("%w: held by %s", store.ErrRegisterInUse, holder.Operator)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ShiftResponse{}, err
	}

	shift := domain.CashShift{
		ID:           xid.New("shift"),
		OrgID:        actor.OrgID,
		RegisterID:   req.RegisterID,
		Operator:     actor.Username,
		OpeningFloat: req.OpeningFloat,
		Status:       domain.ShiftStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
	// the storage layer re-detects both single-open races on insert, so a
	// concurrent open that slipped past the reads above still loses here
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.invalidateShiftCache(ctx, actor.OrgID, saved.Operator, saved.RegisterID)
	s.logAudit(ctx, "shift_open", "shift", saved.ID, fmt.Sprintf("register=%s,float=%s", saved.RegisterID, saved.OpeningFloat))

	return domain.ShiftResponse{Shift: *saved}, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftCloseResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}
	if req.CountedCash.IsNegative() {
		return domain.ShiftCloseResponse{}, store.ErrInvalidAmount
	}

	// the storage layer reads the totals and persists the close in one
	// transaction, so a movement racing the close either lands in
	// expected_cash or is rejected against the already-closed shift
	closed, err := s.repo.CloseShift(ctx, actor.OrgID, req.ShiftID, req.CountedCash, req.Notes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftCloseResponse{}, store.ErrShiftNotFound
		}
		return domain.ShiftCloseResponse{}, err
	}

	s.invalidateShiftCache(ctx, actor.OrgID, closed.Operator, closed.RegisterID)
	s.logAudit(ctx, "shift_close", "shift", closed.ID, fmt.Sprintf("expected=%s,counted=%s,difference=%s", closed.ExpectedCash, closed.CountedCash, closed.Difference))

	return domain.ShiftCloseResponse{
		Shift:        *closed,
		ExpectedCash: *closed.ExpectedCash,
		CountedCash:  *closed.CountedCash,
		Difference:   *closed.Difference,
	}, nil
}

// GetOpenShift returns the caller's open shift, consulting the cache first.
func (s *Service) GetOpenShift(ctx context.Context) (domain.ShiftResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	key := cache.OperatorKey(actor.OrgID, actor.Username)
	if cached, hit, err := s.shiftCache.Get(ctx, key); err == nil && hit && cached.Status == domain.ShiftStatusOpen {
		return domain.ShiftResponse{Shift: *cached}, nil
	}

	shift, err := s.repo.GetOpenShiftByOperator(ctx, actor.OrgID, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, store.ErrNoOpenShift
		}
		return domain.ShiftResponse{}, err
	}

	if err := s.shiftCache.Set(ctx, key, shift, shiftCacheTTL); err != nil {
		log.Printf("[service] WARN: shift cache set failed: %v", err)
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) GetRegisterShift(ctx context.Context, registerID string) (domain.ShiftResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if registerID == "" {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}

	key := cache.RegisterKey(actor.OrgID, registerID)
	if cached, hit, err := s.shiftCache.Get(ctx, key); err == nil && hit && cached.Status == domain.ShiftStatusOpen {
		return domain.ShiftResponse{Shift: *cached}, nil
	}

	shift, err := s.repo.GetOpenShiftByRegister(ctx, actor.OrgID, registerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, store.ErrNoOpenShift
		}
		return domain.ShiftResponse{}, err
	}

	if err := s.shiftCache.Set(ctx, key, shift, shiftCacheTTL); err != nil {
		log.Printf("[service] WARN: shift cache set failed: %v", err)
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) GetShiftSummary(ctx context.Context, shiftID string) (domain.ShiftSummary, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.ShiftSummary{}, err
	}

	shift, err := s.repo.GetShiftByID(ctx, actor.OrgID, shiftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftSummary{}, store.ErrShiftNotFound
		}
		return domain.ShiftSummary{}, err
	}
	totals, err := s.repo.GetShiftTotals(ctx, actor.OrgID, shiftID)
	if err != nil {
		return domain.ShiftSummary{}, err
	}

	return domain.ShiftSummary{Shift: *shift, Totals: totals}, nil
}

func (s *Service) ListShifts(ctx context.Context, registerID string, limit int) ([]domain.CashShift, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListShifts(ctx, actor.OrgID, registerID, limit)
}

func (s *Service) invalidateShiftCache(ctx context.Context, orgID string, operator string, registerID string) {
	err := s.shiftCache.Delete(ctx,
		cache.OperatorKey(orgID, operator),
		cache.RegisterKey(orgID, registerID),
	)
	if err != nil {
		log.Printf("[service] WARN: shift cache invalidation failed: %v", err)
	}
}

func (s *Service) AddMovement(ctx context.Context, req domain.MovementCreateRequest) (domain.CashMovement, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if req.Direction != domain.MovementIn && req.Direction != domain.MovementOut {
		return domain.CashMovement{}, store.ErrInvalidInput
	}
	if !req.Amount.IsPositive() {
		return domain.CashMovement{}, store.ErrInvalidAmount
	}

	shift, err := s.repo.GetOpenShiftByOperator(ctx, actor.OrgID, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CashMovement{}, store.ErrNoOpenShift
		}
		return domain.CashMovement{}, err
	}

	movement := domain.CashMovement{
		ID:         xid.New("mov"),
		OrgID:      actor.OrgID,
		ShiftID:    shift.ID,
		Operator:   actor.Username,
		Direction:  req.Direction,
		Amount:     req.Amount,
		Reason:     strings.TrimSpace(req.Reason),
		CategoryID: req.CategoryID,
		CreatedAt:  time.Now().UTC(),
	}
	saved, err := s.repo.CreateMovement(ctx, movement)
	if err != nil {
		return domain.CashMovement{}, err
	}

	s.logAudit(ctx, "movement_add", "movement", saved.ID, fmt.Sprintf("shift=%s,%s=%s", saved.ShiftID, saved.Direction, saved.Amount))
	return *saved, nil
}

func (s *Service) ListMovements(ctx context.Context, shiftID string, limit int) ([]domain.CashMovement, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if shiftID == "" {
		shift, err := s.repo.GetOpenShiftByOperator(ctx, actor.OrgID, actor.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, store.ErrNoOpenShift
			}
			return nil, err
		}
		shiftID = shift.ID
	}
	return s.repo.ListMovements(ctx, actor.OrgID, shiftID, limit)
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	if req.PaymentMethod == domain.PaymentFiado && req.CustomerID == "" {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	shift, err := s.repo.GetOpenShiftByOperator(ctx, actor.OrgID, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleResponse{}, store.ErrNoOpenShift
		}
		return domain.SaleResponse{}, err
	}

	// prices come from the catalog, never from the request
	total := decimal.Zero
	lines := make([]domain.SaleLine, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Qty < 1 {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		product, err := s.repo.GetProductByID(ctx, actor.OrgID, item.ProductID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if !product.Active {
			return domain.SaleResponse{}, store.ErrNotFound
		}
		lines = append(lines, domain.SaleLine{
			ProductID: product.ID,
			Name:      product.Name,
			Qty:       item.Qty,
			UnitPrice: product.Price,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Qty))))
	}

	if req.PaymentMethod == domain.PaymentFiado {
		customer, err := s.repo.GetCustomerByID(ctx, actor.OrgID, req.CustomerID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		balance, err := s.repo.GetCreditBalance(ctx, actor.OrgID, customer.ID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if balance.Add(total).GreaterThan(customer.CreditLimit) {
			return domain.SaleResponse{}, store.ErrCreditLimit
		}
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		OrgID:         actor.OrgID,
		ShiftID:       shift.ID,
		Operator:      actor.Username,
		PaymentMethod: req.PaymentMethod,
		CustomerID:    req.CustomerID,
		Total:         total,
		Status:        domain.SaleStatusPaid,
		CreatedAt:     time.Now().UTC(),
		Items:         lines,
	}
	saved, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if saved.PaymentMethod == domain.PaymentFiado {
		_, err := s.repo.CreateCreditEntry(ctx, domain.CreditEntry{
			ID:         xid.New("credit"),
			OrgID:      actor.OrgID,
			CustomerID: saved.CustomerID,
			SaleID:     saved.ID,
			Kind:       domain.CreditCharge,
			Amount:     saved.Total,
			Note:       "venta fiada",
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[service] WARN: fiado charge not recorded sale=%s: %v", saved.ID, err)
		}
	}

	s.logAudit(ctx, "sale_record", "sale", saved.ID, fmt.Sprintf("method=%s,total=%s", saved.PaymentMethod, saved.Total))
	return domain.SaleResponse{Sale: *saved}, nil
}

func (s *Service) CancelSale(ctx context.Context, saleID string, reason string) (domain.SaleResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	cancelled, err := s.repo.CancelSale(ctx, actor.OrgID, saleID, strings.TrimSpace(reason), time.Now().UTC())
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if cancelled.PaymentMethod == domain.PaymentFiado && cancelled.CustomerID != "" {
		_, err := s.repo.CreateCreditEntry(ctx, domain.CreditEntry{
			ID:         xid.New("credit"),
			OrgID:      actor.OrgID,
			CustomerID: cancelled.CustomerID,
			SaleID:     cancelled.ID,
			Kind:       domain.CreditPayment,
			Amount:     cancelled.Total,
			Note:       "venta anulada",
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[service] WARN: fiado reversal not recorded sale=%s: %v", cancelled.ID, err)
		}
	}

	s.logAudit(ctx, "sale_cancel", "sale", cancelled.ID, reason)
	return domain.SaleResponse{Sale: *cancelled}, nil
}

func (s *Service) ListSales(ctx context.Context, shiftID string, limit int) ([]domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, actor.OrgID, shiftID, limit)
}

func (s *Service) CreateRegister(ctx context.Context, req domain.RegisterCreateRequest) (domain.CashRegister, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.CashRegister{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.CashRegister{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateRegister(ctx, domain.CashRegister{
		ID:        xid.New("reg"),
		OrgID:     actor.OrgID,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.CashRegister{}, err
	}

	s.logAudit(ctx, "register_create", "register", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListRegisters(ctx context.Context) ([]domain.CashRegister, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRegisters(ctx, actor.OrgID)
}

func (s *Service) DeleteRegister(ctx context.Context, registerID string) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRegister(ctx, actor.OrgID, registerID); err != nil {
		return err
	}
	s.logAudit(ctx, "register_delete", "register", registerID, "")
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || !req.Price.IsPositive() || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:        xid.New("prod"),
		OrgID:     actor.OrgID,
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price,
		Stock:     req.Stock,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, actor.OrgID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Price = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%s,stock=%d", saved.Active, saved.Price, saved.Stock))
	return *saved, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.OrgID)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.CreditLimit.IsNegative() {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:          xid.New("cust"),
		OrgID:       actor.OrgID,
		Name:        req.Name,
		Phone:       strings.TrimSpace(req.Phone),
		CreditLimit: req.CreditLimit,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, actor.OrgID)
}

func (s *Service) GetCreditStatement(ctx context.Context, customerID string) (domain.CreditStatement, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.CreditStatement{}, err
	}

	customer, err := s.repo.GetCustomerByID(ctx, actor.OrgID, customerID)
	if err != nil {
		return domain.CreditStatement{}, err
	}
	balance, err := s.repo.GetCreditBalance(ctx, actor.OrgID, customerID)
	if err != nil {
		return domain.CreditStatement{}, err
	}
	entries, err := s.repo.ListCreditEntries(ctx, actor.OrgID, customerID, 200)
	if err != nil {
		return domain.CreditStatement{}, err
	}

	return domain.CreditStatement{Customer: *customer, Balance: balance, Entries: entries}, nil
}

func (s *Service) RecordCreditPayment(ctx context.Context, customerID string, req domain.CreditPaymentRequest) (domain.CreditEntry, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.CreditEntry{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.CreditEntry{}, store.ErrInvalidAmount
	}

	created, err := s.repo.CreateCreditEntry(ctx, domain.CreditEntry{
		ID:         xid.New("credit"),
		OrgID:      actor.OrgID,
		CustomerID: customerID,
		Kind:       domain.CreditPayment,
		Amount:     req.Amount,
		Note:       strings.TrimSpace(req.Note),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.CreditEntry{}, err
	}

	s.logAudit(ctx, "credit_payment", "customer", customerID, fmt.Sprintf("amount=%s", req.Amount))
	return *created, nil
}

func (s *Service) GetDailyReport(ctx context.Context, date time.Time) (domain.DailyReport, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.DailyReport{}, err
	}

	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	return s.repo.GetDailyReport(ctx, actor.OrgID, from, to)
}

func (s *Service) Subscribe(ctx context.Context, req domain.SubscribeRequest) (domain.PaymentIntent, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	plan, ok := billing.PlanByCode(req.PlanCode)
	if !ok {
		return domain.PaymentIntent{}, store.ErrInvalidInput
	}
	if s.signer == nil {
		return domain.PaymentIntent{}, fmt.Errorf("billing not configured")
	}

	// the reference carries org and plan so the unauthenticated gateway
	// callback can be resolved without extra state
	reference := strings.Join([]string{actor.OrgID, plan.Code, xid.New("sub")}, ":")
	intent := domain.PaymentIntent{
		Reference:  reference,
		PlanCode:   plan.Code,
		Amount:     plan.Price,
		Currency:   "COP",
		MerchantID: s.signer.MerchantID(),
		Signature:  s.signer.Sign(reference, plan.Price, "COP"),
		CreatedAt:  time.Now().UTC(),
	}

	s.logAudit(ctx, "billing_subscribe", "organization", actor.OrgID, plan.Code)
	return intent, nil
}

func (s *Service) ConfirmPayment(ctx context.Context, conf domain.GatewayConfirmation) error {
	if s.signer == nil {
		return fmt.Errorf("billing not configured")
	}
	if err := s.signer.VerifyConfirmation(conf.Reference, conf.Amount, conf.Currency, conf.Signature); err != nil {
		return err
	}

	parts := strings.SplitN(conf.Reference, ":", 3)
	if len(parts) != 3 {
		return store.ErrInvalidInput
	}
	orgID, planCode := parts[0], parts[1]

	status := domain.SubscriptionPastDue
	if strings.EqualFold(conf.State, "approved") {
		status = domain.SubscriptionActive
	}
	if err := s.repo.UpdateSubscription(ctx, orgID, planCode, status); err != nil {
		return err
	}

	s.logAudit(ctx, "billing_confirm", "organization", orgID, fmt.Sprintf("plan=%s,state=%s", planCode, conf.State))
	return nil
}

func (s *Service) GetSubscriptionStatus(ctx context.Context) (domain.SubscriptionStatus, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SubscriptionStatus{}, err
	}
	org, err := s.repo.GetOrganization(ctx, actor.OrgID)
	if err != nil {
		return domain.SubscriptionStatus{}, err
	}
	return domain.SubscriptionStatus{
		OrgID:    org.ID,
		PlanCode: org.PlanCode,
		Status:   org.SubscriptionStatus,
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, actor.OrgID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		OrgID:         actor.OrgID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer, domain.PaymentFiado:
		return true
	}
	return false
}
