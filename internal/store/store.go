package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"dontendero/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNoOpenShift       = errors.New("no open shift")
	ErrOperatorShiftOpen = errors.New("operator already has an open shift")
	ErrRegisterInUse     = errors.New("register already has an open shift")
	ErrShiftNotFound     = errors.New("shift not found or already closed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCreditLimit       = errors.New("credit limit exceeded")
	ErrStorage           = errors.New("storage unavailable")
)

type Repository interface {
	CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error)
	ListRegisters(ctx context.Context, orgID string) ([]domain.CashRegister, error)
	GetRegisterByID(ctx context.Context, orgID string, registerID string) (*domain.CashRegister, error)
	DeleteRegister(ctx context.Context, orgID string, registerID string) error

	CreateShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error)
	GetShiftByID(ctx context.Context, orgID string, shiftID string) (*domain.CashShift, error)
	GetOpenShiftByOperator(ctx context.Context, orgID string, operator string) (*domain.CashShift, error)
	GetOpenShiftByRegister(ctx context.Context, orgID string, registerID string) (*domain.CashShift, error)
	GetShiftTotals(ctx context.Context, orgID string, shiftID string) (domain.ShiftTotals, error)
	CloseShift(ctx context.Context, orgID string, shiftID string, counted decimal.Decimal, notes string, closedAt time.Time) (*domain.CashShift, error)
	ListShifts(ctx context.Context, orgID string, registerID string, limit int) ([]domain.CashShift, error)

	CreateMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListMovements(ctx context.Context, orgID string, shiftID string, limit int) ([]domain.CashMovement, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, orgID string, saleID string) (*domain.Sale, error)
	CancelSale(ctx context.Context, orgID string, saleID string, reason string, at time.Time) (*domain.Sale, error)
	ListSales(ctx context.Context, orgID string, shiftID string, limit int) ([]domain.Sale, error)
	GetDailyReport(ctx context.Context, orgID string, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, orgID string, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, orgID string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, orgID string, productID string, delta int) error

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, orgID string, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, orgID string) ([]domain.Customer, error)
	CreateCreditEntry(ctx context.Context, entry domain.CreditEntry) (*domain.CreditEntry, error)
	ListCreditEntries(ctx context.Context, orgID string, customerID string, limit int) ([]domain.CreditEntry, error)
	GetCreditBalance(ctx context.Context, orgID string, customerID string) (decimal.Decimal, error)

	GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error)
	UpdateSubscription(ctx context.Context, orgID string, planCode string, status string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, orgID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context, orgID string) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
