package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Organization struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	OwnerEmail         string    `json:"owner_email"`
	PlanCode           string    `json:"plan_code"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
}

type CashRegister struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterCreateRequest struct {
	Name string `json:"name"`
}

type CashShift struct {
	ID           string           `json:"id"`
	OrgID        string           `json:"org_id"`
	RegisterID   string           `json:"register_id"`
	Operator     string           `json:"operator"`
	OpeningFloat decimal.Decimal  `json:"opening_float"`
	Status       string           `json:"status"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	ExpectedCash *decimal.Decimal `json:"expected_cash,omitempty"`
	CountedCash  *decimal.Decimal `json:"counted_cash,omitempty"`
	Difference   *decimal.Decimal `json:"difference,omitempty"`
	Notes        string           `json:"notes,omitempty"`
}

type ShiftOpenRequest struct {
	RegisterID   string          `json:"register_id"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

type ShiftCloseRequest struct {
	ShiftID     string          `json:"shift_id"`
	CountedCash decimal.Decimal `json:"counted_cash"`
	Notes       string          `json:"notes"`
}

type ShiftCloseResponse struct {
	Shift        CashShift       `json:"shift"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	CountedCash  decimal.Decimal `json:"counted_cash"`
	Difference   decimal.Decimal `json:"difference"`
}

type ShiftResponse struct {
	Shift CashShift `json:"shift"`
}

// ShiftTotals aggregates everything that feeds the expected-cash figure
// for one shift. Cancelled sales are excluded before it is built.
type ShiftTotals struct {
	CashSales    decimal.Decimal `json:"cash_sales"`
	MovementsIn  decimal.Decimal `json:"movements_in"`
	MovementsOut decimal.Decimal `json:"movements_out"`
	SaleCount    int64           `json:"sale_count"`
}

type ShiftSummary struct {
	Shift  CashShift   `json:"shift"`
	Totals ShiftTotals `json:"totals"`
}

type CashMovement struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	ShiftID    string          `json:"shift_id"`
	Operator   string          `json:"operator"`
	Direction  string          `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	CategoryID string          `json:"category_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type MovementCreateRequest struct {
	Direction  string          `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	CategoryID string          `json:"category_id,omitempty"`
}

type MovementListResponse struct {
	Movements []CashMovement `json:"movements"`
}

type Product struct {
	ID        string          `json:"id"`
	OrgID     string          `json:"org_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Stock    *int             `json:"stock,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

type SaleLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Sale struct {
	ID            string          `json:"id"`
	OrgID         string          `json:"org_id"`
	ShiftID       string          `json:"shift_id"`
	Operator      string          `json:"operator"`
	PaymentMethod string          `json:"payment_method"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleLine      `json:"items"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleCreateRequest struct {
	PaymentMethod string            `json:"payment_method"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Items         []SaleItemRequest `json:"items"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleCancelRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type Customer struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

type CreditEntry struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	CustomerID string          `json:"customer_id"`
	SaleID     string          `json:"sale_id,omitempty"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CreditPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type CreditStatement struct {
	Customer Customer        `json:"customer"`
	Balance  decimal.Decimal `json:"balance"`
	Entries  []CreditEntry   `json:"entries"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	OrgID       string `json:"org_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	OrgID    string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	OrgID     string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type DailyReportPayment struct {
	PaymentMethod string          `json:"payment_method"`
	Sales         int64           `json:"sales"`
	Total         decimal.Decimal `json:"total"`
}

type DailyReportRegister struct {
	RegisterID string          `json:"register_id"`
	Sales      int64           `json:"sales"`
	Total      decimal.Decimal `json:"total"`
}

type DailyReport struct {
	OrgID      string                `json:"org_id"`
	Date       string                `json:"date"`
	Sales      int64                 `json:"sales"`
	GrossTotal decimal.Decimal       `json:"gross_total"`
	ByPayment  []DailyReportPayment  `json:"by_payment"`
	ByRegister []DailyReportRegister `json:"by_register"`
}

type SubscribeRequest struct {
	PlanCode string `json:"plan_code"`
}

type PaymentIntent struct {
	Reference  string          `json:"reference"`
	PlanCode   string          `json:"plan_code"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	MerchantID string          `json:"merchant_id"`
	Signature  string          `json:"signature"`
	CreatedAt  time.Time       `json:"created_at"`
}

type GatewayConfirmation struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	State     string          `json:"state"`
	Signature string          `json:"signature"`
}

type SubscriptionStatus struct {
	OrgID    string `json:"org_id"`
	PlanCode string `json:"plan_code"`
	Status   string `json:"status"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	MovementIn  = "in"
	MovementOut = "out"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentFiado    = "fiado"
)

const (
	SaleStatusPaid      = "paid"
	SaleStatusCancelled = "cancelled"
)

const (
	CreditCharge  = "charge"
	CreditPayment = "payment"
)

const (
	SubscriptionActive  = "active"
	SubscriptionTrial   = "trial"
	SubscriptionPastDue = "past_due"
)
