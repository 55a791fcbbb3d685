package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money travels as JSON numbers, matching the dashboard and mobile clients.
	decimal.MarshalJSONWithoutQuotes = true
}

// DateLayout is the wire and storage format of calendar dates such as expiration dates.
const DateLayout = "2006-01-02"

type Product struct {
	ID              int64           `json:"id"`
	TenantID        string          `json:"-"`
	Name            string          `json:"name"`
	Code            string          `json:"code"`
	Brand           string          `json:"brand,omitempty"`
	Description     string          `json:"description,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	BuyPrice        decimal.Decimal `json:"buyPrice"`
	SellPrice       decimal.Decimal `json:"sellPrice"`
	Stock           int             `json:"stock"`
	LowStockLevel   *int            `json:"lowStockLevel,omitempty"`
	ExpirationDate  *string         `json:"expirationDate,omitempty"`
	CategoryID      *int64          `json:"categoryId,omitempty"`
	UnitMeasurement string          `json:"unitMeasurement,omitempty"`
	Deleted         *time.Time      `json:"deleted,omitempty"`
}

type ProductInput struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Code            string          `json:"code" validate:"required,max=100"`
	Brand           string          `json:"brand"`
	Description     string          `json:"description"`
	ImageURL        string          `json:"imageUrl" validate:"omitempty,url"`
	BuyPrice        decimal.Decimal `json:"buyPrice"`
	SellPrice       decimal.Decimal `json:"sellPrice"`
	Stock           int             `json:"stock" validate:"gte=0"`
	LowStockLevel   *int            `json:"lowStockLevel" validate:"omitempty,gte=0"`
	ExpirationDate  *string         `json:"expirationDate"`
	CategoryID      *int64          `json:"categoryId"`
	UnitMeasurement string          `json:"unitMeasurement"`
}

type ProductPatch struct {
	Name            *string          `json:"name,omitempty"`
	Code            *string          `json:"code,omitempty"`
	Brand           *string          `json:"brand,omitempty"`
	Description     *string          `json:"description,omitempty"`
	ImageURL        *string          `json:"imageUrl,omitempty"`
	BuyPrice        *decimal.Decimal `json:"buyPrice,omitempty"`
	SellPrice       *decimal.Decimal `json:"sellPrice,omitempty"`
	LowStockLevel   *int             `json:"lowStockLevel,omitempty"`
	ExpirationDate  *string          `json:"expirationDate,omitempty"`
	CategoryID      *int64           `json:"categoryId,omitempty"`
	UnitMeasurement *string          `json:"unitMeasurement,omitempty"`
}

type ProductSummary struct {
	Total    int `json:"total"`
	InStock  int `json:"inStock"`
	LowStock int `json:"lowStock"`
	Expired  int `json:"expired"`
}

type Category struct {
	ID          int64      `json:"id"`
	TenantID    string     `json:"-"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ParentID    *int64     `json:"parentId,omitempty"`
	Deleted     *time.Time `json:"deleted,omitempty"`
}

type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parentId" validate:"omitempty,gt=0"`
}

type CategoryPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ParentID    *int64  `json:"parentId,omitempty"`
}

type PaymentMethod struct {
	ID       int64      `json:"id"`
	TenantID string     `json:"-"`
	Name     string     `json:"name"`
	Deleted  *time.Time `json:"deleted,omitempty"`
}

type PaymentMethodInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

type UnitMeasurement struct {
	ID          int64  `json:"id"`
	TenantID    string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UnitMeasurementInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type Transaction struct {
	ID                int64            `json:"id"`
	TenantID          string           `json:"-"`
	DateOfTransaction time.Time        `json:"dateOfTransaction"`
	PaymentMethodID   int64            `json:"paymentMethodId"`
	TotalPrice        decimal.Decimal  `json:"totalPrice"`
	CashReceived      *decimal.Decimal `json:"cashReceived,omitempty"`
	ReferenceNumber   string           `json:"referenceNumber,omitempty"`
	Status            string           `json:"status"`
	EmailTo           string           `json:"emailTo,omitempty"`
}

type Order struct {
	ID               int64           `json:"id"`
	TenantID         string          `json:"-"`
	TransactionID    int64           `json:"transactionId"`
	ProductID        int64           `json:"productId"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	RefundedQuantity int             `json:"refundedQuantity"`
	RefundStatus     string          `json:"refundStatus"`
}

// Sale is a validated checkout handed to the repository as one atomic unit.
type Sale struct {
	TenantID          string
	PaymentMethodID   int64
	DateOfTransaction time.Time
	CashReceived      *decimal.Decimal
	ReferenceNumber   string
	EmailTo           string
	Items             []SaleItem
}

type SaleItem struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0"`
	// Price is the client's view of the unit price; the stored price comes from the product row.
	Price *decimal.Decimal `json:"price,omitempty"`
}

type SaleRequest struct {
	Items             []SaleItem       `json:"items" validate:"required,min=1,dive"`
	PaymentMethodID   int64            `json:"payment_method_id" validate:"gt=0"`
	TotalPrice        *decimal.Decimal `json:"total_price,omitempty"`
	CashReceived      *decimal.Decimal `json:"cash_received,omitempty"`
	ReferenceNumber   string           `json:"reference_number,omitempty"`
	EmailTo           string           `json:"email_to,omitempty" validate:"omitempty,email"`
	DateOfTransaction *time.Time       `json:"date_of_transaction,omitempty"`
}

type SaleResponse struct {
	Success     bool        `json:"success"`
	Transaction Transaction `json:"transaction"`
	Orders      []Order     `json:"orders"`
}

type TransactionPatch struct {
	EmailTo         *string `json:"emailTo,omitempty"`
	ReferenceNumber *string `json:"referenceNumber,omitempty"`
}

type Refund struct {
	ID            int64           `json:"id"`
	TenantID      string          `json:"-"`
	TransactionID int64           `json:"transactionId"`
	DateOfRefund  time.Time       `json:"dateOfRefund"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Reason        string          `json:"reason,omitempty"`
	Type          string          `json:"type"`
	Items         []RefundItem    `json:"items,omitempty"`
}

type RefundItem struct {
	ID          int64           `json:"id"`
	TenantID    string          `json:"-"`
	RefundID    int64           `json:"refundId"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

type RefundEntry struct {
	OrderID          int64            `json:"orderId" validate:"gt=0"`
	ProductID        int64            `json:"productId"`
	QuantityToRefund int              `json:"quantityToRefund" validate:"gte=0"`
	UnitPrice        *decimal.Decimal `json:"unitPrice,omitempty"`
}

type RefundRequest struct {
	TransactionID int64            `json:"transactionId" validate:"gt=0"`
	Type          string           `json:"type" validate:"required,oneof=full partial"`
	Reason        string           `json:"reason" validate:"max=500"`
	TotalAmount   *decimal.Decimal `json:"totalAmount,omitempty"`
	Items         []RefundEntry    `json:"items" validate:"dive"`
}

type RefundResponse struct {
	Success  bool  `json:"success"`
	RefundID int64 `json:"refundId"`
}

// RefundCommand is a refund already normalized by the service: zero entries dropped and
// the tenant resolved. The repository applies it atomically.
type RefundCommand struct {
	TenantID      string
	TransactionID int64
	Type          string
	Reason        string
	At            time.Time
	Entries       []RefundEntry
}

type RefundableLine struct {
	OrderID           int64           `json:"orderId"`
	ProductID         int64           `json:"productId"`
	ProductName       string          `json:"productName"`
	OriginalQuantity  int             `json:"originalQuantity"`
	RefundedQuantity  int             `json:"refundedQuantity"`
	AvailableQuantity int             `json:"availableQuantity"`
	QuantityToRefund  int             `json:"quantityToRefund"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	TotalRefund       decimal.Decimal `json:"totalRefund"`
	RefundStatus      string          `json:"refundStatus"`
}

type RefundEditor struct {
	Transaction Transaction      `json:"transaction"`
	Items       []RefundableLine `json:"items"`
}

type RestockHistory struct {
	ID                     int64     `json:"id"`
	TenantID               string    `json:"-"`
	ProductID              int64     `json:"productId"`
	ProductName            string    `json:"productName,omitempty"`
	ProductCode            string    `json:"productCode,omitempty"`
	Quantity               int       `json:"quantity"`
	PreviousStock          int       `json:"previousStock"`
	NewStock               int       `json:"newStock"`
	PreviousExpirationDate *string   `json:"previousExpirationDate,omitempty"`
	NewExpirationDate      *string   `json:"newExpirationDate,omitempty"`
	DateOfRestock          time.Time `json:"dateOfRestock"`
	Notes                  string    `json:"notes,omitempty"`
}

type RestockRequest struct {
	Quantity       int     `json:"quantity" validate:"ne=0"`
	ExpirationDate *string `json:"expirationDate,omitempty"`
	Notes          string  `json:"notes" validate:"max=1000"`
}

// Restock is the repository-level restock command.
type Restock struct {
	TenantID       string
	ProductID      int64
	Quantity       int
	ExpirationDate *string
	Notes          string
	At             time.Time
}

// OrderLine is an order joined with the product's current catalog data.
type OrderLine struct {
	Order
	ProductName      string          `json:"productName"`
	ProductSellPrice decimal.Decimal `json:"productSellPrice"`
	ProductBuyPrice  decimal.Decimal `json:"productBuyPrice"`
	ProductKnown     bool            `json:"-"`
}

// RefundLine is a refund item joined with its refund header and product name.
type RefundLine struct {
	RefundItem
	TransactionID int64  `json:"-"`
	Reason        string `json:"reason,omitempty"`
	ProductKnown  bool   `json:"-"`
}

// ReportRows are the normalized rows the reporting projection is built from.
type ReportRows struct {
	Transactions   []Transaction
	PaymentMethods map[int64]string
	Orders         []OrderLine
	Refunds        []Refund
	RefundLines    []RefundLine
}

type ReportItem struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"productId"`
	ProductName      string          `json:"productName"`
	ProductSellPrice decimal.Decimal `json:"productSellPrice"`
	ProductBuyPrice  decimal.Decimal `json:"productBuyPrice"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	Quantity         int             `json:"quantity"`
	RefundedQuantity int             `json:"refundedQuantity"`
	RefundStatus     string          `json:"refundStatus"`
}

type RefundedItem struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason,omitempty"`
}

// TransactionReport is the read-side projection of one transaction.
type TransactionReport struct {
	Transaction
	PaymentMethodName string          `json:"paymentMethodName"`
	Items             []ReportItem    `json:"items"`
	RefundedItems     []RefundedItem  `json:"refundedItems"`
	TotalRefund       decimal.Decimal `json:"totalRefund"`
	RefundReasons     string          `json:"refundReasons,omitempty"`
	TotalCost         decimal.Decimal `json:"totalCost"`
}

type UserAccount struct {
	Username  string
	Password  string
	TenantID  string
	Active    bool
	CreatedAt time.Time
}

type Actor struct {
	Username string
	TenantID string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Username  string    `json:"username"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	TxStatusActive            = "active"
	TxStatusRefunded          = "refunded"
	TxStatusPartiallyRefunded = "partially_refunded"
)

const (
	RefundStatusNone    = "none"
	RefundStatusPartial = "partial"
	RefundStatusFull    = "full"
)

const (
	RefundTypeFull    = "full"
	RefundTypePartial = "partial"
)
