package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleUnit is the unit a cashier keys a line in. Stock arithmetic always
// happens in base units (pcs); packet and carton are multiplied out through
// the product's conversion factors before anything touches stock.
type SaleUnit string

const (
	UnitPcs    SaleUnit = "pcs"
	UnitPacket SaleUnit = "packet"
	UnitCarton SaleUnit = "carton"
)

type CustomerType string

const (
	CustomerRetail    CustomerType = "retail"
	CustomerWholesale CustomerType = "wholesale"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentPOS      PaymentMethod = "pos"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentPOS || m == PaymentTransfer
}

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	MovementIn  = "in"
	MovementOut = "out"
)

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Brand            string          `json:"brand,omitempty"`
	Barcode          string          `json:"barcode,omitempty"`
	Cost             decimal.Decimal `json:"cost"`
	RetailPrice      decimal.Decimal `json:"retail_price"`
	WholesalePrice   decimal.Decimal `json:"wholesale_price"`
	Quantity         int             `json:"quantity"`
	UnitsPerPacket   int             `json:"units_per_packet,omitempty"`
	PacketsPerCarton int             `json:"packets_per_carton,omitempty"`
	AllowWholesale   bool            `json:"allow_wholesale"`
	MinStockLevel    int             `json:"min_stock_level"`
	StoreID          string          `json:"store_id"`
	CategoryIDs      []string        `json:"category_ids,omitempty"`
	Description      string          `json:"description,omitempty"`
	Status           bool            `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name             string          `json:"name"`
	Brand            string          `json:"brand"`
	Barcode          string          `json:"barcode"`
	Cost             decimal.Decimal `json:"cost"`
	RetailPrice      decimal.Decimal `json:"retail_price"`
	WholesalePrice   decimal.Decimal `json:"wholesale_price"`
	Quantity         int             `json:"quantity"`
	UnitsPerPacket   int             `json:"units_per_packet"`
	PacketsPerCarton int             `json:"packets_per_carton"`
	AllowWholesale   *bool           `json:"allow_wholesale,omitempty"`
	MinStockLevel    int             `json:"min_stock_level"`
	StoreID          string          `json:"store_id"`
	CategoryIDs      []string        `json:"category_ids"`
	Description      string          `json:"description"`
}

type ProductUpdateRequest struct {
	Name             *string          `json:"name,omitempty"`
	Brand            *string          `json:"brand,omitempty"`
	Barcode          *string          `json:"barcode,omitempty"`
	Cost             *decimal.Decimal `json:"cost,omitempty"`
	RetailPrice      *decimal.Decimal `json:"retail_price,omitempty"`
	WholesalePrice   *decimal.Decimal `json:"wholesale_price,omitempty"`
	UnitsPerPacket   *int             `json:"units_per_packet,omitempty"`
	PacketsPerCarton *int             `json:"packets_per_carton,omitempty"`
	AllowWholesale   *bool            `json:"allow_wholesale,omitempty"`
	MinStockLevel    *int             `json:"min_stock_level,omitempty"`
	CategoryIDs      []string         `json:"category_ids,omitempty"`
	Description      *string          `json:"description,omitempty"`
	Status           *bool            `json:"status,omitempty"`
}

type PriceQuote struct {
	ProductID    string          `json:"product_id"`
	CustomerType CustomerType    `json:"customer_type"`
	Unit         SaleUnit        `json:"unit"`
	Price        decimal.Decimal `json:"price"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Customer struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Address   string       `json:"address,omitempty"`
	Type      CustomerType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Phone   string       `json:"phone"`
	Address string       `json:"address"`
	Type    CustomerType `json:"type"`
}

type CustomerUpdateRequest struct {
	Name    *string       `json:"name,omitempty"`
	Email   *string       `json:"email,omitempty"`
	Phone   *string       `json:"phone,omitempty"`
	Address *string       `json:"address,omitempty"`
	Type    *CustomerType `json:"type,omitempty"`
}

// SaleLineRequest is one proposed line of a checkout. Quantity is in the
// given unit; the engine converts it to base units before validation.
// UnitPrice overrides the catalog price per base unit; nil means use the
// catalog price, and an explicit zero is a free line.
type SaleLineRequest struct {
	ProductID string           `json:"product_id"`
	Unit      SaleUnit         `json:"unit,omitempty"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"price,omitempty"`
}

// SaleCreateRequest mirrors what the front end submits at checkout. Customer
// may be an existing customer id, a plain name, or empty for walk-in.
type SaleCreateRequest struct {
	Customer      string            `json:"customer"`
	CustomerType  CustomerType      `json:"customer_type"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	StoreID       string            `json:"store_id"`
	Discount      decimal.Decimal   `json:"discount"`
	Tax           decimal.Decimal   `json:"tax"`
	Note          string            `json:"note"`
	Items         []SaleLineRequest `json:"items"`
}

type SaleUpdateRequest struct {
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Discount      decimal.Decimal   `json:"discount"`
	Tax           decimal.Decimal   `json:"tax"`
	Status        string            `json:"status,omitempty"`
	Note          string            `json:"note"`
	Items         []SaleLineRequest `json:"items"`
}

type SaleItem struct {
	ID        string          `json:"id,omitempty"`
	SaleID    string          `json:"sale_id,omitempty"`
	ProductID string          `json:"product_id"`
	Unit      SaleUnit        `json:"unit"`
	Quantity  int             `json:"quantity"`   // base units
	UnitPrice decimal.Decimal `json:"unit_price"` // per base unit
	Total     decimal.Decimal `json:"total"`
}

type Sale struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    *string         `json:"customer_id,omitempty"`
	CustomerType  CustomerType    `json:"customer_type"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	StoreID       string          `json:"store_id"`
	UserID        string          `json:"user_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []SaleItem      `json:"items"`
}

type StockMovement struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	StoreID     string    `json:"store_id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"type"`
	Quantity    int       `json:"quantity"` // signed, base units
	Reason      string    `json:"reason"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockMovementRequest struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// SalesFilter narrows sale listings and report aggregates. Zero values mean
// no constraint.
type SalesFilter struct {
	From          *time.Time
	To            *time.Time
	StoreID       string
	CustomerID    string
	UserID        string
	PaymentMethod PaymentMethod
	Status        string
	Limit         int
}

type SalesSummary struct {
	TotalSales    int64           `json:"total_sales"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	GrossTotal    decimal.Decimal `json:"gross_total"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	NetTotal      decimal.Decimal `json:"net_total"`
}

type SalesReport struct {
	Summary SalesSummary `json:"summary"`
	Sales   []Sale       `json:"sales"`
}

type DashboardStats struct {
	TotalUsers      int `json:"total_users"`
	TotalProducts   int `json:"total_products"`
	TotalCategories int `json:"total_categories"`
	ProductShortage int `json:"product_shortage"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserInfo struct {
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
	Active    bool
	CreatedAt time.Time
}
