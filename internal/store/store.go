package store

import (
	"context"
	"errors"

	"alameenpos/internal/domain"
)

// Sentinel errors shared by every repository implementation. The transaction
// validator wraps these with product names and amounts so callers see a
// specific reason; the HTTP layer maps them to status codes with errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrEmptyTransaction        = errors.New("no items provided for this transaction")
	ErrProductNotFound         = errors.New("product not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrDiscountExceedsSubtotal = errors.New("discount cannot exceed subtotal")
	ErrDiscountExceedsLine     = errors.New("discount cannot exceed product total")
	ErrBelowCostPrice          = errors.New("final selling price is below total buying cost")
	ErrProductInUse            = errors.New("product is referenced by sale records")
	ErrSaleNotEditable         = errors.New("sale is not editable")
)

type Repository interface {
	// Catalog
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	GetStoreByID(ctx context.Context, id string) (*domain.Store, error)
	GetStoreByName(ctx context.Context, name string) (*domain.Store, error)
	UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	DeleteStore(ctx context.Context, id string) error

	// Parties
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// Transaction engine. CreateSale re-checks stock with a conditional
	// decrement inside the same atomic unit that writes the header, lines,
	// and stock movements; UpdateSale restores old lines before applying the
	// new set; DeleteSale restores stock then removes header and lines.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error

	AdjustStock(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error)
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	// Reporting
	GetSalesSummary(ctx context.Context, filter domain.SalesFilter) (domain.SalesSummary, error)
	GetDashboardStats(ctx context.Context) (domain.DashboardStats, error)

	// Users
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
