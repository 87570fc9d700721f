package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"alameenpos/internal/domain"
	"alameenpos/internal/store"
)

// Store is the in-memory repository used in dev mode and by tests. It mirrors
// the postgres implementation's semantics: every sale mutation is
// all-or-nothing, and stock never goes negative.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	categoriesByID  map[string]domain.Category
	storesByID      map[string]domain.Store
	customersByID   map[string]domain.Customer
	salesByID       map[string]*domain.Sale
	movements       []domain.StockMovement
	usersByUsername map[string]domain.UserAccount
	saleCount       int
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables; hardcoded dev defaults apply when unset. Production
// deployments use PostgreSQL (DATABASE_URL) and never touch these.
func seedUsers() map[string]domain.UserAccount {
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

func NewSeeded() *Store {
	now := time.Now().UTC()
	mainStore := domain.Store{ID: uuid.NewString(), Name: "Main", Address: "Head office", CreatedAt: now}

	categories := []domain.Category{
		{ID: uuid.NewString(), Name: "analgesic", CreatedAt: now},
		{ID: uuid.NewString(), Name: "antibiotic", CreatedAt: now},
		{ID: uuid.NewString(), Name: "supplement", CreatedAt: now},
	}

	products := []domain.Product{
		{
			ID: uuid.NewString(), Name: "Paracetamol 500mg", Brand: "Generic",
			Cost: decimal.NewFromInt(5), RetailPrice: decimal.NewFromInt(10), WholesalePrice: decimal.NewFromInt(8),
			Quantity: 120, UnitsPerPacket: 10, PacketsPerCarton: 5,
			AllowWholesale: true, MinStockLevel: 10, StoreID: mainStore.ID,
			CategoryIDs: []string{categories[0].ID}, Status: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: uuid.NewString(), Name: "Amoxicillin 250mg", Brand: "Generic",
			Cost: decimal.NewFromInt(12), RetailPrice: decimal.NewFromInt(20), WholesalePrice: decimal.NewFromInt(16),
			Quantity: 80, UnitsPerPacket: 10, PacketsPerCarton: 10,
			AllowWholesale: true, MinStockLevel: 10, StoreID: mainStore.ID,
			CategoryIDs: []string{categories[1].ID}, Status: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: uuid.NewString(), Name: "Vitamin C 1000mg", Brand: "SunVit",
			Cost: decimal.NewFromInt(30), RetailPrice: decimal.NewFromInt(45), WholesalePrice: decimal.NewFromInt(38),
			Quantity: 60, AllowWholesale: false, MinStockLevel: 5, StoreID: mainStore.ID,
			CategoryIDs: []string{categories[2].ID}, Status: true, CreatedAt: now, UpdatedAt: now,
		},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	categoryMap := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		categoryMap[c.ID] = c
	}

	return &Store{
		products:        productMap,
		categoriesByID:  categoryMap,
		storesByID:      map[string]domain.Store{mainStore.ID: mainStore},
		customersByID:   make(map[string]domain.Customer),
		salesByID:       make(map[string]*domain.Sale),
		movements:       make([]domain.StockMovement, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Product, 0, limit)
	for _, p := range s.products {
		if query == "" || strings.Contains(strings.ToLower(p.Name), query) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Cost.IsNegative() || product.RetailPrice.IsNegative() || product.WholesalePrice.IsNegative() || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Status = true

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Cost.IsNegative() || product.RetailPrice.IsNegative() || product.WholesalePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Stock is owned by the transaction engine; plain updates never touch it.
	product.Quantity = existing.Quantity
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrProductInUse
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categoriesByID[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	category.CreatedAt = existing.CreatedAt
	s.categoriesByID[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categoriesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.categoriesByID, id)
	return nil
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if strings.TrimSpace(st.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.storesByID[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.storesByID))
	for _, st := range s.storesByID {
		stores = append(stores, st)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Name < stores[j].Name })
	return stores, nil
}

func (s *Store) GetStoreByID(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.storesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := st
	return &found, nil
}

func (s *Store) GetStoreByName(_ context.Context, name string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.storesByID {
		if strings.EqualFold(st.Name, name) {
			found := st
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if strings.TrimSpace(st.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.storesByID[st.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	st.CreatedAt = existing.CreatedAt
	s.storesByID[st.ID] = st
	updated := st
	return &updated, nil
}

func (s *Store) DeleteStore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.storesByID, id)
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.Type == "" {
		customer.Type = domain.CustomerRetail
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].CreatedAt.After(customers[j].CreatedAt) })
	return customers, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 10
	}
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Customer, 0, limit)
	for _, c := range s.customersByID {
		if query == "" {
			continue
		}
		haystack := strings.ToLower(c.Name + " " + c.Email + " " + c.Phone + " " + string(c.Type))
		if strings.Contains(haystack, query) {
			matches = append(matches, c)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customersByID[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customersByID, id)
	return nil
}

// CreateSale commits a validated sale: header, lines, stock decrements, and
// movement rows as one unit. Stock is re-checked here so a concurrent sale
// between validation and commit cannot oversell.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStockLocked(sale.Items, nil); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	s.saleCount++
	sale.InvoiceNumber = fmt.Sprintf("INVOICE-%07d", s.saleCount)
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	s.applyLinesLocked(&sale, now)

	committed := sale
	s.salesByID[sale.ID] = &committed
	result := committed
	return &result, nil
}

// checkStockLocked verifies every line against current stock, with optional
// per-product credit from lines that are about to be restored (update path).
func (s *Store) checkStockLocked(items []domain.SaleItem, restored map[string]int) error {
	needed := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return store.ErrInvalidInput
		}
		needed[item.ProductID] += item.Quantity
	}
	for productID, qty := range needed {
		product, ok := s.products[productID]
		if !ok {
			return fmt.Errorf("%w (ID: %s)", store.ErrProductNotFound, productID)
		}
		available := product.Quantity + restored[productID]
		if available < qty {
			return fmt.Errorf("%w for %s: Available %d, Requested %d", store.ErrInsufficientStock, product.Name, available, qty)
		}
	}
	return nil
}

// applyLinesLocked decrements stock and records an outbound movement for
// every line of the sale. Callers must have verified stock already.
func (s *Store) applyLinesLocked(sale *domain.Sale, now time.Time) {
	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.SaleID = sale.ID

		product := s.products[item.ProductID]
		product.Quantity -= item.Quantity
		product.UpdatedAt = now
		s.products[item.ProductID] = product

		s.movements = append(s.movements, domain.StockMovement{
			ID:          uuid.NewString(),
			ProductID:   item.ProductID,
			StoreID:     sale.StoreID,
			UserID:      sale.UserID,
			Type:        domain.MovementOut,
			Quantity:    -item.Quantity,
			Reason:      "sale",
			ReferenceID: sale.ID,
			CreatedAt:   now,
		})
	}
}

// restoreLinesLocked puts every line's base-unit quantity back on stock and
// records an inbound movement with the given reason.
func (s *Store) restoreLinesLocked(sale *domain.Sale, reason string, now time.Time) {
	for _, item := range sale.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		product.Quantity += item.Quantity
		product.UpdatedAt = now
		s.products[item.ProductID] = product

		s.movements = append(s.movements, domain.StockMovement{
			ID:          uuid.NewString(),
			ProductID:   item.ProductID,
			StoreID:     sale.StoreID,
			UserID:      sale.UserID,
			Type:        domain.MovementIn,
			Quantity:    item.Quantity,
			Reason:      reason,
			ReferenceID: sale.ID,
			CreatedAt:   now,
		})
	}
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *sale
	found.Items = append([]domain.SaleItem(nil), sale.Items...)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !matchesFilter(*sale, filter) {
			continue
		}
		copied := *sale
		copied.Items = append([]domain.SaleItem(nil), sale.Items...)
		sales = append(sales, copied)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

// UpdateSale reconciles a committed sale against a new validated line set:
// old lines are restored, the new set is checked and applied, and the header
// is rewritten. The whole operation happens under one lock so no partial
// state is ever visible.
func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Status == domain.SaleStatusCancelled {
		return nil, store.ErrSaleNotEditable
	}

	// Credit the stock held by the old lines before checking the new set, so
	// a quantity swap within the same product validates against the full pool.
	restored := make(map[string]int, len(existing.Items))
	for _, item := range existing.Items {
		restored[item.ProductID] += item.Quantity
	}
	if err := s.checkStockLocked(sale.Items, restored); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.restoreLinesLocked(existing, "sale_update", now)

	sale.InvoiceNumber = existing.InvoiceNumber
	sale.CustomerID = existing.CustomerID
	sale.CustomerType = existing.CustomerType
	sale.StoreID = existing.StoreID
	sale.UserID = existing.UserID
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = now
	if sale.Status == "" {
		sale.Status = existing.Status
	}

	s.applyLinesLocked(&sale, now)

	committed := sale
	s.salesByID[sale.ID] = &committed
	result := committed
	return &result, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}

	s.restoreLinesLocked(sale, "sale_reversal", time.Now().UTC())
	delete(s.salesByID, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	qty := movement.Quantity
	if qty < 0 {
		qty = -qty
	}
	if qty == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[movement.ProductID]
	if !ok {
		return nil, fmt.Errorf("%w (ID: %s)", store.ErrProductNotFound, movement.ProductID)
	}

	now := time.Now().UTC()
	switch movement.Type {
	case domain.MovementIn:
		product.Quantity += qty
		movement.Quantity = qty
	case domain.MovementOut:
		if product.Quantity < qty {
			return nil, fmt.Errorf("%w for %s: Available %d, Requested %d", store.ErrInsufficientStock, product.Name, product.Quantity, qty)
		}
		product.Quantity -= qty
		movement.Quantity = -qty
	default:
		return nil, store.ErrInvalidInput
	}
	product.UpdatedAt = now
	s.products[movement.ProductID] = product

	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.StoreID == "" {
		movement.StoreID = product.StoreID
	}
	movement.CreatedAt = now
	s.movements = append(s.movements, movement)

	created := movement
	return &created, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(movements) < limit; i-- {
		if productID != "" && s.movements[i].ProductID != productID {
			continue
		}
		movements = append(movements, s.movements[i])
	}
	return movements, nil
}

func (s *Store) GetSalesSummary(_ context.Context, filter domain.SalesFilter) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		Subtotal:      decimal.Zero,
		GrossTotal:    decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalTax:      decimal.Zero,
		NetTotal:      decimal.Zero,
	}
	for _, sale := range s.salesByID {
		if !matchesFilter(*sale, filter) {
			continue
		}
		summary.TotalSales++
		summary.Subtotal = summary.Subtotal.Add(sale.Subtotal)
		summary.GrossTotal = summary.GrossTotal.Add(sale.Total)
		summary.TotalDiscount = summary.TotalDiscount.Add(sale.Discount)
		summary.TotalTax = summary.TotalTax.Add(sale.Tax)
	}
	summary.NetTotal = summary.GrossTotal.Sub(summary.TotalDiscount).Add(summary.TotalTax)
	return summary, nil
}

func (s *Store) GetDashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		TotalUsers:      len(s.usersByUsername),
		TotalProducts:   len(s.products),
		TotalCategories: len(s.categoriesByID),
	}
	for _, p := range s.products {
		minLevel := p.MinStockLevel
		if minLevel < 1 {
			minLevel = 10
		}
		if p.Quantity <= minLevel {
			stats.ProductShortage++
		}
	}
	return stats, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func matchesFilter(sale domain.Sale, filter domain.SalesFilter) bool {
	if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && sale.CreatedAt.After(*filter.To) {
		return false
	}
	if filter.StoreID != "" && sale.StoreID != filter.StoreID {
		return false
	}
	if filter.CustomerID != "" && (sale.CustomerID == nil || *sale.CustomerID != filter.CustomerID) {
		return false
	}
	if filter.UserID != "" && sale.UserID != filter.UserID {
		return false
	}
	if filter.PaymentMethod != "" && sale.PaymentMethod != filter.PaymentMethod {
		return false
	}
	if filter.Status != "" && sale.Status != filter.Status {
		return false
	}
	return true
}
