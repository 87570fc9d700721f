package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alameenpos/internal/cache"
	"alameenpos/internal/domain"
	"alameenpos/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// requireRole fetches the actor from ctx and checks it against the allowed
// roles. An empty role list means any authenticated actor passes.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("authentication required")
	}
	if len(roles) == 0 {
		return actor, nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%s role required", strings.Join(roles, " or "))
}

type Service struct {
	repo             store.Repository
	reportCache      cache.ReportCache
	reportTTL        time.Duration
	defaultStoreName string
}

func New(repo store.Repository, reportCache cache.ReportCache, reportTTL time.Duration, defaultStoreName string) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 60 * time.Second
	}
	if defaultStoreName == "" {
		defaultStoreName = "Main"
	}

	return &Service{
		repo:             repo,
		reportCache:      reportCache,
		reportTTL:        reportTTL,
		defaultStoreName: defaultStoreName,
	}
}

// resolveStoreID falls back to the configured default store when the request
// does not name one.
func (s *Service) resolveStoreID(ctx context.Context, storeID string) (string, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID != "" {
		return storeID, nil
	}
	st, err := s.repo.GetStoreByName(ctx, s.defaultStoreName)
	if err != nil {
		return "", fmt.Errorf("default store %q: %w", s.defaultStoreName, err)
	}
	return st.ID, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Product{}, nil
	}
	if limit < 1 {
		limit = 10
	}
	return s.repo.SearchProducts(ctx, query, limit)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Cost.IsNegative() || req.RetailPrice.IsNegative() || req.WholesalePrice.IsNegative() {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Quantity < 0 || req.UnitsPerPacket < 0 || req.PacketsPerCarton < 0 || req.MinStockLevel < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	storeID, err := s.resolveStoreID(ctx, req.StoreID)
	if err != nil {
		return domain.Product{}, err
	}

	allowWholesale := false
	if req.AllowWholesale != nil {
		allowWholesale = *req.AllowWholesale
	}

	product := domain.Product{
		Name:             req.Name,
		Brand:            strings.TrimSpace(req.Brand),
		Barcode:          strings.TrimSpace(req.Barcode),
		Cost:             req.Cost,
		RetailPrice:      req.RetailPrice,
		WholesalePrice:   req.WholesalePrice,
		Quantity:         req.Quantity,
		UnitsPerPacket:   req.UnitsPerPacket,
		PacketsPerCarton: req.PacketsPerCarton,
		AllowWholesale:   allowWholesale,
		MinStockLevel:    req.MinStockLevel,
		StoreID:          storeID,
		CategoryIDs:      req.CategoryIDs,
		Description:      strings.TrimSpace(req.Description),
		Status:           true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
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
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Cost != nil {
		if req.Cost.IsNegative() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Cost = *req.Cost
	}
	if req.RetailPrice != nil {
		if req.RetailPrice.IsNegative() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.RetailPrice = *req.RetailPrice
	}
	if req.WholesalePrice != nil {
		if req.WholesalePrice.IsNegative() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.WholesalePrice = *req.WholesalePrice
	}
	if req.UnitsPerPacket != nil {
		if *req.UnitsPerPacket < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.UnitsPerPacket = *req.UnitsPerPacket
	}
	if req.PacketsPerCarton != nil {
		if *req.PacketsPerCarton < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PacketsPerCarton = *req.PacketsPerCarton
	}
	if req.AllowWholesale != nil {
		updated.AllowWholesale = *req.AllowWholesale
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.MinStockLevel = *req.MinStockLevel
	}
	if req.CategoryIDs != nil {
		updated.CategoryIDs = req.CategoryIDs
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

// PriceQuote returns the per-sale-unit price of a product for a customer
// type, using the product's conversion factors.
func (s *Service) PriceQuote(ctx context.Context, productID string, customerType domain.CustomerType, unit domain.SaleUnit) (domain.PriceQuote, error) {
	if customerType == "" {
		customerType = domain.CustomerRetail
	}
	if customerType != domain.CustomerRetail && customerType != domain.CustomerWholesale {
		return domain.PriceQuote{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	price, err := domain.UnitPrice(*product, customerType, unit)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if unit == "" {
		unit = domain.UnitPcs
	}

	return domain.PriceQuote{
		ProductID:    product.ID,
		CustomerType: customerType,
		Unit:         unit,
		Price:        price,
	}, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return domain.Category{}, err
	}

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCategory(ctx, category)
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return domain.Category{}, err
	}

	category.Name = strings.TrimSpace(category.Name)
	if category.ID == "" || category.Name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateCategory(ctx, category)
	if err != nil {
		return domain.Category{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return err
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) CreateStore(ctx context.Context, st domain.Store) (domain.Store, error) {
	if _, err := requireRole(ctx, "admin"); err != nil {
		return domain.Store{}, err
	}

	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return domain.Store{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateStore(ctx, st)
	if err != nil {
		return domain.Store{}, err
	}
	return *created, nil
}

func (s *Service) UpdateStore(ctx context.Context, st domain.Store) (domain.Store, error) {
	if _, err := requireRole(ctx, "admin"); err != nil {
		return domain.Store{}, err
	}

	st.Name = strings.TrimSpace(st.Name)
	if st.ID == "" || st.Name == "" {
		return domain.Store{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateStore(ctx, st)
	if err != nil {
		return domain.Store{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteStore(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, "admin"); err != nil {
		return err
	}
	return s.repo.DeleteStore(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Customer{}, nil
	}
	if limit < 1 {
		limit = 10
	}
	return s.repo.SearchCustomers(ctx, query, limit)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	if req.Type == "" {
		req.Type = domain.CustomerRetail
	}
	if req.Type != domain.CustomerRetail && req.Type != domain.CustomerWholesale {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    req.Name,
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
		Type:    req.Type,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Type != nil {
		if *req.Type != domain.CustomerRetail && *req.Type != domain.CustomerWholesale {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Type = *req.Type
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return err
	}
	return s.repo.DeleteCustomer(ctx, id)
}
