package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"alameenpos/internal/domain"
	"alameenpos/internal/store"
)

// validatedLines is the output of the pure sale validator: snapshot-priced
// items with base-unit quantities, plus the totals the commit needs.
type validatedLines struct {
	items      []domain.SaleItem
	subtotal   decimal.Decimal
	buyingCost decimal.Decimal
}

// validateSaleLines checks a proposed line set against the product snapshot
// and the sale-level discount and tax. It has no side effects; stock is
// re-checked by the repository at commit time.
func validateSaleLines(products map[string]domain.Product, lines []domain.SaleLineRequest, customerType domain.CustomerType, discount, tax decimal.Decimal) (validatedLines, error) {
	if len(lines) == 0 {
		return validatedLines{}, store.ErrEmptyTransaction
	}
	if discount.IsNegative() || tax.IsNegative() {
		return validatedLines{}, store.ErrInvalidInput
	}

	subtotal := decimal.Zero
	buyingCost := decimal.Zero
	demand := make(map[string]int, len(lines))
	items := make([]domain.SaleItem, 0, len(lines))

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return validatedLines{}, fmt.Errorf("%w (ID: %s)", store.ErrProductNotFound, line.ProductID)
		}

		if line.Quantity < 1 {
			return validatedLines{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrInvalidInput)
		}
		baseQty, err := domain.BaseUnits(product, line.Unit, line.Quantity)
		if err != nil {
			return validatedLines{}, err
		}
		demand[product.ID] += baseQty
		if demand[product.ID] > product.Quantity {
			return validatedLines{}, fmt.Errorf("%w for %s: Available %d, Requested %d", store.ErrInsufficientStock, product.Name, product.Quantity, demand[product.ID])
		}

		// Prices are snapshotted per base unit so a stored line always
		// satisfies total = quantity * unitPrice.
		var unitPrice decimal.Decimal
		if line.UnitPrice != nil {
			unitPrice = *line.UnitPrice
		} else {
			unitPrice, err = domain.UnitPrice(product, customerType, domain.UnitPcs)
			if err != nil {
				return validatedLines{}, err
			}
		}
		if unitPrice.IsNegative() {
			return validatedLines{}, store.ErrInvalidInput
		}

		unit := line.Unit
		if unit == "" {
			unit = domain.UnitPcs
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(baseQty)))
		items = append(items, domain.SaleItem{
			ProductID: product.ID,
			Unit:      unit,
			Quantity:  baseQty,
			UnitPrice: unitPrice,
			Total:     lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
		buyingCost = buyingCost.Add(product.Cost.Mul(decimal.NewFromInt(int64(baseQty))))
	}

	// For a single-line sale the line total is the subtotal, so the line
	// check runs first to keep the product-specific error reachable.
	if len(items) == 1 && discount.GreaterThan(items[0].Total) {
		return validatedLines{}, fmt.Errorf("%w (%s)", store.ErrDiscountExceedsLine, products[lines[0].ProductID].Name)
	}
	if discount.GreaterThan(subtotal) {
		return validatedLines{}, store.ErrDiscountExceedsSubtotal
	}
	if len(items) > 1 {
		final := subtotal.Sub(discount).Add(tax)
		if final.LessThan(buyingCost) {
			return validatedLines{}, fmt.Errorf("%w: final %s is below cost %s", store.ErrBelowCostPrice, final.StringFixed(2), buyingCost.StringFixed(2))
		}
	}

	return validatedLines{items: items, subtotal: subtotal, buyingCost: buyingCost}, nil
}

// resolveCustomer turns the free-form customer field of a checkout into a
// customer id. Empty means walk-in, an id-shaped value must exist, and
// anything else creates a customer on the fly with a placeholder email.
func (s *Service) resolveCustomer(ctx context.Context, input string, customerType domain.CustomerType) (*string, domain.CustomerType, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, customerType, nil
	}

	if _, err := uuid.Parse(input); err == nil {
		customer, err := s.repo.GetCustomerByID(ctx, input)
		if err != nil {
			return nil, customerType, fmt.Errorf("customer %s: %w", input, err)
		}
		if customer.Type != "" {
			customerType = customer.Type
		}
		return &customer.ID, customerType, nil
	}

	slug := strings.ToLower(strings.Join(strings.Fields(input), "-"))
	customer, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  input,
		Email: slug + "@alameen-pharmacy.app",
		Type:  customerType,
	})
	if err != nil {
		return nil, customerType, err
	}
	return &customer.ID, customerType, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrEmptyTransaction
	}
	if req.CustomerType == "" {
		req.CustomerType = domain.CustomerRetail
	}
	if req.CustomerType != domain.CustomerRetail && req.CustomerType != domain.CustomerWholesale {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if !req.PaymentMethod.Valid() {
		return domain.Sale{}, store.ErrInvalidInput
	}

	storeID, err := s.resolveStoreID(ctx, req.StoreID)
	if err != nil {
		return domain.Sale{}, err
	}

	customerID, customerType, err := s.resolveCustomer(ctx, req.Customer, req.CustomerType)
	if err != nil {
		return domain.Sale{}, err
	}

	products, err := s.loadLineProducts(ctx, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}

	validated, err := validateSaleLines(products, req.Items, customerType, req.Discount, req.Tax)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		CustomerID:    customerID,
		CustomerType:  customerType,
		PaymentMethod: req.PaymentMethod,
		StoreID:       storeID,
		UserID:        actor.Username,
		Subtotal:      validated.subtotal,
		Discount:      req.Discount,
		Tax:           req.Tax,
		Total:         validated.subtotal.Sub(req.Discount).Add(req.Tax),
		Status:        domain.SaleStatusCompleted,
		Note:          strings.TrimSpace(req.Note),
		Items:         validated.items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] sale committed invoice=%s total=%s lines=%d user=%s", created.InvoiceNumber, created.Total.StringFixed(2), len(created.Items), actor.Username)
	return *created, nil
}

func (s *Service) loadLineProducts(ctx context.Context, lines []domain.SaleLineRequest) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return s.repo.GetProductsByIDs(ctx, ids)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// UpdateSale re-validates the new line set against stock as it would be
// after the old lines are restored, then hands the reconciliation to the
// repository.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if _, err := requireRole(ctx, "admin", "pharmacist"); err != nil {
		return domain.Sale{}, err
	}

	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrEmptyTransaction
	}
	if !req.PaymentMethod.Valid() {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.Status != "" && req.Status != domain.SaleStatusPending && req.Status != domain.SaleStatusCompleted && req.Status != domain.SaleStatusCancelled {
		return domain.Sale{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if existing.Status == domain.SaleStatusCancelled {
		return domain.Sale{}, store.ErrSaleNotEditable
	}

	products, err := s.loadLineProducts(ctx, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}

	// Validate against the stock pool as it stands once the old lines are
	// put back, so shrinking or swapping quantities within the sale works.
	for _, item := range existing.Items {
		if product, ok := products[item.ProductID]; ok {
			product.Quantity += item.Quantity
			products[item.ProductID] = product
		}
	}

	validated, err := validateSaleLines(products, req.Items, existing.CustomerType, req.Discount, req.Tax)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:            id,
		PaymentMethod: req.PaymentMethod,
		Subtotal:      validated.subtotal,
		Discount:      req.Discount,
		Tax:           req.Tax,
		Total:         validated.subtotal.Sub(req.Discount).Add(req.Tax),
		Status:        req.Status,
		Note:          strings.TrimSpace(req.Note),
		Items:         validated.items,
	}

	updated, err := s.repo.UpdateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, "admin", "pharmacist")
	if err != nil {
		return err
	}

	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	log.Printf("[service] sale %s reversed by %s", id, actor.Username)
	return nil
}

// RecordStockMovement applies a manual in/out adjustment. The sign of the
// stored quantity follows the movement type regardless of the sign submitted.
func (s *Service) RecordStockMovement(ctx context.Context, req domain.StockMovementRequest) (domain.StockMovement, error) {
	actor, err := requireRole(ctx, "admin", "pharmacist")
	if err != nil {
		return domain.StockMovement{}, err
	}

	if req.Type != domain.MovementIn && req.Type != domain.MovementOut {
		return domain.StockMovement{}, store.ErrInvalidInput
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual_adjustment"
	}

	created, err := s.repo.AdjustStock(ctx, domain.StockMovement{
		ProductID: req.ProductID,
		UserID:    actor.Username,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Reason:    reason,
	})
	if err != nil {
		return domain.StockMovement{}, err
	}
	return *created, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListStockMovements(ctx, productID, limit)
}
