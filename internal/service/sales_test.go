package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"alameenpos/internal/cache"
	"alameenpos/internal/domain"
	"alameenpos/internal/store"
	"alameenpos/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopReportCache{}, 5*time.Second, "Main")
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

// findProduct returns the seeded product whose name contains the given
// fragment, or fails the test.
func findProduct(t *testing.T, svc *Service, ctx context.Context, fragment string) domain.Product {
	t.Helper()
	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		if strings.Contains(p.Name, fragment) {
			return p
		}
	}
	t.Fatalf("seeded product %q not found", fragment)
	return domain.Product{}
}

func saleLine(productID string, unit domain.SaleUnit, qty int) domain.SaleLineRequest {
	return domain.SaleLineRequest{ProductID: productID, Unit: unit, Quantity: qty}
}

func TestCreateSaleRequiresActor(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine("some-id", domain.UnitPcs, 1)},
	})
	if err == nil {
		t.Fatalf("expected unauthenticated sale to fail")
	}
}

func TestCreateSaleEmptyCart(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(adminContext(), domain.SaleCreateRequest{PaymentMethod: "cash"})
	if !errors.Is(err, store.ErrEmptyTransaction) {
		t.Fatalf("expected ErrEmptyTransaction, got %v", err)
	}
}

func TestCreateSaleDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 3)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.InvoiceNumber == "" {
		t.Fatalf("expected invoice number on committed sale")
	}
	expected := product.RetailPrice.Mul(decimal.NewFromInt(3))
	if !sale.Subtotal.Equal(expected) {
		t.Fatalf("expected subtotal %s, got %s", expected, sale.Subtotal)
	}
	if !sale.Total.Equal(expected) {
		t.Fatalf("expected total %s, got %s", expected, sale.Total)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity-3 {
		t.Fatalf("expected stock %d, got %d", product.Quantity-3, after.Quantity)
	}
}

func TestCreateSaleOversellRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, product.Quantity+1)},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), product.Name) {
		t.Fatalf("expected error to name the product, got %q", err.Error())
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity {
		t.Fatalf("expected stock untouched at %d, got %d", product.Quantity, after.Quantity)
	}
}

func TestCreateSaleExactStockAllowed(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, product.Quantity)},
	})
	if err != nil {
		t.Fatalf("expected sale of exact remaining stock to pass, got %v", err)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != 0 {
		t.Fatalf("expected zero stock, got %d", after.Quantity)
	}
}

func TestCreateSaleAggregatesDuplicateLines(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	// Two lines of the same product must be checked against the combined demand.
	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items: []domain.SaleLineRequest{
			saleLine(product.ID, domain.UnitPcs, product.Quantity-1),
			saleLine(product.ID, domain.UnitPcs, 2),
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected combined demand to exceed stock, got %v", err)
	}
}

func TestCreateSaleCartonConversion(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	// 10 units per packet times 5 packets per carton: 2 cartons = 100 base units.
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitCarton, 2)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Items[0].Quantity != 100 {
		t.Fatalf("expected 100 base units, got %d", sale.Items[0].Quantity)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity-100 {
		t.Fatalf("expected stock %d, got %d", product.Quantity-100, after.Quantity)
	}
}

func TestCreateSalePacketLineSelfConsistent(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPacket, 2)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	item := sale.Items[0]
	if item.Quantity != 2*product.UnitsPerPacket {
		t.Fatalf("expected %d base units, got %d", 2*product.UnitsPerPacket, item.Quantity)
	}
	if !item.UnitPrice.Equal(product.RetailPrice) {
		t.Fatalf("expected per-base-unit price %s, got %s", product.RetailPrice, item.UnitPrice)
	}
	// A stored line must be reconstructible from its own fields.
	if !item.Total.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
		t.Fatalf("line total %s does not equal quantity %d times unit price %s", item.Total, item.Quantity, item.UnitPrice)
	}
	if !sale.Subtotal.Equal(item.Total) {
		t.Fatalf("expected subtotal %s to match line total %s", sale.Subtotal, item.Total)
	}
}

func TestCreateSaleExplicitZeroPriceLine(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	free := decimal.Zero
	line := saleLine(product.ID, domain.UnitPcs, 2)
	line.UnitPrice = &free

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{line},
	})
	if err != nil {
		t.Fatalf("create sale with free line: %v", err)
	}
	if !sale.Items[0].Total.IsZero() {
		t.Fatalf("expected zero line total for explicit zero price, got %s", sale.Items[0].Total)
	}
	if !sale.Total.IsZero() {
		t.Fatalf("expected zero sale total, got %s", sale.Total)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity-2 {
		t.Fatalf("expected stock still decremented to %d, got %d", product.Quantity-2, after.Quantity)
	}
}

func TestCreateSaleZeroQuantityRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 0)},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero quantity, got %v", err)
	}
}

func TestInvoiceNumberNotReusedAfterDelete(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	first, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err != nil {
		t.Fatalf("create first sale: %v", err)
	}

	if err := svc.DeleteSale(ctx, first.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	second, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err != nil {
		t.Fatalf("create second sale: %v", err)
	}
	if second.InvoiceNumber == first.InvoiceNumber {
		t.Fatalf("invoice number %s reused after delete", first.InvoiceNumber)
	}
}

func TestCreateSaleUnknownUnit(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, "dozen", 1)},
	})
	if !errors.Is(err, domain.ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 7)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity {
		t.Fatalf("expected stock restored to %d, got %d", product.Quantity, after.Quantity)
	}

	movements, err := svc.ListStockMovements(ctx, product.ID, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	var reversal bool
	for _, m := range movements {
		if m.Reason == "sale_reversal" && m.Quantity == 7 {
			reversal = true
		}
	}
	if !reversal {
		t.Fatalf("expected a sale_reversal movement of +7, got %+v", movements)
	}
}

func TestUpdateSaleReconcilesStock(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 10)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	updated, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 4)},
	})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if updated.InvoiceNumber != sale.InvoiceNumber {
		t.Fatalf("expected invoice number preserved, got %s", updated.InvoiceNumber)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity-4 {
		t.Fatalf("expected stock %d after shrink, got %d", product.Quantity-4, after.Quantity)
	}
}

func TestUpdateSaleCanUseFullRestoredPool(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, product.Quantity)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// The whole stock is inside the sale; swapping quantities within it must
	// validate against the pool as restored, not the current zero on hand.
	_, err = svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, product.Quantity)},
	})
	if err != nil {
		t.Fatalf("expected same-quantity update to pass, got %v", err)
	}
}

func TestUpdateCancelledSaleRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 2)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{
		PaymentMethod: "cash",
		Status:        domain.SaleStatusCancelled,
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 2)},
	}); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}

	_, err = svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if !errors.Is(err, store.ErrSaleNotEditable) {
		t.Fatalf("expected ErrSaleNotEditable, got %v", err)
	}
}

func TestUpdateSaleRequiresElevatedRole(t *testing.T) {
	svc := newTestService()
	product := findProduct(t, svc, adminContext(), "Paracetamol")

	sale, err := svc.CreateSale(cashierContext(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	_, err = svc.UpdateSale(cashierContext(), sale.ID, domain.SaleUpdateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for cashier update, got %v", err)
	}
}

func TestDiscountEqualToSubtotalAllowed(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	subtotal := product.RetailPrice.Mul(decimal.NewFromInt(2))
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Discount:      subtotal,
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 2)},
	})
	if err != nil {
		t.Fatalf("expected full discount to pass, got %v", err)
	}
	if !sale.Total.IsZero() {
		t.Fatalf("expected zero total, got %s", sale.Total)
	}
}

func TestSingleLineDiscountExceedsLine(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	discount := product.RetailPrice.Mul(decimal.NewFromInt(2)).Add(decimal.NewFromInt(1))
	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Discount:      discount,
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 2)},
	})
	if !errors.Is(err, store.ErrDiscountExceedsLine) {
		t.Fatalf("expected ErrDiscountExceedsLine, got %v", err)
	}
	if !strings.Contains(err.Error(), product.Name) {
		t.Fatalf("expected error to name the product, got %q", err.Error())
	}
}

func TestMultiLineDiscountExceedsSubtotal(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	first := findProduct(t, svc, ctx, "Paracetamol")
	second := findProduct(t, svc, ctx, "Vitamin")

	subtotal := first.RetailPrice.Add(second.RetailPrice)
	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Discount:      subtotal.Add(decimal.NewFromInt(1)),
		Items: []domain.SaleLineRequest{
			saleLine(first.ID, domain.UnitPcs, 1),
			saleLine(second.ID, domain.UnitPcs, 1),
		},
	})
	if !errors.Is(err, store.ErrDiscountExceedsSubtotal) {
		t.Fatalf("expected ErrDiscountExceedsSubtotal, got %v", err)
	}
}

func TestMultiLineBelowCostRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	var ids []string
	for _, name := range []string{"Loss Leader A", "Loss Leader B"} {
		product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
			Name:        name,
			Cost:        decimal.NewFromInt(8),
			RetailPrice: decimal.NewFromInt(10),
			Quantity:    50,
		})
		if err != nil {
			t.Fatalf("create product: %v", err)
		}
		ids = append(ids, product.ID)
	}

	// Subtotal 20, cost 16. A discount of 5 drops the final below cost.
	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Discount:      decimal.NewFromInt(5),
		Items: []domain.SaleLineRequest{
			saleLine(ids[0], domain.UnitPcs, 1),
			saleLine(ids[1], domain.UnitPcs, 1),
		},
	})
	if !errors.Is(err, store.ErrBelowCostPrice) {
		t.Fatalf("expected ErrBelowCostPrice, got %v", err)
	}
}

func TestWalkInSaleHasNoCustomer(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.CustomerID != nil {
		t.Fatalf("expected walk-in sale without customer, got %v", *sale.CustomerID)
	}
	if sale.CustomerType != domain.CustomerRetail {
		t.Fatalf("expected retail default, got %s", sale.CustomerType)
	}
}

func TestNamedCustomerCreatedOnTheFly(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Customer:      "Umm Khaled",
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.CustomerID == nil {
		t.Fatalf("expected customer to be created for named sale")
	}

	customer, err := svc.GetCustomer(ctx, *sale.CustomerID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Name != "Umm Khaled" {
		t.Fatalf("unexpected customer name %q", customer.Name)
	}
	if customer.Email != "umm-khaled@alameen-pharmacy.app" {
		t.Fatalf("unexpected placeholder email %q", customer.Email)
	}
}

func TestUnknownCustomerIDRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Customer:      uuid.NewString(),
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown customer id, got %v", err)
	}
}

func TestManualStockAdjustment(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Vitamin")

	movement, err := svc.RecordStockMovement(ctx, domain.StockMovementRequest{
		ProductID: product.ID,
		Type:      domain.MovementIn,
		Quantity:  25,
		Reason:    "restock delivery",
	})
	if err != nil {
		t.Fatalf("record movement: %v", err)
	}
	if movement.Quantity != 25 {
		t.Fatalf("expected +25 movement, got %d", movement.Quantity)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != product.Quantity+25 {
		t.Fatalf("expected stock %d, got %d", product.Quantity+25, after.Quantity)
	}

	_, err = svc.RecordStockMovement(ctx, domain.StockMovementRequest{
		ProductID: product.ID,
		Type:      domain.MovementOut,
		Quantity:  after.Quantity + 100,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected oversized out adjustment to fail, got %v", err)
	}
}

func TestStockAdjustmentRequiresElevatedRole(t *testing.T) {
	svc := newTestService()
	product := findProduct(t, svc, adminContext(), "Vitamin")

	_, err := svc.RecordStockMovement(cashierContext(), domain.StockMovementRequest{
		ProductID: product.ID,
		Type:      domain.MovementIn,
		Quantity:  5,
	})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for cashier adjustment, got %v", err)
	}
}
