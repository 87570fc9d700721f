package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"alameenpos/internal/domain"
	"alameenpos/internal/store"
)

func TestCreateProductRequiresElevatedRole(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierContext(), domain.ProductCreateRequest{
		Name:        "Ibuprofen 400mg",
		RetailPrice: decimal.NewFromInt(15),
	})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for cashier, got %v", err)
	}
}

func TestCreateProductDefaultsStoreAndStatus(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:        "  Ibuprofen 400mg  ",
		Cost:        decimal.NewFromInt(6),
		RetailPrice: decimal.NewFromInt(15),
		Quantity:    30,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Name != "Ibuprofen 400mg" {
		t.Fatalf("expected trimmed name, got %q", product.Name)
	}
	if product.StoreID == "" {
		t.Fatalf("expected default store to be resolved")
	}
	if !product.Status {
		t.Fatalf("expected new product to be active")
	}
}

func TestCreateProductRejectsNegativePrices(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(adminContext(), domain.ProductCreateRequest{
		Name:        "Bad Price",
		RetailPrice: decimal.NewFromInt(-1),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchProductsEmptyQuery(t *testing.T) {
	svc := newTestService()

	products, err := svc.SearchProducts(adminContext(), "   ", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected empty result for blank query, got %d", len(products))
	}
}

func TestSearchProductsFindsSeeded(t *testing.T) {
	svc := newTestService()

	products, err := svc.SearchProducts(adminContext(), "paracetamol", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 match, got %d", len(products))
	}
}

func TestUpdateProductPatchesOnlyGivenFields(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	newPrice := decimal.NewFromInt(12)
	updated, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{
		RetailPrice: &newPrice,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if !updated.RetailPrice.Equal(newPrice) {
		t.Fatalf("expected retail price 12, got %s", updated.RetailPrice)
	}
	if updated.Name != product.Name {
		t.Fatalf("expected name untouched, got %q", updated.Name)
	}
	if updated.Quantity != product.Quantity {
		t.Fatalf("expected quantity untouched, got %d", updated.Quantity)
	}
}

func TestDeleteProductWithSalesRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 1)},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := svc.DeleteProduct(ctx, product.ID); !errors.Is(err, store.ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse, got %v", err)
	}
}

func TestPriceQuoteWholesale(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	quote, err := svc.PriceQuote(ctx, product.ID, domain.CustomerWholesale, domain.UnitPacket)
	if err != nil {
		t.Fatalf("price quote: %v", err)
	}
	expected := product.WholesalePrice.Mul(decimal.NewFromInt(int64(product.UnitsPerPacket)))
	if !quote.Price.Equal(expected) {
		t.Fatalf("expected packet price %s, got %s", expected, quote.Price)
	}
}

func TestPriceQuoteWholesaleFallsBackToRetail(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Vitamin")

	quote, err := svc.PriceQuote(ctx, product.ID, domain.CustomerWholesale, domain.UnitPcs)
	if err != nil {
		t.Fatalf("price quote: %v", err)
	}
	if !quote.Price.Equal(product.RetailPrice) {
		t.Fatalf("expected retail fallback %s for non-wholesale product, got %s", product.RetailPrice, quote.Price)
	}
}

func TestCreateCustomerDefaultsType(t *testing.T) {
	svc := newTestService()

	customer, err := svc.CreateCustomer(cashierContext(), domain.CustomerCreateRequest{
		Name:  "Abu Salem",
		Phone: "0591234567",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.Type != domain.CustomerRetail {
		t.Fatalf("expected retail default, got %s", customer.Type)
	}
}

func TestCreateCustomerRejectsUnknownType(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateCustomer(cashierContext(), domain.CustomerCreateRequest{
		Name: "Bad Type",
		Type: "vip",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSalesReportAggregates(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	product := findProduct(t, svc, ctx, "Paracetamol")

	for i := 0; i < 3; i++ {
		_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
			PaymentMethod: "cash",
			Items:         []domain.SaleLineRequest{saleLine(product.ID, domain.UnitPcs, 2)},
		})
		if err != nil {
			t.Fatalf("create sale %d: %v", i, err)
		}
	}

	report, err := svc.SalesReport(ctx, domain.SalesFilter{})
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if report.Summary.TotalSales != 3 {
		t.Fatalf("expected 3 sales, got %d", report.Summary.TotalSales)
	}
	expected := product.RetailPrice.Mul(decimal.NewFromInt(6))
	if !report.Summary.NetTotal.Equal(expected) {
		t.Fatalf("expected net total %s, got %s", expected, report.Summary.NetTotal)
	}
	if len(report.Sales) != 3 {
		t.Fatalf("expected 3 listed sales, got %d", len(report.Sales))
	}
}

func TestDashboardStatsCountsShortages(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	// Seed a product sitting at its minimum stock level.
	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:          "Insulin Pen",
		Cost:          decimal.NewFromInt(40),
		RetailPrice:   decimal.NewFromInt(60),
		Quantity:      3,
		MinStockLevel: 5,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if stats.ProductShortage < 1 {
		t.Fatalf("expected at least one low stock product, got %d", stats.ProductShortage)
	}
	if stats.TotalProducts < 4 {
		t.Fatalf("expected seeded plus created products, got %d", stats.TotalProducts)
	}
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatalf("expected actor in context")
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor in empty context")
	}
}
