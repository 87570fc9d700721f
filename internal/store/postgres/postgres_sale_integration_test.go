package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alameenpos/internal/domain"
)

func TestDeleteSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("ALAMEENPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set ALAMEENPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()

	st, err := s.CreateStore(ctx, domain.Store{
		Name:    fmt.Sprintf("IT Store %d", stamp),
		Address: "integration",
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, st.ID)
	})

	product, err := s.CreateProduct(ctx, domain.Product{
		Name:        fmt.Sprintf("IT Paracetamol %d", stamp),
		Cost:        decimal.NewFromInt(5),
		RetailPrice: decimal.NewFromInt(10),
		Quantity:    10,
		StoreID:     st.ID,
		Status:      true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	sale, err := s.CreateSale(ctx, domain.Sale{
		CustomerType:  domain.CustomerRetail,
		PaymentMethod: domain.PaymentCash,
		StoreID:       st.ID,
		UserID:        "admin",
		Subtotal:      decimal.NewFromInt(20),
		Total:         decimal.NewFromInt(20),
		Status:        domain.SaleStatusCompleted,
		Items: []domain.SaleItem{
			{
				ProductID: product.ID,
				Unit:      domain.UnitPcs,
				Quantity:  2,
				UnitPrice: decimal.NewFromInt(10),
				Total:     decimal.NewFromInt(20),
			},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, sale.ID)
	})

	mid, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product after sale: %v", err)
	}
	if mid.Quantity != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", mid.Quantity)
	}

	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	after, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product after reversal: %v", err)
	}
	if after.Quantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", after.Quantity)
	}

	movements, err := s.ListStockMovements(ctx, product.ID, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	var reversal bool
	for _, m := range movements {
		if m.Reason == "sale_reversal" && m.Quantity == 2 {
			reversal = true
		}
	}
	if !reversal {
		t.Fatalf("expected a sale_reversal movement of +2, got %+v", movements)
	}

	// A deleted sale must not free its invoice number.
	second, err := s.CreateSale(ctx, domain.Sale{
		CustomerType:  domain.CustomerRetail,
		PaymentMethod: domain.PaymentCash,
		StoreID:       st.ID,
		UserID:        "admin",
		Subtotal:      decimal.NewFromInt(10),
		Total:         decimal.NewFromInt(10),
		Status:        domain.SaleStatusCompleted,
		Items: []domain.SaleItem{
			{
				ProductID: product.ID,
				Unit:      domain.UnitPcs,
				Quantity:  1,
				UnitPrice: decimal.NewFromInt(10),
				Total:     decimal.NewFromInt(10),
			},
		},
	})
	if err != nil {
		t.Fatalf("create second sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, second.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, second.ID)
	})
	if second.InvoiceNumber == sale.InvoiceNumber {
		t.Fatalf("invoice number %s reused after delete", sale.InvoiceNumber)
	}
}
