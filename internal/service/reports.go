package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"time"

	"alameenpos/internal/domain"
)

// reportCacheKey derives a stable cache key from the filter. Marshalling the
// filter keeps the key in sync with any future filter fields.
func reportCacheKey(filter domain.SalesFilter) string {
	payload, err := json.Marshal(struct {
		From          *time.Time           `json:"from"`
		To            *time.Time           `json:"to"`
		StoreID       string               `json:"store_id"`
		CustomerID    string               `json:"customer_id"`
		UserID        string               `json:"user_id"`
		PaymentMethod domain.PaymentMethod `json:"payment_method"`
		Status        string               `json:"status"`
		Limit         int                  `json:"limit"`
	}(filter))
	if err != nil {
		return "report:sales:unkeyed"
	}
	return "report:sales:" + base64.RawURLEncoding.EncodeToString(payload)
}

// SalesReport aggregates sales matching the filter. Results are cached for a
// short TTL; a cache failure degrades to a direct query.
func (s *Service) SalesReport(ctx context.Context, filter domain.SalesFilter) (domain.SalesReport, error) {
	key := reportCacheKey(filter)
	if cached, ok, err := s.reportCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed: %v", err)
	}

	summary, err := s.repo.GetSalesSummary(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{Summary: summary, Sales: sales}
	if err := s.reportCache.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed: %v", err)
	}
	return report, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	return s.repo.GetDashboardStats(ctx)
}
