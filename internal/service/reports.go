package service

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/report"
)

func (s *Service) RangeSummary(ctx context.Context, rng domain.DateRange) (domain.RangeSummary, error) {
	sales, err := s.repo.ListSales(ctx, rng)
	if err != nil {
		return domain.RangeSummary{}, err
	}
	returns, err := s.repo.ListReturns(ctx, rng)
	if err != nil {
		return domain.RangeSummary{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, rng)
	if err != nil {
		return domain.RangeSummary{}, err
	}
	purchases, err := s.repo.ListPurchases(ctx, rng)
	if err != nil {
		return domain.RangeSummary{}, err
	}

	channels := map[string]*domain.ChannelSummary{
		domain.ChannelInStore: {Channel: domain.ChannelInStore},
		domain.ChannelOnline:  {Channel: domain.ChannelOnline},
	}
	summary := domain.RangeSummary{
		Start:     formatBound(rng.From, s.opts.Location),
		End:       formatBound(rng.To, s.opts.Location),
		Sales:     sales,
		Expenses:  expenses,
		Purchases: purchases,
	}
	for _, sale := range sales {
		ch, ok := channels[sale.Channel]
		if !ok {
			ch = &domain.ChannelSummary{Channel: sale.Channel}
			channels[sale.Channel] = ch
		}
		ch.Count++
		ch.Subtotal = ch.Subtotal.Add(sale.Subtotal)
		ch.Fees = ch.Fees.Add(sale.Fees)
		ch.Total = ch.Total.Add(sale.Total)
		summary.SalesCount++
		summary.SalesTotal = summary.SalesTotal.Add(sale.Total)
	}
	for _, ret := range returns {
		summary.RefundsTotal = summary.RefundsTotal.Add(ret.RefundAmount)
	}
	for _, e := range expenses {
		summary.ExpensesTotal = summary.ExpensesTotal.Add(e.Amount)
	}
	for _, p := range purchases {
		summary.PurchasesTotal = summary.PurchasesTotal.Add(p.Amount)
	}
	summary.Net = summary.SalesTotal.Sub(summary.RefundsTotal).Sub(summary.ExpensesTotal).Sub(summary.PurchasesTotal)

	summary.Channels = []domain.ChannelSummary{*channels[domain.ChannelInStore], *channels[domain.ChannelOnline]}
	for name, ch := range channels {
		if name != domain.ChannelInStore && name != domain.ChannelOnline {
			summary.Channels = append(summary.Channels, *ch)
		}
	}
	return summary, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	products, err := s.ListProductsWithStatus(ctx, "")
	if err != nil {
		return domain.DashboardStats{}, err
	}
	today, err := s.repo.ListSales(ctx, s.dayRange(s.now()))
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{TotalProducts: len(products), TodaySales: decimal.Zero}
	for _, p := range products {
		if p.Status == domain.StockStatusOutOfStock {
			stats.OutOfStockCount++
		}
	}
	for _, sale := range today {
		stats.TodaySales = stats.TodaySales.Add(sale.Total)
		if sale.Channel == domain.ChannelOnline {
			stats.OnlineOrdersCount++
		}
	}
	return stats, nil
}

// ExportWorkbook writes the range summary as an xlsx document.
func (s *Service) ExportWorkbook(ctx context.Context, rng domain.DateRange, w io.Writer) error {
	summary, err := s.RangeSummary(ctx, rng)
	if err != nil {
		return err
	}
	return report.WriteWorkbook(w, summary, s.opts.Location)
}

func formatBound(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}
