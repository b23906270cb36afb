package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
)

const dateLayout = "2006-01-02"

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if err := validateStruct(req); err != nil {
		return domain.Expense{}, err
	}
	date, err := s.parseDate("date", req.Date)
	if err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Amount:      req.Amount.Round(2),
		Description: req.Description,
		Category:    req.Category,
		Date:        date,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "", "expense_create", "expense", created.ID, fmt.Sprintf("amount=%s,category=%s", created.Amount.StringFixed(2), created.Category))
	return *created, nil
}

// ExpensesInRange lists expenses whose date falls inside [From, To].
func (s *Service) ExpensesInRange(ctx context.Context, rng domain.DateRange) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, rng)
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Supplier = strings.TrimSpace(req.Supplier)
	if err := validateStruct(req); err != nil {
		return domain.Purchase{}, err
	}
	date, err := s.parseDate("date", req.Date)
	if err != nil {
		return domain.Purchase{}, err
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		Amount:      req.Amount.Round(2),
		Description: req.Description,
		Supplier:    req.Supplier,
		Date:        date,
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	s.logAudit(ctx, "", "purchase_create", "purchase", created.ID, fmt.Sprintf("amount=%s,supplier=%s", created.Amount.StringFixed(2), created.Supplier))
	return *created, nil
}

func (s *Service) PurchasesInRange(ctx context.Context, rng domain.DateRange) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, rng)
}

// parseDate accepts RFC 3339 or a bare date, read as midnight in the
// configured timezone. Blank means now.
func (s *Service) parseDate(field string, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.now(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, s.opts.Location); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, store.NewValidationError(field, "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

// ParseRange builds an inclusive range. A bare end date covers that whole
// day in the configured timezone. Blank bounds stay open.
func (s *Service) ParseRange(start string, end string) (domain.DateRange, error) {
	var rng domain.DateRange
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start != "" {
		from, err := s.parseDate("start", start)
		if err != nil {
			return domain.DateRange{}, err
		}
		rng.From = from
	}
	if end != "" {
		if t, err := time.ParseInLocation(dateLayout, end, s.opts.Location); err == nil {
			rng.To = t.AddDate(0, 0, 1).Add(-time.Nanosecond).UTC()
		} else {
			to, err := s.parseDate("end", end)
			if err != nil {
				return domain.DateRange{}, err
			}
			rng.To = to
		}
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return domain.DateRange{}, store.NewValidationError("end", "must not be before start")
	}
	return rng, nil
}

// dayRange covers the calendar day of t in the configured timezone.
func (s *Service) dayRange(t time.Time) domain.DateRange {
	local := t.In(s.opts.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.opts.Location)
	return domain.DateRange{
		From: start.UTC(),
		To:   start.AddDate(0, 0, 1).Add(-time.Nanosecond).UTC(),
	}
}
