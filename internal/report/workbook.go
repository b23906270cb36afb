package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"laroza/backend/internal/domain"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SheetSummary   = "Summary"
	SheetSales     = "Sales"
	SheetExpenses  = "Expenses"
	SheetPurchases = "Purchases"
)

// WriteWorkbook renders a range summary as an xlsx document with one sheet
// per section. Timestamps are shown in loc.
func WriteWorkbook(w io.Writer, summary domain.RangeSummary, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetSales, SheetExpenses, SheetPurchases} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	summaryRows := [][]any{
		{"Start", summary.Start},
		{"End", summary.End},
		{"Sales count", summary.SalesCount},
		{"Sales total", summary.SalesTotal.InexactFloat64()},
		{"Refunds total", summary.RefundsTotal.InexactFloat64()},
		{"Expenses total", summary.ExpensesTotal.InexactFloat64()},
		{"Purchases total", summary.PurchasesTotal.InexactFloat64()},
		{"Net", summary.Net.InexactFloat64()},
		{},
		{"Channel", "Count", "Subtotal", "Fees", "Total"},
	}
	for _, ch := range summary.Channels {
		summaryRows = append(summaryRows, []any{
			ch.Channel, ch.Count, ch.Subtotal.InexactFloat64(), ch.Fees.InexactFloat64(), ch.Total.InexactFloat64(),
		})
	}
	if err := writeRows(f, SheetSummary, nil, summaryRows); err != nil {
		return err
	}

	sales := make([][]any, 0, len(summary.Sales))
	for _, sale := range summary.Sales {
		sales = append(sales, []any{
			sale.InvoiceNumber,
			sale.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			sale.Channel,
			sale.StoreType,
			sale.PaymentMethod,
			sale.CustomerName,
			sale.Employee,
			sale.Subtotal.InexactFloat64(),
			sale.Fees.InexactFloat64(),
			sale.Total.InexactFloat64(),
			sale.OrderStatus,
		})
	}
	salesHeader := []any{"Invoice", "Date", "Channel", "Store", "Payment", "Customer", "Employee", "Subtotal", "Fees", "Total", "Order status"}
	if err := writeRows(f, SheetSales, salesHeader, sales); err != nil {
		return err
	}

	expenses := make([][]any, 0, len(summary.Expenses))
	for _, e := range summary.Expenses {
		expenses = append(expenses, []any{e.Date.In(loc).Format("2006-01-02"), e.Category, e.Description, e.Amount.InexactFloat64()})
	}
	if err := writeRows(f, SheetExpenses, []any{"Date", "Category", "Description", "Amount"}, expenses); err != nil {
		return err
	}

	purchases := make([][]any, 0, len(summary.Purchases))
	for _, p := range summary.Purchases {
		purchases = append(purchases, []any{p.Date.In(loc).Format("2006-01-02"), p.Supplier, p.Description, p.Amount.InexactFloat64()})
	}
	if err := writeRows(f, SheetPurchases, []any{"Date", "Supplier", "Description", "Amount"}, purchases); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, header []any, rows [][]any) error {
	next := 1
	if header != nil {
		if err := setRow(f, sheet, next, header); err != nil {
			return err
		}
		next++
	}
	for _, row := range rows {
		if len(row) > 0 {
			if err := setRow(f, sheet, next, row); err != nil {
				return err
			}
		}
		next++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNo int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
	}
	return nil
}
