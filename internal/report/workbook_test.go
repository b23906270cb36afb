package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"laroza/backend/internal/domain"
)

func TestWriteWorkbookSheets(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	summary := domain.RangeSummary{
		Start:      "2026-05-04",
		End:        "2026-05-04",
		SalesCount: 1,
		SalesTotal: decimal.RequireFromString("210.00"),
		Net:        decimal.RequireFromString("160.00"),
		Channels: []domain.ChannelSummary{
			{Channel: domain.ChannelInStore, Count: 1, Subtotal: decimal.NewFromInt(200), Fees: decimal.NewFromInt(10), Total: decimal.NewFromInt(210)},
			{Channel: domain.ChannelOnline},
		},
		Sales: []domain.Sale{{
			InvoiceNumber: "INV-1",
			CreatedAt:     at,
			Channel:       domain.ChannelInStore,
			StoreType:     domain.StoreTypeBoutique,
			PaymentMethod: domain.PaymentMethodVisa,
			CustomerName:  "Mona",
			Subtotal:      decimal.NewFromInt(200),
			Fees:          decimal.NewFromInt(10),
			Total:         decimal.NewFromInt(210),
		}},
		Expenses:  []domain.Expense{{Amount: decimal.NewFromInt(50), Description: "Rent share", Category: "rent", Date: at}},
		Purchases: []domain.Purchase{},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, summary, time.UTC))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{SheetSummary, SheetSales, SheetExpenses, SheetPurchases}, f.GetSheetList())

	sales, err := f.GetRows(SheetSales)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	require.Equal(t, "Invoice", sales[0][0])
	require.Equal(t, "INV-1", sales[1][0])
	require.Equal(t, "2026-05-04 10:30", sales[1][1])
	require.Equal(t, "210", sales[1][9])

	net, err := f.GetCellValue(SheetSummary, "B8")
	require.NoError(t, err)
	require.Equal(t, "160", net)

	purchases, err := f.GetRows(SheetPurchases)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}
