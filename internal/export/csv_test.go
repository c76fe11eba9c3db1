package export

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteInvoicesCSV(t *testing.T) {
	rec := httptest.NewRecorder()
	rows := []InvoiceRow{
		{
			Code:            "INV-001",
			Date:            time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			Total:           12500.5,
			FinalAmount:     11800,
			ClientRate:      5,
			DistributorRate: 3.25,
			CompanyRate:     2,
			Status:          "Pending",
		},
	}
	require.NoError(t, WriteInvoicesCSV(rec, rows))

	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "invoices.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\r\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "invoice_code")
	require.Contains(t, lines[1], "INV-001")
	require.Contains(t, lines[1], "2026-03-15")
	require.Contains(t, lines[1], `"12,500.50"`)
	require.Contains(t, lines[1], "3.25")
}

func TestFormatRateTrimsZeros(t *testing.T) {
	require.Equal(t, "5", formatRate(5))
	require.Equal(t, "3.25", formatRate(3.25))
	require.Equal(t, "0", formatRate(0))
}
