// Package export renders invoice records for the reporting boundary.
// Spreadsheet styling is out of scope; consumers get plain CSV.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// InvoiceRow is the flattened record written per invoice.
type InvoiceRow struct {
	Code            string
	Date            time.Time
	Total           float64
	FinalAmount     float64
	ClientRate      float64
	DistributorRate float64
	CompanyRate     float64
	Status          string
}

var moneyPrinter = message.NewPrinter(language.English)

func formatMoney(v float64) string {
	return moneyPrinter.Sprintf("%.2f", v)
}

func formatRate(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// WriteInvoicesCSV streams rows as CSV with headers set for download.
func WriteInvoicesCSV(w http.ResponseWriter, rows []InvoiceRow) error {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)

	s := newCSVStreamer(w)
	if err := s.writeRow([]string{
		"invoice_code", "invoice_date", "total", "final_amount",
		"client_rate", "distributor_rate", "company_rate", "status",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.writeRow([]string{
			row.Code,
			row.Date.Format("2006-01-02"),
			formatMoney(row.Total),
			formatMoney(row.FinalAmount),
			formatRate(row.ClientRate),
			formatRate(row.DistributorRate),
			formatRate(row.CompanyRate),
			row.Status,
		}); err != nil {
			return err
		}
	}
	return s.Flush()
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}
