package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/zombor/auditguard/internal/invoice"
	"github.com/zombor/auditguard/internal/rules"
)

const reportExt = ".csv"

// Header returns the report columns for a flagged table: canonical fields,
// passthrough columns, flag columns, days_diff and suspicion_reason.
func Header(t *rules.FlaggedTable) []string {
	header := append([]string{}, invoice.Fields...)
	if t != nil {
		header = append(header, t.ExtraColumns...)
	}
	header = append(header, rules.Columns()...)
	return append(header, rules.DaysDiffColumn, rules.ReasonColumn)
}

// WriteCSV writes the flagged table as a delimited report
func WriteCSV(w io.Writer, t *rules.FlaggedTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(t)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if t != nil {
		for i, row := range t.Rows {
			if err := cw.Write(reportRow(t.ExtraColumns, row)); err != nil {
				return fmt.Errorf("writing row %d: %w", i+1, err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return nil
}

func reportRow(extras []string, row rules.FlaggedRow) []string {
	out := []string{
		invoice.Value(row.InvoiceID),
		invoice.Value(row.InvoiceNumber),
		invoice.Value(row.VendorID),
		formatAmount(row.Amount),
		formatAmount(row.ContractValue),
		formatDate(row.InvoiceDate),
		formatDate(row.EntryDate),
		invoice.Value(row.ProcurementType),
		invoice.Value(row.BankAccountNumber),
	}
	for _, col := range extras {
		out = append(out, row.Extra[col])
	}
	for _, v := range row.Flags {
		out = append(out, strconv.FormatBool(v))
	}

	days := ""
	if row.DaysDiff != nil {
		days = strconv.Itoa(*row.DaysDiff)
	}
	return append(out, days, row.Reason)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return invoice.FormatTime(*t)
}
