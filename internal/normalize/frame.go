package normalize

import (
	"sort"
	"time"

	"github.com/zombor/auditguard/internal/extraction"
	"github.com/zombor/auditguard/internal/invoice"
)

// Frame is a raw, loosely-typed table: named columns and rows of cells.
// Cells may be strings, numbers, times or nil; short rows are padded with nil.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the frame has no data rows
func (f *Frame) Empty() bool {
	return f == nil || len(f.Rows) == 0
}

func (f *Frame) cell(row []any, col int) any {
	if col < 0 || col >= len(row) {
		return nil
	}
	return row[col]
}

// frameFromCandidates lays extracted records out as a frame.
// Columns appear in first-seen order, with each record's keys sorted.
func frameFromCandidates(candidates []extraction.Candidate) *Frame {
	frame := &Frame{}
	index := make(map[string]int)

	for _, candidate := range candidates {
		keys := make([]string, 0, len(candidate))
		for k := range candidate {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(frame.Columns)
				frame.Columns = append(frame.Columns, k)
			}
		}
	}

	for _, candidate := range candidates {
		row := make([]any, len(frame.Columns))
		for k, v := range candidate {
			row[index[k]] = v
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame
}

// FrameOf converts a canonical table back into a raw frame
func FrameOf(table *invoice.Table) *Frame {
	frame := &Frame{Columns: append(append([]string{}, invoice.Fields...), table.ExtraColumns...)}

	for _, r := range table.Records {
		row := []any{
			textCell(r.InvoiceID),
			textCell(r.InvoiceNumber),
			textCell(r.VendorID),
			r.Amount,
			r.ContractValue,
			timeCell(r.InvoiceDate),
			timeCell(r.EntryDate),
			textCell(r.ProcurementType),
			textCell(r.BankAccountNumber),
		}
		for _, col := range table.ExtraColumns {
			if v, ok := r.Extra[col]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame
}

func textCell(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeCell(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
