package normalize

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombor/auditguard/internal/extraction"
	"github.com/zombor/auditguard/internal/invoice"
)

// Normalizer turns raw sources of any supported shape into canonical tables
type Normalizer struct {
	extractor extraction.Extractor
}

// New creates a Normalizer. extractor may be nil, in which case documents
// and images contribute no records.
func New(extractor extraction.Extractor) *Normalizer {
	return &Normalizer{extractor: extractor}
}

// Process loads a source and normalizes it into a canonical table.
// It never fails: any load failure is logged and yields an empty table.
func (n *Normalizer) Process(ctx context.Context, src Source) *invoice.Table {
	frame, err := n.load(ctx, src)
	if err != nil {
		slog.Error("Failed to load source",
			"name", src.Name,
			"format", src.Format.String(),
			"size", len(src.Data),
			"error", err,
		)
		return emptyTable()
	}
	return Normalize(frame)
}

// Normalize reconciles a raw frame's columns onto the canonical schema,
// synthesizes missing fields and coerces every value to its canonical type.
func Normalize(frame *Frame) *invoice.Table {
	if frame.Empty() {
		return emptyTable()
	}

	layout := reconcileColumns(frame.Columns)
	table := &invoice.Table{
		ExtraColumns: layout.extras,
		Records:      make([]invoice.Record, 0, len(frame.Rows)),
	}

	for _, row := range frame.Rows {
		table.Records = append(table.Records, normalizeRow(frame, row, layout))
	}
	return table
}

func normalizeRow(frame *Frame, row []any, layout columnLayout) invoice.Record {
	text := func(field string) *string {
		idx, ok := layout.fields[field]
		if !ok {
			return nil
		}
		return ParseText(frame.cell(row, idx))
	}
	amount := func(field string) float64 {
		idx, ok := layout.fields[field]
		if !ok {
			return MissingAmount
		}
		return ParseCurrency(frame.cell(row, idx))
	}
	date := func(field string) *time.Time {
		idx, ok := layout.fields[field]
		if !ok {
			return nil
		}
		return ParseDate(frame.cell(row, idx))
	}

	record := invoice.Record{
		InvoiceID:         text(invoice.FieldInvoiceID),
		InvoiceNumber:     text(invoice.FieldInvoiceNumber),
		VendorID:          text(invoice.FieldVendorID),
		Amount:            amount(invoice.FieldAmount),
		ContractValue:     amount(invoice.FieldContractValue),
		InvoiceDate:       date(invoice.FieldInvoiceDate),
		EntryDate:         date(invoice.FieldEntryDate),
		ProcurementType:   text(invoice.FieldProcurementType),
		BankAccountNumber: text(invoice.FieldBankAccountNumber),
	}

	for i, name := range layout.extras {
		v := ParseText(frame.cell(row, layout.extraAt[i]))
		if v == nil {
			continue
		}
		if record.Extra == nil {
			record.Extra = make(map[string]string)
		}
		record.Extra[name] = *v
	}
	return record
}

func emptyTable() *invoice.Table {
	return &invoice.Table{Records: []invoice.Record{}}
}
