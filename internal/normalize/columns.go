package normalize

import (
	"strings"

	"github.com/zombor/auditguard/internal/invoice"
)

// columnAliases lists, per canonical field, the accepted source column names
// in priority order. The first alias present in the input wins.
var columnAliases = map[string][]string{
	invoice.FieldInvoiceID:         {"invoice_id", "inv_id", "id", "transaction_id"},
	invoice.FieldInvoiceNumber:     {"invoice_number", "inv_no", "invoice_no", "reference"},
	invoice.FieldVendorID:          {"vendor_id", "vendor_code", "supplier_id"},
	invoice.FieldAmount:            {"amount", "total_amount", "invoice_amt", "value"},
	invoice.FieldContractValue:     {"contract_value", "po_value", "agreement_amount", "contract_limit"},
	invoice.FieldInvoiceDate:       {"invoice_date", "date_of_invoice", "document_date"},
	invoice.FieldEntryDate:         {"entry_date", "posting_date", "system_date", "created_at"},
	invoice.FieldProcurementType:   {"procurement_type", "source_type", "category"},
	invoice.FieldBankAccountNumber: {"bank_account_number", "account_no", "iban"},
}

// normalizeColumnName lower-cases, trims and snake-cases a header
func normalizeColumnName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "_")
}

// columnLayout records where each canonical field and passthrough column lives in a frame
type columnLayout struct {
	fields  map[string]int // canonical field -> frame column; missing fields are absent
	extras  []string
	extraAt []int
}

// reconcileColumns maps frame columns onto canonical fields.
// Normalized duplicates are dropped: the first occurrence of a name wins.
func reconcileColumns(columns []string) columnLayout {
	byName := make(map[string]int, len(columns))
	order := make([]string, 0, len(columns))
	for i, col := range columns {
		name := normalizeColumnName(col)
		if _, seen := byName[name]; seen {
			continue
		}
		byName[name] = i
		order = append(order, name)
	}

	layout := columnLayout{fields: make(map[string]int, len(invoice.Fields))}
	claimed := make(map[string]bool)
	for _, field := range invoice.Fields {
		for _, alias := range columnAliases[field] {
			if idx, ok := byName[alias]; ok {
				layout.fields[field] = idx
				claimed[alias] = true
				break
			}
		}
	}

	for _, name := range order {
		if claimed[name] {
			continue
		}
		layout.extras = append(layout.extras, name)
		layout.extraAt = append(layout.extraAt, byName[name])
	}
	return layout
}
