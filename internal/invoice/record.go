package invoice

import "time"

// Canonical field names
const (
	FieldInvoiceID         = "invoice_id"
	FieldInvoiceNumber     = "invoice_number"
	FieldVendorID          = "vendor_id"
	FieldAmount            = "amount"
	FieldContractValue     = "contract_value"
	FieldInvoiceDate       = "invoice_date"
	FieldEntryDate         = "entry_date"
	FieldProcurementType   = "procurement_type"
	FieldBankAccountNumber = "bank_account_number"
)

// Fields lists the canonical fields in export order
var Fields = []string{
	FieldInvoiceID,
	FieldInvoiceNumber,
	FieldVendorID,
	FieldAmount,
	FieldContractValue,
	FieldInvoiceDate,
	FieldEntryDate,
	FieldProcurementType,
	FieldBankAccountNumber,
}

// Record is one invoice transaction in canonical form.
// Nil pointers mean the value was absent or could not be parsed.
type Record struct {
	InvoiceID         *string    `json:"invoice_id"`
	InvoiceNumber     *string    `json:"invoice_number"`
	VendorID          *string    `json:"vendor_id"`
	Amount            float64    `json:"amount"`
	ContractValue     float64    `json:"contract_value"`
	InvoiceDate       *time.Time `json:"invoice_date"`
	EntryDate         *time.Time `json:"entry_date"`
	ProcurementType   *string    `json:"procurement_type"`
	BankAccountNumber *string    `json:"bank_account_number"`

	// Extra holds passthrough columns that matched no canonical alias
	Extra map[string]string `json:"extra,omitempty"`
}

// Table is a batch of canonical records
type Table struct {
	// ExtraColumns lists passthrough column names in input order
	ExtraColumns []string `json:"extra_columns,omitempty"`
	Records      []Record `json:"records"`
}

// Len returns the number of records, treating a nil table as empty
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Empty reports whether the table holds no records
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Value returns the string behind a nullable field, or "" when absent
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatTime renders a timestamp as YYYY-MM-DD, adding the clock only when it is not midnight
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
