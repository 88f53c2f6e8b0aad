package rules

// Rule identifies one fraud heuristic. Rules are declared in evaluation and explanation order.
type Rule int

const (
	DuplicatePayment Rule = iota
	InvoiceExceedsContract
	SplitStructure
	HighValueNonCompetitive
	WatchlistVendor
	ReusedInvoiceNumber
	Backdated
	FiscalYearEndSpike
	SharedBankAccount
	ExcessiveRounding

	// NumRules is the number of declared rules
	NumRules = int(ExcessiveRounding) + 1
)

var ruleColumns = [NumRules]string{
	"flag_duplicate_payment",
	"flag_invoice_exceeds_contract",
	"flag_split_structure",
	"flag_high_val_non_comp",
	"flag_watchlist_vendor",
	"flag_reused_invoice_num",
	"flag_backdated",
	"flag_fy_end_spike",
	"flag_shared_bank_acct",
	"flag_excessive_rounding",
}

// All returns every rule in declaration order
func All() []Rule {
	rules := make([]Rule, NumRules)
	for i := range rules {
		rules[i] = Rule(i)
	}
	return rules
}

// Column returns the flag column name for the rule
func (r Rule) Column() string {
	if r < 0 || int(r) >= NumRules {
		return "flag_unknown"
	}
	return ruleColumns[r]
}

func (r Rule) String() string {
	return r.Column()
}

// Columns returns the flag column names in declaration order
func Columns() []string {
	return append([]string(nil), ruleColumns[:]...)
}

// Report columns written after the flags
const (
	DaysDiffColumn = "days_diff"
	ReasonColumn   = "suspicion_reason"
)

// Derived reports whether a column name is produced by evaluation
// rather than read from the input.
func Derived(name string) bool {
	if name == DaysDiffColumn || name == ReasonColumn {
		return true
	}
	for _, col := range ruleColumns {
		if name == col {
			return true
		}
	}
	return false
}

// Flags holds one boolean outcome per rule
type Flags [NumRules]bool

// Any reports whether at least one rule fired
func (f Flags) Any() bool {
	for _, v := range f {
		if v {
			return true
		}
	}
	return false
}
