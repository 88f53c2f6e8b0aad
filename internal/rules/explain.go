package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zombor/auditguard/internal/invoice"
)

// Clean is the explanation for rows where no rule fired
const Clean = "Clean"

// Explain builds the human readable reason for a row's flags, in rule order
func Explain(row FlaggedRow) string {
	var reasons []string
	for _, rule := range All() {
		if row.Flags[rule] {
			reasons = append(reasons, phrase(rule, row))
		}
	}
	if len(reasons) == 0 {
		return Clean
	}
	return strings.Join(reasons, ", ")
}

func phrase(rule Rule, row FlaggedRow) string {
	switch rule {
	case DuplicatePayment:
		return "Duplicate Payment"
	case InvoiceExceedsContract:
		return fmt.Sprintf("Exceeds Contract (Amt: %.2f > Contract: %.2f)", row.Amount, row.ContractValue)
	case SplitStructure:
		return "Split Invoice (Just below approval limit)"
	case HighValueNonCompetitive:
		return "High Value Non-Competitive Award"
	case WatchlistVendor:
		return "Vendor is on Watchlist"
	case ReusedInvoiceNumber:
		return "Invoice Number Reused"
	case Backdated:
		days := 0
		if row.DaysDiff != nil {
			days = *row.DaysDiff
		}
		return fmt.Sprintf("Backdated by %d days", days)
	case FiscalYearEndSpike:
		return "Fiscal Year-End Spike"
	case SharedBankAccount:
		return fmt.Sprintf("Shared Bank Account (Acct *%s)", lastFour(invoice.Value(row.BankAccountNumber)))
	case ExcessiveRounding:
		return "Excessive Rounding Detected"
	default:
		return rule.Column()
	}
}

func lastFour(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return s
	}
	return string(r[len(r)-4:])
}

// FlagCount is the number of rows a rule fired for
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

// Summary counts true values per flag, most frequent first.
// Ties keep rule declaration order.
func (t *FlaggedTable) Summary() []FlagCount {
	counts := make([]FlagCount, NumRules)
	for _, rule := range All() {
		counts[rule].Flag = rule.Column()
	}
	if t != nil {
		for _, row := range t.Rows {
			for i, v := range row.Flags {
				if v {
					counts[i].Count++
				}
			}
		}
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}
