package rules

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/auditguard/internal/invoice"
)

// NonCompetitive is the procurement category that high-value awards must not carry
const NonCompetitive = "Non-Competitive"

// backdateDays is the largest allowed gap between invoice and entry dates
const backdateDays = 30

// WatchlistSource loads the vendor watchlist
type WatchlistSource interface {
	LoadWatchlist() []string
}

// Engine evaluates the fraud rules over batches of canonical records.
// The watchlist is fixed when the engine is built; an Engine is safe for concurrent use.
type Engine struct {
	cfg       Config
	watchlist []string
	watched   map[string]struct{}
}

// NewEngine builds an engine, loading the watchlist once from src.
// If src is nil or yields nothing, cfg.FallbackWatchlist is used instead.
func NewEngine(cfg Config, src WatchlistSource) *Engine {
	var loaded []string
	if src != nil {
		loaded = src.LoadWatchlist()
	}
	if len(loaded) == 0 && len(cfg.FallbackWatchlist) > 0 {
		slog.Warn("Watchlist is empty, using fallback", "vendors", len(cfg.FallbackWatchlist))
		loaded = cfg.FallbackWatchlist
	}

	e := &Engine{
		cfg:     cfg,
		watched: make(map[string]struct{}, len(loaded)),
	}
	for _, v := range loaded {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := e.watched[v]; ok {
			continue
		}
		e.watched[v] = struct{}{}
		e.watchlist = append(e.watchlist, v)
	}
	return e
}

// WithConfig returns an engine using cfg's thresholds and this engine's watchlist
func (e *Engine) WithConfig(cfg Config) *Engine {
	return &Engine{cfg: cfg, watchlist: e.watchlist, watched: e.watched}
}

// Config returns the engine's thresholds
func (e *Engine) Config() Config {
	return e.cfg
}

// Watchlist returns the watched vendor ids in load order
func (e *Engine) Watchlist() []string {
	return append([]string(nil), e.watchlist...)
}

// FlaggedRow is a canonical record with its rule outcomes
type FlaggedRow struct {
	invoice.Record
	Flags    Flags
	DaysDiff *int
	Reason   string
}

// Suspicious reports whether any rule fired for the row
func (r FlaggedRow) Suspicious() bool {
	return r.Flags.Any()
}

// FlaggedTable is the engine's output for one batch
type FlaggedTable struct {
	ExtraColumns []string
	Rows         []FlaggedRow
}

// Len returns the number of rows
func (t *FlaggedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Suspicious returns the rows where at least one rule fired
func (t *FlaggedTable) Suspicious() []FlaggedRow {
	out := []FlaggedRow{}
	for _, row := range t.Rows {
		if row.Suspicious() {
			out = append(out, row)
		}
	}
	return out
}

// batch holds the aggregates the cross-row rules need
type batch struct {
	duplicates map[paymentKey]int
	numbers    map[numberKey]int
	accounts   map[string]map[string]struct{}
	median     float64
}

type paymentKey struct {
	vendor string
	amount float64
	sec    int64
	nsec   int
}

type numberKey struct {
	vendor string
	number string
}

func newPaymentKey(r invoice.Record) (paymentKey, bool) {
	if r.VendorID == nil || r.InvoiceDate == nil || math.IsNaN(r.Amount) {
		return paymentKey{}, false
	}
	return paymentKey{
		vendor: *r.VendorID,
		amount: r.Amount,
		sec:    r.InvoiceDate.Unix(),
		nsec:   r.InvoiceDate.Nanosecond(),
	}, true
}

func newNumberKey(r invoice.Record) (numberKey, bool) {
	if r.VendorID == nil || r.InvoiceNumber == nil {
		return numberKey{}, false
	}
	return numberKey{vendor: *r.VendorID, number: *r.InvoiceNumber}, true
}

func summarize(records []invoice.Record) batch {
	b := batch{
		duplicates: make(map[paymentKey]int),
		numbers:    make(map[numberKey]int),
		accounts:   make(map[string]map[string]struct{}),
	}

	amounts := make([]float64, 0, len(records))
	for _, r := range records {
		if k, ok := newPaymentKey(r); ok {
			b.duplicates[k]++
		}
		if k, ok := newNumberKey(r); ok {
			b.numbers[k]++
		}
		if r.BankAccountNumber != nil && r.VendorID != nil {
			vendors, ok := b.accounts[*r.BankAccountNumber]
			if !ok {
				vendors = make(map[string]struct{})
				b.accounts[*r.BankAccountNumber] = vendors
			}
			vendors[*r.VendorID] = struct{}{}
		}
		if !math.IsNaN(r.Amount) {
			amounts = append(amounts, r.Amount)
		}
	}

	b.median = median(amounts)
	return b
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// ApplyAll evaluates every rule over the batch and explains each row.
// The input table is not modified.
func (e *Engine) ApplyAll(table *invoice.Table) *FlaggedTable {
	out := &FlaggedTable{Rows: []FlaggedRow{}}
	if table == nil {
		return out
	}
	// stale flags from a re-uploaded report are replaced, not duplicated
	for _, col := range table.ExtraColumns {
		if !Derived(col) {
			out.ExtraColumns = append(out.ExtraColumns, col)
		}
	}
	out.Rows = make([]FlaggedRow, 0, len(table.Records))

	b := summarize(table.Records)
	for _, r := range table.Records {
		row := FlaggedRow{Record: r, DaysDiff: daysBetween(r.InvoiceDate, r.EntryDate)}
		row.Flags = e.evaluate(r, row.DaysDiff, b)
		row.Reason = Explain(row)
		out.Rows = append(out.Rows, row)
	}
	return out
}

func (e *Engine) evaluate(r invoice.Record, daysDiff *int, b batch) Flags {
	var f Flags

	if k, ok := newPaymentKey(r); ok {
		f[DuplicatePayment] = b.duplicates[k] > 1
	}

	f[InvoiceExceedsContract] = r.Amount > r.ContractValue

	lower := e.cfg.ApprovalLimit * 0.95
	f[SplitStructure] = r.Amount >= lower && r.Amount <= e.cfg.ApprovalLimit-0.01

	f[HighValueNonCompetitive] = r.Amount > e.cfg.HighValueThreshold &&
		r.ProcurementType != nil && *r.ProcurementType == NonCompetitive

	if r.VendorID != nil {
		_, f[WatchlistVendor] = e.watched[*r.VendorID]
	}

	if k, ok := newNumberKey(r); ok {
		f[ReusedInvoiceNumber] = b.numbers[k] > 1
	}

	f[Backdated] = daysDiff != nil && *daysDiff > backdateDays

	f[FiscalYearEndSpike] = r.InvoiceDate != nil && r.InvoiceDate.Month() == time.March &&
		r.Amount > 2*b.median

	if r.BankAccountNumber != nil {
		f[SharedBankAccount] = len(b.accounts[*r.BankAccountNumber]) > 1
	}

	f[ExcessiveRounding] = roundedUp(r.Amount, "1") || roundedUp(r.Amount, "0.01")

	return f
}

var thousand = decimal.NewFromInt(1000)

// roundedUp reports whether amount plus the nudge is an exact multiple of 1000
func roundedUp(amount float64, nudge string) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return decimal.NewFromFloat(amount).Add(decimal.RequireFromString(nudge)).Mod(thousand).IsZero()
}

// daysBetween returns whole days from invoice to entry, rounded down, or nil if either is absent
func daysBetween(invoiceDate, entryDate *time.Time) *int {
	if invoiceDate == nil || entryDate == nil {
		return nil
	}
	from, to := invoiceDate.UTC(), entryDate.UTC()
	days := dayNumber(to) - dayNumber(from)
	// the last day only counts once its clock passes the invoice's
	if timeOfDay(to) < timeOfDay(from) {
		days--
	}
	return &days
}

// dayNumber returns the Julian day number of t's calendar date.
// time.Time.Sub saturates near 292 years, so spans are counted in days.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	a := (14 - int(m)) / 12
	yy := y + 4800 - a
	mm := int(m) + 12*a - 3
	return d + (153*mm+2)/5 + 365*yy + yy/4 - yy/100 + yy/400 - 32045
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
