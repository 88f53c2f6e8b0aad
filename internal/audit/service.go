package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/auditguard/internal/invoice"
	"github.com/zombor/auditguard/internal/normalize"
	"github.com/zombor/auditguard/internal/rules"
)

var (
	// ErrNoRecords is returned when a source normalizes to an empty table
	ErrNoRecords = errors.New("no data found or file is empty")

	// ErrReportNotFound is returned when a stored report does not exist
	ErrReportNotFound = errors.New("report not found")
)

// IDGenerator generates unique IDs for analyses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Normalizer turns raw sources into canonical tables
type Normalizer interface {
	Process(ctx context.Context, src normalize.Source) *invoice.Table
}

// Analysis is the outcome of evaluating one uploaded batch
type Analysis struct {
	ID         string            `json:"id"`
	Filename   string            `json:"filename"`
	CreatedAt  time.Time         `json:"created_at"`
	Thresholds Thresholds        `json:"thresholds"`
	Total      int               `json:"total"`
	Suspicious int               `json:"suspicious"`
	Summary    []rules.FlagCount `json:"summary"`
	Findings   []Finding         `json:"findings"`
	Report     string            `json:"report,omitempty"`

	Flagged *rules.FlaggedTable `json:"-"`
}

// Thresholds echoes the limits an analysis ran with
type Thresholds struct {
	ApprovalLimit      float64 `json:"approval_limit"`
	HighValueThreshold float64 `json:"high_value_threshold"`
}

// Finding is a suspicious row as shown to reviewers
type Finding struct {
	InvoiceID         string   `json:"invoice_id,omitempty"`
	InvoiceNumber     string   `json:"invoice_number,omitempty"`
	VendorID          string   `json:"vendor_id,omitempty"`
	Amount            float64  `json:"amount"`
	BankAccountNumber string   `json:"bank_account_number,omitempty"`
	Flags             []string `json:"flags"`
	Reason            string   `json:"suspicion_reason"`
}

// Service runs fraud analyses over uploaded invoice batches
type Service struct {
	normalizer  Normalizer
	engine      *rules.Engine
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with a UUID generator and the system clock
func NewService(normalizer Normalizer, engine *rules.Engine, storage Storage) *Service {
	return &Service{
		normalizer:  normalizer,
		engine:      engine,
		storage:     storage,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(normalizer Normalizer, engine *rules.Engine, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		normalizer:  normalizer,
		engine:      engine,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Config returns the default thresholds analyses run with
func (s *Service) Config() rules.Config {
	return s.engine.Config()
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename reduces an upload name to a short, safe report name ending in .csv
func sanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = unsafeChars.ReplaceAllString(base, "")
	base = whitespace.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "report"
	}
	return base + reportExt
}

// Evaluate normalizes the upload, applies every rule and summarizes the result.
// A batch either succeeds completely or returns a single error.
func (s *Service) Evaluate(ctx context.Context, filename string, data []byte, cfg rules.Config) (analysis *Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Analysis panicked", "filename", filename, "panic", r)
			analysis, err = nil, fmt.Errorf("analyzing %s: %v", filename, r)
		}
	}()

	table := s.normalizer.Process(ctx, normalize.NewSource(filename, data))
	if table.Empty() {
		return nil, ErrNoRecords
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", filename, err)
	}

	flagged := s.engine.WithConfig(cfg).ApplyAll(table)
	analysis = &Analysis{
		ID:        s.idGenerator.Generate(),
		Filename:  filename,
		CreatedAt: s.timeSource.Now(),
		Thresholds: Thresholds{
			ApprovalLimit:      cfg.ApprovalLimit,
			HighValueThreshold: cfg.HighValueThreshold,
		},
		Total:   flagged.Len(),
		Summary: flagged.Summary(),
		Flagged: flagged,
	}

	analysis.Findings = make([]Finding, 0)
	for _, row := range flagged.Suspicious() {
		analysis.Findings = append(analysis.Findings, newFinding(row))
	}
	analysis.Suspicious = len(analysis.Findings)

	slog.Info("Analyzed batch",
		"filename", filename,
		"records", analysis.Total,
		"suspicious", analysis.Suspicious,
	)
	return analysis, nil
}

func newFinding(row rules.FlaggedRow) Finding {
	f := Finding{
		InvoiceID:         invoice.Value(row.InvoiceID),
		InvoiceNumber:     invoice.Value(row.InvoiceNumber),
		VendorID:          invoice.Value(row.VendorID),
		Amount:            row.Amount,
		BankAccountNumber: invoice.Value(row.BankAccountNumber),
		Flags:             []string{},
		Reason:            row.Reason,
	}
	for _, rule := range rules.All() {
		if row.Flags[rule] {
			f.Flags = append(f.Flags, rule.Column())
		}
	}
	return f
}

// Analyze evaluates the upload and stores the flagged table as a CSV report
func (s *Service) Analyze(ctx context.Context, filename string, data []byte, cfg rules.Config) (*Analysis, error) {
	analysis, err := s.Evaluate(ctx, filename, data, cfg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, analysis.Flagged); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	name, err := s.storage.Save(fmt.Sprintf("%s_%s", analysis.ID, sanitizeFilename(filename)), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}
	analysis.Report = name
	return analysis, nil
}

// Report returns a stored CSV report
func (s *Service) Report(name string) ([]byte, error) {
	data, err := s.storage.Get(name)
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return data, nil
}

// Reports lists stored report names
func (s *Service) Reports() ([]string, error) {
	names, err := s.storage.List()
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return names, nil
}

// DeleteReport removes a stored report
func (s *Service) DeleteReport(name string) error {
	if err := s.storage.Delete(name); err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	return nil
}
