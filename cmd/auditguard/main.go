package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/auditguard/internal/audit"
	"github.com/zombor/auditguard/internal/extraction"
	"github.com/zombor/auditguard/internal/normalize"
	"github.com/zombor/auditguard/internal/reference"
	"github.com/zombor/auditguard/internal/rules"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// modelExtractor is an extractor that can name the model behind it
type modelExtractor interface {
	extraction.Extractor
	Model() string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	defaults := rules.DefaultConfig()

	fs := ff.NewFlagSet("auditguard")
	var (
		input             = fs.StringLong("input", "", "Invoice file to analyze once and exit (batch mode)")
		output            = fs.StringLong("output", "fraud_report.csv", "Report file written in batch mode")
		port              = fs.IntLong("port", 8080, "HTTP server port")
		reportsPath       = fs.StringLong("reports", "./reports", "Report storage directory path")
		dataDir           = fs.StringLong("data-dir", "./data", "Reference data directory (watchlist.csv, market_rates.csv)")
		approvalLimit     = fs.Float64Long("approval-limit", defaults.ApprovalLimit, "Approval limit for split invoice detection")
		highValue         = fs.Float64Long("high-value-threshold", defaults.HighValueThreshold, "Amount above which awards must be competitive")
		fallbackWatchlist = fs.StringLong("fallback-watchlist", "", "Comma separated vendor ids used when the watchlist is empty")
		extractorType     = fs.StringLong("extractor", "ollama", "Extractor for PDFs and images: 'ollama', 'gemini' or 'none'")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL         = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel       = fs.StringLong("ollama-model", "llama3.2", "Ollama model name (use a vision model such as llava for scans)")
		cachePath         = fs.StringLong("extraction-cache", "", "BoltDB file caching extraction replies (empty disables)")
		authUser          = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass          = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AUDITGUARD"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := rules.Config{
		ApprovalLimit:      *approvalLimit,
		HighValueThreshold: *highValue,
		FallbackWatchlist:  splitList(*fallbackWatchlist),
	}

	// Initialize extractor
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	extractor, err := newExtractor(*extractorType, apiKey, *geminiModel, *ollamaURL, *ollamaModel, *cachePath)
	if err != nil {
		slog.Error("Failed to initialize extractor", "type", *extractorType, "error", err)
		os.Exit(1)
	}
	if extractor != nil {
		defer extractor.Close()
	}

	slog.Info("Loading reference data...", "dir", *dataDir)
	engine := rules.NewEngine(cfg, reference.NewLoader(*dataDir))
	normalizer := normalize.New(extractor)

	if *input != "" {
		if err := runBatch(context.Background(), audit.NewService(normalizer, engine, nil), *input, *output); err != nil {
			slog.Error("Analysis failed", "input", *input, "error", err)
			if extractor != nil {
				extractor.Close()
			}
			os.Exit(1)
		}
		return
	}

	// Initialize storage
	slog.Info("Initializing report storage...", "path", *reportsPath)
	store, err := audit.NewLocalStorage(*reportsPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := audit.NewService(normalizer, engine, store)
	server := audit.NewServer(service, audit.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// newExtractor builds the configured extractor, optionally behind a reply cache.
// It returns nil for "none".
func newExtractor(kind, geminiKey, geminiModel, ollamaURL, ollamaModel, cachePath string) (extraction.Extractor, error) {
	var (
		base modelExtractor
		err  error
	)
	switch kind {
	case "none":
		slog.Warn("No extractor configured, PDFs and images will yield no records")
		return nil, nil
	case "gemini":
		if geminiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini extractor...", "model", geminiModel)
		base, err = extraction.NewGemini(geminiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", ollamaURL, "model", ollamaModel)
		base, err = extraction.NewOllama(ollamaURL, ollamaModel)
	default:
		return nil, fmt.Errorf("invalid extractor type %q: want ollama, gemini or none", kind)
	}
	if err != nil {
		return nil, err
	}

	if cachePath == "" {
		return base, nil
	}
	slog.Info("Caching extraction replies", "path", cachePath)
	cache, err := extraction.NewCache(cachePath, base.Model(), base)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("opening extraction cache: %w", err)
	}
	return cache, nil
}

// runBatch analyzes one file and writes its flagged table to output
func runBatch(ctx context.Context, service *audit.Service, input, output string) error {
	slog.Info("Starting analysis", "input", input)

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	analysis, err := service.Evaluate(ctx, input, data, service.Config())
	if err != nil {
		return err
	}

	for _, c := range analysis.Summary {
		slog.Info("Flag summary", "flag", c.Flag, "count", c.Count)
	}

	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, analysis.Flagged); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	slog.Info("Analysis complete",
		"records", analysis.Total,
		"suspicious", analysis.Suspicious,
		"output", output,
	)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
