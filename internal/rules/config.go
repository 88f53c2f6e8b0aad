package rules

// Config holds the thresholds the engine evaluates against
type Config struct {
	// ApprovalLimit is the amount above which an invoice needs extra sign-off
	ApprovalLimit float64
	// HighValueThreshold marks awards large enough to require competition
	HighValueThreshold float64
	// FallbackWatchlist replaces the loaded watchlist when that comes back empty
	FallbackWatchlist []string
}

// DefaultConfig returns the standard thresholds with no fallback watchlist
func DefaultConfig() Config {
	return Config{
		ApprovalLimit:      50000,
		HighValueThreshold: 1000000,
	}
}

// DevelopmentWatchlist holds placeholder vendors for demos and local runs.
// It is only used when passed explicitly as Config.FallbackWatchlist.
var DevelopmentWatchlist = []string{"BAD_VENDOR_01", "SUSPECT_INC"}
