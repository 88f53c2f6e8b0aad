package extraction

import "context"

// Page is one unit of unstructured input sent to an Extractor.
// Text holds the page's extracted text; Image holds a PNG rendering when
// the page has no text layer (scans and photos).
type Page struct {
	Number int
	Text   string
	Image  []byte
}

// Candidate is one loosely-typed invoice record proposed by an Extractor.
// Keys follow the canonical alias vocabulary but nothing about them is guaranteed.
type Candidate map[string]any

// Extractor turns unstructured page content into candidate invoice records
type Extractor interface {
	// Extract returns the candidate records found on a page, possibly none
	Extract(ctx context.Context, page Page) ([]Candidate, error)
	// Close releases resources held by the extractor
	Close() error
}
