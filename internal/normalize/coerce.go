package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"

	"github.com/zombor/auditguard/internal/invoice"
)

// MissingAmount is synthesized for amount and contract_value when the source has no such column
const MissingAmount = 25000.0

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// ParseCurrency turns a currency cell such as "₹1,20,000.50" into a number.
// Symbols and separators are discarded; anything unparsable becomes 0.
func ParseCurrency(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(val) {
			return 0
		}
		return val
	case float32:
		return ParseCurrency(float64(val))
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		return ParseCurrency(val.String())
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return 0
	case string:
		clean := nonNumeric.ReplaceAllString(val, "")
		if clean == "" {
			return 0
		}
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	default:
		return ParseCurrency(fmt.Sprint(val))
	}
}

// ParseDate turns a date cell into a timestamp, or nil when it cannot be parsed.
// Zone-less text is read as UTC.
func ParseDate(v any) *time.Time {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return &val
	case *time.Time:
		if val == nil || val.IsZero() {
			return nil
		}
		t := *val
		return &t
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil
		}
		return &t
	default:
		return nil
	}
}

// ParseText stringifies and trims an identifier or category cell.
// Nil and blank cells are absent.
func ParseText(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case float64:
		if math.IsNaN(val) {
			return nil
		}
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		s = val.String()
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case bool:
		s = strconv.FormatBool(val)
	case time.Time:
		s = invoice.FormatTime(val)
	default:
		s = fmt.Sprint(val)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
