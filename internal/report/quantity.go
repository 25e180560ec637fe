package report

import (
	"regexp"
	"strconv"
	"strings"
)

// quantityPattern accepts a plain unsigned integer/decimal or a
// thousands-separated one. Sign handling happens before matching.
var quantityPattern = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?$`)

// ExtractQuantity parses the numeric-quantity text convention used by bank
// report cells: plain integers and decimals, thousands separators
// ("1,234.56"), a leading minus sign, or accounting-style parentheses for
// negatives ("(1,234.56)" is -1234.56). Any other shape returns ok=false
// rather than an error; callers treat that as a parse failure for the cell.
func ExtractQuantity(text string) (value float64, ok bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		if negative {
			// A minus sign inside parentheses is malformed.
			return 0, false
		}
		negative = true
		s = s[1:]
	}

	if !quantityPattern.MatchString(s) {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// NormalizeQuantity rewrites numeric-quantity text into a canonical signed
// decimal string ("(1,234.50)" becomes "-1234.50"), preserving trailing
// zeros so callers can inspect the number of decimal places as written.
// ok is false for malformed text.
func NormalizeQuantity(text string) (normalized string, ok bool) {
	s := strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		if negative {
			return "", false
		}
		negative = true
		s = s[1:]
	}
	if !quantityPattern.MatchString(s) {
		return "", false
	}
	s = strings.ReplaceAll(s, ",", "")
	if negative {
		s = "-" + s
	}
	return s, true
}
