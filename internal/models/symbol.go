package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExpiryFormat is the broker wire format for weekly expiries: DDMMMYY,
// upper-cased, e.g. 28NOV24.
const ExpiryFormat = "02Jan06"

// FormatExpiry renders an expiry date in the broker wire format.
func FormatExpiry(t time.Time) string {
	return strings.ToUpper(t.Format(ExpiryFormat))
}

// ParseExpiry parses a DDMMMYY expiry string.
func ParseExpiry(s string) (time.Time, error) {
	t, err := time.Parse(ExpiryFormat, capitalizeMonth(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing expiry %q: %w", s, err)
	}
	return t, nil
}

// BuildOptionSymbol constructs the canonical NFO trading symbol,
// e.g. NIFTY28NOV2422000CE. The format must be bit-exact for broker
// compatibility.
func BuildOptionSymbol(underlying, expiry string, strike float64, kind OptionKind) string {
	return fmt.Sprintf("%s%s%d%s", underlying, expiry, int64(strike), kind)
}

// OptionSymbol is the decomposed form of a canonical trading symbol.
type OptionSymbol struct {
	Underlying string
	Expiry     string
	Strike     float64
	Kind       OptionKind
}

// ParseOptionSymbol decomposes a canonical NFO option symbol. It accepts
// only the weekly DDMMMYY format produced by BuildOptionSymbol.
func ParseOptionSymbol(sym string) (OptionSymbol, error) {
	var kind OptionKind
	switch {
	case strings.HasSuffix(sym, string(Call)):
		kind = Call
	case strings.HasSuffix(sym, string(Put)):
		kind = Put
	default:
		return OptionSymbol{}, fmt.Errorf("symbol %q: missing CE/PE suffix", sym)
	}

	body := sym[:len(sym)-2]

	// The strike and the expiry year form one digit run, so anchor on the
	// month: the last alphabetic run in the body.
	monthEnd := -1
	for j := len(body) - 1; j >= 0; j-- {
		if isAlpha(body[j]) {
			monthEnd = j + 1
			break
		}
	}
	monthStart := monthEnd
	for monthStart > 0 && isAlpha(body[monthStart-1]) {
		monthStart--
	}
	if monthEnd < 0 || monthEnd-monthStart != 3 || monthStart < 2 || monthEnd+2 >= len(body) {
		return OptionSymbol{}, fmt.Errorf("symbol %q: missing DDMMMYY expiry", sym)
	}

	expiry := body[monthStart-2 : monthEnd+2]
	if _, err := ParseExpiry(expiry); err != nil {
		return OptionSymbol{}, err
	}

	strike, err := strconv.ParseFloat(body[monthEnd+2:], 64)
	if err != nil {
		return OptionSymbol{}, fmt.Errorf("symbol %q: bad strike: %w", sym, err)
	}

	underlying := body[:monthStart-2]
	if underlying == "" {
		return OptionSymbol{}, fmt.Errorf("symbol %q: missing underlying", sym)
	}

	return OptionSymbol{
		Underlying: underlying,
		Expiry:     expiry,
		Strike:     strike,
		Kind:       kind,
	}, nil
}

func isAlpha(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func capitalizeMonth(s string) string {
	if len(s) != 7 {
		return s
	}
	return s[:2] + strings.ToUpper(s[2:3]) + strings.ToLower(s[3:5]) + s[5:]
}
