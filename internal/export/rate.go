package export

import (
	"math"
	"strconv"
	"strings"
)

// ParseRate extracts the sampling rate from a channel header of the form
// "<name> (<rate> Hz)". Thousands separators are accepted. ok is false when
// the header carries no readable rate.
func ParseRate(header string) (rate float64, ok bool) {
	hz := strings.Index(header, "Hz")
	if hz < 0 {
		return 0, false
	}

	open := strings.LastIndex(header[:hz], "(")
	if open < 0 {
		return 0, false
	}

	text := strings.TrimSpace(header[open+1 : hz])
	text = strings.ReplaceAll(text, ",", "")

	rate, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// headerRate returns the rate of headers[index], or def when the header is
// missing or unreadable.
func headerRate(headers []string, index int, def float64) float64 {
	if index < 0 || index >= len(headers) {
		return def
	}
	if rate, ok := ParseRate(headers[index]); ok {
		return rate
	}
	return def
}
