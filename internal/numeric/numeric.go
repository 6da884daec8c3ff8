// Package numeric renders floating point values the way the legacy
// acquisition tool wrote them, so exported files stay byte-compatible
// with reference datasets.
package numeric

import (
	"math"
	"strconv"
	"strings"
)

const (
	// exponent bounds outside of which scientific notation is used
	minPlainExponent = -4
	maxPlainExponent = 16
)

// Format returns the shortest representation of f that round-trips.
// Integral values keep a trailing ".0" and very small or very large
// magnitudes switch to exponent form (e.g. 4.76e-05, 1e+16).
func Format(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	_, expPart, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expPart)
	if err == nil && (exp < minPlainExponent || exp >= maxPlainExponent) {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Round rounds f to the given number of decimal places using the exact
// binary value of f, with ties going to the even digit.
func Round(f float64, places int) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}

	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', places, 64), 64)
	if err != nil {
		return f
	}
	return r
}
