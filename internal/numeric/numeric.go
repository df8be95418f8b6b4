// Package numeric turns loosely formatted table text into numbers.
package numeric

import (
	"math"
	"strconv"
	"strings"
)

var cleaner = strings.NewReplacer(",", "", "$", "", "*", "")

// Clean strips thousands separators, currency markers and footnote markers.
func Clean(s string) string {
	return strings.TrimSpace(cleaner.Replace(s))
}

// ToNumber cleans s and parses it. Anything that does not parse to a finite
// number, such as "?" or "-", yields nil.
func ToNumber(s string) *float64 {
	c := Clean(s)
	if c == "" {
		return nil
	}
	v, err := strconv.ParseFloat(c, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Format renders v for CSV output. Nil becomes the empty string, and the
// shortest representation is used so a reload yields the same bits.
func Format(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
