// Package progress normalizes transport progress into one Record shape and
// renders it for terminals.
package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	rateRe    = regexp.MustCompile(`(?i)([0-9.]+)\s*([KMG]i?)B/s`)
	etaRe     = regexp.MustCompile(`\b(\d+:\d{2}:\d{2})\b`)
	// rsync --human-readable prints "73.01M"; older output prints "1,234,567".
	bytesRe = regexp.MustCompile(`^(\d[\d,]*(?:\.\d+)?)([KMGT]?)\s+`)
)

var unitScale = map[string]float64{
	"":  1,
	"K": 1e3,
	"M": 1e6,
	"G": 1e9,
	"T": 1e12,
}

// Parse extracts whatever progress fields a transport line carries. It never
// fails: an unrecognized line yields a Record with only Raw set.
func Parse(line string) Record {
	rec := Record{Raw: line}

	if m := percentRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.Percent = float64Ptr(v)
		}
	}
	if m := rateRe.FindStringSubmatch(line); m != nil {
		rec.Rate = m[1] + " " + m[2] + "B/s"
	}
	if m := etaRe.FindStringSubmatch(line); m != nil {
		rec.ETA = m[1]
	}
	if m := bytesRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		digits := strings.ReplaceAll(m[1], ",", "")
		if v, err := strconv.ParseFloat(digits, 64); err == nil {
			rec.Bytes = int64Ptr(int64(math.Round(v * unitScale[m[2]])))
		}
	}
	return rec
}
