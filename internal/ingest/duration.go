package ingest

import (
	"math"
	"strconv"
	"strings"
)

// ParseDuration reads "HH:MM:SS", "MM:SS" or plain seconds. Anything else,
// including an empty string and NaN or infinite values, is 0.
func ParseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		total = total*60 + v
	}
	if math.IsInf(total, 0) {
		return 0
	}
	return total
}
