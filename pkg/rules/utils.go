package rules

import "math"

// roundTenth rounds hours to one decimal place.
func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
