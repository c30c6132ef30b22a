package evidence

import "math"

// ScoreProximity judges short-range radio evidence from signal-strength
// readings in dBm. The best reading wins: at or above strong the confidence
// is 1, between weak and strong it interpolates linearly, below weak (or with
// no readings at all) it is 0. Pass requires at least one reading at or above
// the weak threshold.
func ScoreProximity(readings []float64, strongDBM, weakDBM float64) Factor {
	if len(readings) == 0 || strongDBM <= weakDBM {
		return Factor{}
	}

	best := math.Inf(-1)
	for _, r := range readings {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		if r > best {
			best = r
		}
	}
	if math.IsInf(best, -1) || best < weakDBM {
		return Factor{}
	}
	if best >= strongDBM {
		return Factor{Pass: true, Confidence: 1}
	}
	return Factor{Pass: true, Confidence: (best - weakDBM) / (strongDBM - weakDBM)}
}
