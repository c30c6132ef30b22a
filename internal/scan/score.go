package scan

import (
	"strings"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/evidence"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
)

// Weights is the tunable factor-weighting policy. Liveness defaults lowest
// because it is caller-asserted and unverified by the engine.
type Weights struct {
	Location  float64
	Proximity float64
	Network   float64
	Liveness  float64
}

// DefaultWeights returns the stock policy.
func DefaultWeights() Weights {
	return Weights{Location: 0.35, Proximity: 0.30, Network: 0.20, Liveness: 0.15}
}

// scoreFactors evaluates each evidence channel that was actually supplied.
// A factor missing from the submission (or not configured for the class)
// stays nil and is excluded from the trust score entirely.
func (v *Validator) scoreFactors(sess session.Session, ev Evidence) FactorBreakdown {
	var fb FactorBreakdown

	lv := evidence.Factor{Pass: ev.LivenessAsserted}
	if ev.LivenessAsserted {
		lv.Confidence = 1
	}
	fb.Liveness = &lv

	if ev.Location != nil && sess.Class.Room != nil {
		var f evidence.Factor
		if v.cfg.AccuracyCeilingM > 0 && ev.Location.AccuracyM > v.cfg.AccuracyCeilingM {
			// Accuracy beyond the ceiling: the fix is unusable, not absent.
			f = evidence.Factor{}
		} else {
			f = evidence.ScoreLocation(ev.Location.Location, *sess.Class.Room, v.cfg.GeofenceRadiusM, ev.Location.AccuracyM)
		}
		fb.Location = &f
	}

	if len(ev.ProximityReadings) > 0 {
		f := evidence.ScoreProximity(ev.ProximityReadings, v.cfg.ProximityStrong, v.cfg.ProximityWeak)
		fb.Proximity = &f
	}

	if sess.Class.NetworkSSID != "" && ev.NetworkSSID != nil {
		f := evidence.Factor{Pass: *ev.NetworkSSID == sess.Class.NetworkSSID}
		if f.Pass {
			f.Confidence = 1
		}
		fb.Network = &f
	}

	return fb
}

// combineTrust folds the supplied factor confidences into one 0-1 score,
// renormalized over the weights of the factors actually present.
func combineTrust(w Weights, fb FactorBreakdown) float64 {
	var sum, total float64
	add := func(weight float64, f *evidence.Factor) {
		if f == nil || weight <= 0 {
			return
		}
		sum += weight * f.Confidence
		total += weight
	}
	add(w.Liveness, fb.Liveness)
	add(w.Location, fb.Location)
	add(w.Proximity, fb.Proximity)
	add(w.Network, fb.Network)
	if total == 0 {
		return 0
	}
	return sum / total
}

// failureReason names the hard factors that failed, for review context.
func failureReason(fb FactorBreakdown) string {
	var failed []string
	check := func(name string, f *evidence.Factor) {
		if f != nil && !f.Pass {
			failed = append(failed, name)
		}
	}
	check("liveness", fb.Liveness)
	check("location", fb.Location)
	check("proximity", fb.Proximity)
	check("network", fb.Network)
	if len(failed) == 0 {
		return "low combined trust"
	}
	return "failed factors: " + strings.Join(failed, ", ")
}
