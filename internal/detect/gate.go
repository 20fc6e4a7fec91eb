// Package detect implements the three cooperating detectors (cash,
// violence, fire) and the unified dispatcher that fans a frame out to them.
package detect

// TemporalGate is the arm/fire/cooldown state machine shared identically by
// the cash, violence and fire detectors, generalized from an alert
// open/close hysteresis pattern into a candidate-promotion gate: a
// consecutive-candidate counter must reach minFrames, an optional
// per-candidate score must clear threshold, and at least cooldownFrames
// must have elapsed since the last promotion.
type TemporalGate struct {
	MinFrames      int
	CooldownFrames int

	consecutive      int
	lastEmittedFrame int64
}

// NewTemporalGate builds a gate with the given promotion and cooldown
// thresholds.
func NewTemporalGate(minFrames, cooldownFrames int) *TemporalGate {
	if minFrames < 1 {
		minFrames = 1
	}
	return &TemporalGate{
		MinFrames:        minFrames,
		CooldownFrames:   cooldownFrames,
		lastEmittedFrame: -1,
	}
}

// Evaluate advances the gate by one frame. isCandidate reports whether this
// frame passed the detector's geometric/motion test; score/threshold is an
// additional promotion-time check (pass score=1, threshold=0 when the
// caller has already folded any confidence threshold into isCandidate). It
// returns true exactly when this frame promotes to a Detection.
//
// If isCandidate is false, the consecutive counter resets to zero and the
// frame never promotes, regardless of score.
func (g *TemporalGate) Evaluate(frameIndex uint64, isCandidate bool, score, threshold float64) bool {
	if !isCandidate {
		g.consecutive = 0
		return false
	}

	g.consecutive++
	if g.consecutive < g.MinFrames {
		return false
	}
	if score < threshold {
		return false
	}
	if g.lastEmittedFrame >= 0 && int64(frameIndex)-g.lastEmittedFrame < int64(g.CooldownFrames) {
		return false
	}

	g.consecutive = 0
	g.lastEmittedFrame = int64(frameIndex)
	return true
}

// Reset clears the gate's state, as if no candidate had ever been seen.
func (g *TemporalGate) Reset() {
	g.consecutive = 0
	g.lastEmittedFrame = -1
}
