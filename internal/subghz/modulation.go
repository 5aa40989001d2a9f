package subghz

import "math"

// ModulationWeights are the tunable coefficients behind classifyModulation's
// weighted score. They are named and documented rather than inlined
// because they are expected to be retuned against real capture libraries,
// not treated as fixed invariants of the classifier (spec.md §9).
type ModulationWeights struct {
	AmplitudeCoV      float64 // weight of amplitude coefficient-of-variation (favours OOK/ASK)
	PhaseStepVariance float64 // weight of phase-step variance (favours FSK/GFSK)
	EdgeDensity       float64 // weight of envelope edge density (favours PWM/PPM)
}

// DefaultModulationWeights is tuned against short ISM-band bursts
// (garage remotes, weather sensors, tyre-pressure monitors): amplitude
// variation is the strongest single signal for OOK, so it carries the
// lowest weight needed to dominate, while edge density gets the
// heaviest weight because PWM/PPM framing is otherwise easy to
// misclassify as OOK on noisy captures.
var DefaultModulationWeights = ModulationWeights{
	AmplitudeCoV:      0.35,
	PhaseStepVariance: 0.45,
	EdgeDensity:       0.60,
}

const modulationConfidenceFloor = 0.25

// classifyModulation scores a burst's accumulated envelope/IQ samples
// against three features and picks the modulation family with the
// highest weighted vote (spec.md §4.5.4). Confidence is never reported
// below modulationConfidenceFloor: a 3-way classifier should never
// claim near-zero certainty, since "unknown" is always an option.
func classifyModulation(envelope []float64, samples []complex128) (ModulationHint, float64) {
	return classifyModulationWithWeights(envelope, samples, DefaultModulationWeights)
}

func classifyModulationWithWeights(envelope []float64, samples []complex128, w ModulationWeights) (ModulationHint, float64) {
	if len(envelope) < 2 || len(samples) < 2 {
		return ModulationUnknown, modulationConfidenceFloor
	}

	cov := amplitudeCoV(envelope)
	phaseVar := phaseStepVariance(samples)
	edges := edgeDensity(envelope)

	ookScore := w.AmplitudeCoV * normalize01(cov, 0, 1.2)
	fskScore := w.PhaseStepVariance * normalize01(phaseVar, 0, math.Pi*math.Pi)
	pwmScore := w.EdgeDensity * normalize01(edges, 0, 0.5)

	best := ookScore
	hint := ModulationOOK
	total := ookScore + fskScore + pwmScore

	if fskScore > best {
		best = fskScore
		hint = ModulationFSK
	}
	if pwmScore > best {
		best = pwmScore
		hint = ModulationPWM
	}

	if total <= 0 {
		return ModulationUnknown, modulationConfidenceFloor
	}

	confidence := best / total
	if confidence < modulationConfidenceFloor {
		confidence = modulationConfidenceFloor
	}
	return hint, confidence
}

func normalize01(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return clamp((v-lo)/(hi-lo), 0, 1)
}

// amplitudeCoV is the coefficient of variation (stddev/mean) of the
// envelope. OOK/ASK bursts swing hard between on and off, so this is
// large; FSK/GFSK holds a roughly constant envelope, so this is small.
func amplitudeCoV(envelope []float64) float64 {
	mean := 0.0
	for _, v := range envelope {
		mean += v
	}
	mean /= float64(len(envelope))
	if mean <= 0 {
		return 0
	}
	variance := 0.0
	for _, v := range envelope {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(envelope))
	return math.Sqrt(variance) / mean
}

// phaseStepVariance measures how much the sample-to-sample phase
// advance wobbles. FSK/GFSK hops between discrete frequencies, which
// shows up as variance in the instantaneous phase step; OOK/ASK at a
// single carrier has a comparatively steady phase step.
func phaseStepVariance(samples []complex128) float64 {
	if len(samples) < 3 {
		return 0
	}
	steps := make([]float64, 0, len(samples)-1)
	prevPhase := math.Atan2(imag(samples[0]), real(samples[0]))
	for i := 1; i < len(samples); i++ {
		phase := math.Atan2(imag(samples[i]), real(samples[i]))
		step := wrapPhase(phase - prevPhase)
		steps = append(steps, step)
		prevPhase = phase
	}
	mean := 0.0
	for _, s := range steps {
		mean += s
	}
	mean /= float64(len(steps))
	variance := 0.0
	for _, s := range steps {
		d := s - mean
		variance += d * d
	}
	return variance / float64(len(steps))
}

func wrapPhase(p float64) float64 {
	for p > math.Pi {
		p -= 2 * math.Pi
	}
	for p < -math.Pi {
		p += 2 * math.Pi
	}
	return p
}

// edgeDensity counts envelope rising/falling transitions per sample.
// PWM/PPM framing packs many short on/off pulses into a burst, giving
// it a much higher edge count than the single long pulse train typical
// of OOK or the continuous-envelope nature of FSK.
func edgeDensity(envelope []float64) float64 {
	if len(envelope) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range envelope {
		mean += v
	}
	mean /= float64(len(envelope))

	edges := 0
	above := envelope[0] > mean
	for _, v := range envelope[1:] {
		isAbove := v > mean
		if isAbove != above {
			edges++
			above = isAbove
		}
	}
	return float64(edges) / float64(len(envelope))
}
