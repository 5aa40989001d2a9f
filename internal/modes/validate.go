package modes

import (
	"fmt"

	"github.com/mitchross/intercept-sub000/internal/interr"
)

const (
	minGainDB  = 0
	maxGainDB  = 50
	minPPM     = -200
	maxPPM     = 200
	minFreqMHz = 1
	maxFreqMHz = 6000
)

// validateSDRStart is the shared range check for single-frequency,
// single-device SDR modes (spec.md §4.4 step 1): gain, PPM, and
// frequency must fall within hardware-plausible bounds before a device
// is ever claimed.
func validateSDRStart(p StartParams) error {
	if p.Gain < minGainDB || p.Gain > maxGainDB {
		return interr.New(interr.KindValidation, fmt.Sprintf("gain %d out of range [%d, %d]", p.Gain, minGainDB, maxGainDB))
	}
	if p.PPM < minPPM || p.PPM > maxPPM {
		return interr.New(interr.KindValidation, fmt.Sprintf("ppm %d out of range [%d, %d]", p.PPM, minPPM, maxPPM))
	}
	if p.Frequency != 0 && (p.Frequency < minFreqMHz || p.Frequency > maxFreqMHz) {
		return interr.New(interr.KindValidation, fmt.Sprintf("frequency %.3fMHz out of range [%d, %d]", p.Frequency, minFreqMHz, maxFreqMHz))
	}
	return nil
}

// validateMultiFreqStart is validateSDRStart plus a non-empty
// Frequencies list, for modes that hop or scan (ACARS, VDL2).
func validateMultiFreqStart(p StartParams) error {
	if err := validateSDRStart(p); err != nil {
		return err
	}
	if len(p.Frequencies) == 0 && p.Frequency == 0 {
		return interr.New(interr.KindValidation, "at least one frequency is required")
	}
	for _, f := range p.Frequencies {
		if f < minFreqMHz || f > maxFreqMHz {
			return interr.New(interr.KindValidation, fmt.Sprintf("frequency %.3fMHz out of range [%d, %d]", f, minFreqMHz, maxFreqMHz))
		}
	}
	return nil
}
