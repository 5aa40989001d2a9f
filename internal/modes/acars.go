package modes

import (
	"encoding/json"
	"fmt"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/correlator"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/procsup"
	"github.com/mitchross/intercept-sub000/internal/toolsdetect"
)

// defaultACARSFrequencies are North America's primary VHF ACARS
// channels, used when the caller omits Frequencies.
var defaultACARSFrequencies = []float64{131.550, 130.025, 129.125}

// NewACARS builds the ACARS mode controller. acarsdec ships as three
// forks with different JSON output flags (spec.md §4.4 step 3); the
// flag is resolved from acarsdec's --help output via toolsdetect on
// every start rather than assumed.
func NewACARS(registry *devreg.Registry, b *bus.Bus, corr *correlator.Correlator) *Controller {
	c := &acarsState{corr: corr}
	ctrl := New("acars", registry, b, c.buildCommand, c.parseLine, validateMultiFreqStart)
	return ctrl
}

type acarsState struct {
	corr *correlator.Correlator
}

func (s *acarsState) buildCommand(p StartParams) ([]Stage, error) {
	freqs := p.Frequencies
	if len(freqs) == 0 {
		freqs = defaultACARSFrequencies
	}

	capb := toolsdetect.Detect("acarsdec", "", []string{"--help"})
	if !capb.Available {
		return nil, fmt.Errorf("acarsdec not found on PATH")
	}

	argv := []string{capb.Path}
	switch capb.JSONFlavor {
	case toolsdetect.FlavorOFlag:
		argv = append(argv, "-o", "4")
	case toolsdetect.FlavorOutputFlag:
		argv = append(argv, "--output", "json:file:-")
	default:
		argv = append(argv, "-j")
	}

	switch capb.DeviceFlag {
	case toolsdetect.DeviceFlagSoapy:
		argv = append(argv, "-s", fmt.Sprintf("driver=%s", defaultString(p.SDRType, "rtlsdr")))
	default:
		argv = append(argv, "-r", fmt.Sprintf("%d", p.Device))
	}
	argv = append(argv, "-g", fmt.Sprintf("%d", p.Gain), "-p", fmt.Sprintf("%d", p.PPM))
	for _, f := range freqs {
		argv = append(argv, fmt.Sprintf("%.3f", f))
	}

	return []Stage{{Argv: argv, Style: procsup.StylePipe}}, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// parseLine decodes one acarsdec JSON line, enriches it with a label
// description/message_type/parsed payload, and feeds the correlator.
func (s *acarsState) parseLine(line string) (bus.EventType, map[string]any, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return "", nil, false
	}

	label, _ := data["label"].(string)
	text, _ := data["text"].(string)
	if text == "" {
		text, _ = data["msg"].(string)
	}

	labelDescription, messageType, parsed := translateMessage(label, text)
	data["label_description"] = labelDescription
	data["message_type"] = messageType
	if parsed != nil {
		data["parsed"] = parsed
	}

	if s.corr != nil {
		s.corr.AddACARSMessage(data)
	}

	return bus.EventAircraft, data, true
}
