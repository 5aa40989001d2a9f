package modes

import (
	"encoding/json"
	"fmt"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/correlator"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

// defaultVDL2Frequencies are common worldwide VDL Mode 2 channels, in Hz.
var defaultVDL2Frequencies = []float64{136975000, 136725000, 136775000, 136800000, 136875000}

// NewVDL2 builds the VDL2 mode controller (spec.md §4.4.3): a single
// binary, JSON-per-line output, no unique parsing beyond decoding the
// record and feeding it to the Flight Correlator alongside ACARS.
func NewVDL2(registry *devreg.Registry, b *bus.Bus, corr *correlator.Correlator) *Controller {
	build := func(p StartParams) ([]Stage, error) {
		freqs := p.Frequencies
		if len(freqs) == 0 {
			freqs = defaultVDL2Frequencies
		}
		argv := []string{"dumpvdl2", "--output", "decoded:json"}
		if p.SDRType != "" && p.SDRType != "rtlsdr" {
			argv = append(argv, "--soapysdr", fmt.Sprintf("driver=%s,device=%d", p.SDRType, p.Device))
		} else {
			argv = append(argv, "--rtlsdr", fmt.Sprintf("%d", p.Device))
		}
		if p.Gain != 0 {
			argv = append(argv, "--gain", fmt.Sprintf("%d", p.Gain))
		}
		if p.PPM != 0 {
			argv = append(argv, "--correction", fmt.Sprintf("%d", p.PPM))
		}
		for _, f := range freqs {
			argv = append(argv, fmt.Sprintf("%.0f", f))
		}
		return []Stage{{Argv: argv, Style: procsup.StylePipe}}, nil
	}

	parse := func(line string) (bus.EventType, map[string]any, bool) {
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			return "", nil, false
		}
		if corr != nil {
			corr.AddVDL2Message(data)
		}
		return bus.EventAircraft, data, true
	}

	return New("vdl2", registry, b, build, parse, validateMultiFreqStart)
}

// NewDSC builds the DSC (Digital Selective Calling, marine distress/
// safety) mode controller over a GNU Radio based decoder emitting one
// JSON record per line on stdout.
func NewDSC(registry *devreg.Registry, b *bus.Bus) *Controller {
	build := func(p StartParams) ([]Stage, error) {
		freq := p.Frequency
		if freq == 0 {
			freq = 2187.5 // kHz, distress and safety calling frequency
		}
		argv := []string{"dsc_decoder", "-d", fmt.Sprintf("%d", p.Device), "-f", fmt.Sprintf("%.4f", freq), "-g", fmt.Sprintf("%d", p.Gain), "-p", fmt.Sprintf("%d", p.PPM)}
		return []Stage{{Argv: argv, Style: procsup.StylePTY}}, nil
	}
	return New("dsc", registry, b, build, parseGenericJSONLine(bus.EventInfo), validateSDRStart)
}

// NewRTLAMR builds the RTLAMR (AMR utility meter) mode controller.
func NewRTLAMR(registry *devreg.Registry, b *bus.Bus) *Controller {
	build := func(p StartParams) ([]Stage, error) {
		rtltcp := fmt.Sprintf("rtl_tcp -d %d -g %d -p %d", p.Device, p.Gain, p.PPM)
		shellCmd := rtltcp + " & sleep 1 && rtlamr -format=json -msgtype=all"
		return []Stage{{Argv: []string{"/bin/sh", "-c", shellCmd}, Style: procsup.StylePipe}}, nil
	}
	return New("rtlamr", registry, b, build, parseGenericJSONLine(bus.EventInfo), validateSDRStart)
}

// NewDMR builds the DMR (Digital Mobile Radio) mode controller over
// dsd-fme with an RTL-SDR front end.
func NewDMR(registry *devreg.Registry, b *bus.Bus) *Controller {
	build := func(p StartParams) ([]Stage, error) {
		shellCmd := fmt.Sprintf(
			"rtl_fm -d %d -f %.0fM -M fm -s 48000 -g %d -p %d - | dsd-fme -fr -i - -o null -j",
			p.Device, p.Frequency, p.Gain, p.PPM,
		)
		return []Stage{{Argv: []string{"/bin/sh", "-c", shellCmd}, Style: procsup.StylePTY}}, nil
	}
	return New("dmr", registry, b, build, parseGenericJSONLine(bus.EventInfo), validateSDRStart)
}

// NewWeatherSat builds the Weather-Sat (NOAA APT / Meteor LRPT) mode
// controller: a satellite pass decoder emitting status/image-progress
// JSON lines while it demodulates.
func NewWeatherSat(registry *devreg.Registry, b *bus.Bus) *Controller {
	build := func(p StartParams) ([]Stage, error) {
		argv := []string{
			"satdump", "noaa_apt_live", fmt.Sprintf("%.3f", p.Frequency),
			"--samplerate", "2400000", "--source", "rtlsdr", "--device-index", fmt.Sprintf("%d", p.Device),
			"--gain", fmt.Sprintf("%d", p.Gain), "--ppm", fmt.Sprintf("%d", p.PPM),
		}
		return []Stage{{Argv: argv, Style: procsup.StylePTY}}, nil
	}
	return New("weather_sat", registry, b, build, parseGenericJSONLine(bus.EventInfo), validateSDRStart)
}

// parseGenericJSONLine builds a LineParser for modes whose decoder
// emits one flat JSON object per line with no mode-specific enrichment
// beyond tagging it with eventType.
func parseGenericJSONLine(eventType bus.EventType) LineParser {
	return func(line string) (bus.EventType, map[string]any, bool) {
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			return "", nil, false
		}
		return eventType, data, true
	}
}
