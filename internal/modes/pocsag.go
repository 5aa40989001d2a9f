package modes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

// pocsagAlpha matches "POCSAGn: Address: D  Function: D  Alpha: ..."
var pocsagAlpha = regexp.MustCompile(`^(POCSAG\d+):\s*Address:\s*(\d+)\s+Function:\s*(\d+)\s+Alpha:\s*(.*)$`)

// pocsagNumeric matches "POCSAGn: Address: D  Function: D  Numeric: ..."
var pocsagNumeric = regexp.MustCompile(`^(POCSAG\d+):\s*Address:\s*(\d+)\s+Function:\s*(\d+)\s+Numeric:\s*(.*)$`)

// pocsagToneOnly matches a tone-only address line with no message body.
var pocsagToneOnly = regexp.MustCompile(`^(POCSAG\d+):\s*Address:\s*(\d+)\s+Function:\s*(\d+)\s*$`)

// flexPipe matches "FLEX|timestamp|..|..|CAP|address|message" form.
var flexPipe = regexp.MustCompile(`^FLEX(?:\|[^|]*){4}\|(\d+)\|(.*)$`)

// flexSpace matches the space-delimited FLEX form: "FLEX: address message".
var flexSpace = regexp.MustCompile(`^FLEX:\s*(\d+)\s+(.*)$`)

// NewPOCSAG builds the pager mode controller: rtl_fm demodulates FM to
// baseband audio, multimon-ng decodes POCSAG/FLEX from it over a PTY
// so its C stdio stays unbuffered (spec.md §4.4.1).
func NewPOCSAG(registry *devreg.Registry, b *bus.Bus) *Controller {
	return New("pocsag", registry, b, buildPOCSAGCommand, parsePOCSAGLine, validateSDRStart)
}

func buildPOCSAGCommand(p StartParams) ([]Stage, error) {
	shellCmd := fmt.Sprintf(
		"rtl_fm -d %d -f %.0fM -M fm -s 22050 -p %d - | multimon-ng -t raw -a POCSAG512 -a POCSAG1200 -a POCSAG2400 -a FLEX -f alpha -",
		p.Device, p.Frequency, p.PPM,
	)
	return []Stage{{Argv: []string{"/bin/sh", "-c", shellCmd}, Style: procsup.StylePTY}}, nil
}

func parsePOCSAGLine(line string) (bus.EventType, map[string]any, bool) {
	line = strings.TrimRight(line, "\r\n")

	if m := pocsagAlpha.FindStringSubmatch(line); m != nil {
		message := strings.TrimSpace(m[4])
		if message == "" {
			message = "[No Message]"
		}
		return bus.EventMessage, map[string]any{
			"protocol": m[1], "address": m[2], "function": m[3],
			"msg_type": "Alpha", "message": message,
		}, true
	}
	if m := pocsagNumeric.FindStringSubmatch(line); m != nil {
		message := strings.TrimSpace(m[4])
		if message == "" {
			message = "[No Message]"
		}
		return bus.EventMessage, map[string]any{
			"protocol": m[1], "address": m[2], "function": m[3],
			"msg_type": "Numeric", "message": message,
		}, true
	}
	if m := pocsagToneOnly.FindStringSubmatch(line); m != nil {
		return bus.EventMessage, map[string]any{
			"protocol": m[1], "address": m[2], "function": m[3],
			"msg_type": "Tone", "message": "[Tone Only]",
		}, true
	}
	if m := flexPipe.FindStringSubmatch(line); m != nil {
		return bus.EventMessage, map[string]any{
			"protocol": "FLEX", "address": m[1], "function": "",
			"msg_type": "Alpha", "message": strings.TrimSpace(m[2]),
		}, true
	}
	if m := flexSpace.FindStringSubmatch(line); m != nil {
		return bus.EventMessage, map[string]any{
			"protocol": "FLEX", "address": m[1], "function": "",
			"msg_type": "Alpha", "message": strings.TrimSpace(m[2]),
		}, true
	}
	return "", nil, false
}
