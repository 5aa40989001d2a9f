// Package toolsdetect inspects external tool help/version output each
// time Detect is called and records a capability enum, so downstream
// code branches on the enum rather than on string inspection (spec.md
// §9 "Duck-typed tool detection"). It is grounded on
// decoder_spawner.go's CheckDecoderAvailability, generalised from a
// binary-exists check to a parsed capability record.
package toolsdetect

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
)

// JSONFlavor identifies which command-line flag shape a tool uses to
// request JSON output, resolved via help-text inspection rather
// than assumed (spec.md §4.4 step 3 names acarsdec's three forks).
type JSONFlavor int

const (
	FlavorUnknown JSONFlavor = iota
	FlavorJFlag              // -j (TLeconte v4 acarsdec)
	FlavorOFlag              // -o 4 (TLeconte v3 acarsdec)
	FlavorOutputFlag         // --output json:file (f00b4r0 acarsdec)
)

// DeviceFlag identifies which device-addressing flag family a tool uses.
type DeviceFlag int

const (
	DeviceFlagUnknown DeviceFlag = iota
	DeviceFlagRTL                // -d <index> (rtl_* family)
	DeviceFlagSoapy              // --device driver=... (SoapySDR)
)

// Capability is what detection establishes about one external tool.
type Capability struct {
	Name       string
	Path       string
	Available  bool
	Version    *goversion.Version
	JSONFlavor JSONFlavor
	DeviceFlag DeviceFlag
	HelpText   string
}

// detectTimeout bounds how long a --help/--version probe may run; these
// tools must never hang controller startup.
const detectTimeout = 3 * time.Second

var versionPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// Detect locates binaryName on PATH (or uses explicitPath if non-empty),
// runs it once with every entry of probeArgs, and classifies the longest
// output as its help text (empty when no probeArgs are given).
func Detect(binaryName, explicitPath string, probeArgs ...[]string) Capability {
	capb := Capability{Name: binaryName}

	path := explicitPath
	if path == "" {
		if p, err := exec.LookPath(binaryName); err == nil {
			path = p
		}
	}
	if path == "" {
		if _, err := os.Stat(binaryName); err == nil {
			path = binaryName
		}
	}
	capb.Path = path
	if path == "" {
		return capb
	}

	var helpText string
	for _, args := range probeArgs {
		out, _ := runWithTimeout(path, args, detectTimeout)
		if len(out) > len(helpText) {
			helpText = out
		}
	}
	capb.Available = true
	capb.HelpText = helpText
	capb.JSONFlavor = classifyJSONFlavor(helpText)
	capb.DeviceFlag = classifyDeviceFlag(helpText)

	if m := versionPattern.FindString(helpText); m != "" {
		if v, err := goversion.NewVersion(m); err == nil {
			capb.Version = v
		}
	}

	return capb
}

// AtLeast reports whether the detected version is >= min, treating an
// undetected version as satisfying any minimum (the tool may not print
// one, but its presence was otherwise confirmed by Detect).
func (c Capability) AtLeast(min string) bool {
	if c.Version == nil {
		return true
	}
	minV, err := goversion.NewVersion(min)
	if err != nil {
		return true
	}
	return c.Version.GreaterThanOrEqual(minV)
}

func classifyJSONFlavor(helpText string) JSONFlavor {
	lower := strings.ToLower(helpText)
	switch {
	case strings.Contains(lower, "--output") && strings.Contains(lower, "json:"):
		return FlavorOutputFlag
	case strings.Contains(lower, "-o ") && strings.Contains(lower, "output format"):
		return FlavorOFlag
	case strings.Contains(lower, "-j"):
		return FlavorJFlag
	default:
		return FlavorUnknown
	}
}

func classifyDeviceFlag(helpText string) DeviceFlag {
	lower := strings.ToLower(helpText)
	switch {
	case strings.Contains(lower, "soapysdr") || strings.Contains(lower, "driver="):
		return DeviceFlagSoapy
	case strings.Contains(lower, "-d "):
		return DeviceFlagRTL
	default:
		return DeviceFlagUnknown
	}
}

func runWithTimeout(path string, args []string, timeout time.Duration) (string, error) {
	cmd := exec.Command(path, args...)
	var combined strings.Builder
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Start(); err != nil {
		return "", err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return combined.String(), err
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return combined.String(), fmt.Errorf("timeout probing %s", path)
	}
}
