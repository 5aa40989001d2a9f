package toolsdetect

import "testing"

func TestDetectMissingBinary(t *testing.T) {
	c := Detect("no-such-tool-xyz", "", []string{"--help"})
	if c.Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
}

func TestDetectPresentBinaryClassifiesHelp(t *testing.T) {
	// /bin/echo stands in for a real decoder: its "help text" is just
	// whatever we ask it to print, enough to exercise the classifier.
	c := Detect("echo", "/bin/echo", []string{"-j --device driver=rtlsdr version 1.2.3"})
	if !c.Available {
		t.Fatalf("expected echo to be detected as available")
	}
	if c.JSONFlavor != FlavorJFlag {
		t.Fatalf("expected -j flavor, got %v", c.JSONFlavor)
	}
	if c.DeviceFlag != DeviceFlagSoapy {
		t.Fatalf("expected soapy device flag, got %v", c.DeviceFlag)
	}
	if c.Version == nil || c.Version.String() != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %v", c.Version)
	}
	if !c.AtLeast("1.0.0") {
		t.Fatalf("1.2.3 should satisfy AtLeast 1.0.0")
	}
	if c.AtLeast("2.0.0") {
		t.Fatalf("1.2.3 should not satisfy AtLeast 2.0.0")
	}
}
