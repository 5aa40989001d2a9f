package recording

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/store"
)

func TestStartReturnsExistingSessionForSameMode(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, false, store.NewMemStore())

	s1, err := m.Start("pocsag", "", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s2, err := m.Start("pocsag", "", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s1.ID != s2.ID {
		t.Fatalf("expected second Start to return the same active session")
	}
}

func TestHandleWritesNDJSONLine(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, false, store.NewMemStore())
	session, err := m.Start("ais", "", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = m.Handle(bus.Event{Mode: "ais", Type: bus.EventVessel, Payload: map[string]any{"mmsi": "123"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	stopped := m.Stop("ais", "")
	if stopped == nil || stopped.ID != session.ID {
		t.Fatalf("expected Stop to return the started session")
	}
	if stopped.EventCount != 1 {
		t.Fatalf("expected 1 event recorded, got %d", stopped.EventCount)
	}

	data, err := os.ReadFile(session.FilePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty recording file")
	}
}

func TestHandleIgnoresKeepaliveAndPing(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, false, store.NewMemStore())
	m.Start("dsc", "", nil)

	m.Handle(bus.Event{Mode: "dsc", Type: bus.EventKeepalive})
	m.Handle(bus.Event{Mode: "dsc", Type: bus.EventPing})

	stopped := m.Stop("dsc", "")
	if stopped.EventCount != 0 {
		t.Fatalf("expected keepalive/ping to be ignored, got %d events", stopped.EventCount)
	}
}

func TestHandleNoActiveSessionIsNoop(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, false, store.NewMemStore())
	if err := m.Handle(bus.Event{Mode: "vdl2", Type: bus.EventAircraft, Payload: map[string]any{}}); err != nil {
		t.Fatalf("expected no error with no active session, got %v", err)
	}
}

func TestCompressedSessionWritesValidGzip(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, true, store.NewMemStore())
	session, err := m.Start("rtlamr", "", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Handle(bus.Event{Mode: "rtlamr", Type: bus.EventMessage, Payload: map[string]any{"id": 1}})
	m.Stop("rtlamr", "")

	if filepath.Ext(session.FilePath) != ".gz" {
		t.Fatalf("expected .gz extension, got %s", session.FilePath)
	}

	f, err := os.Open(session.FilePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected 1 decompressed line, got %d", lines)
	}
}

func TestActiveListsOnlyRunningSessions(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, false, store.NewMemStore())
	m.Start("meshtastic", "", nil)
	if len(m.Active()) != 1 {
		t.Fatalf("expected 1 active session")
	}
	m.Stop("meshtastic", "")
	if len(m.Active()) != 0 {
		t.Fatalf("expected 0 active sessions after stop")
	}
}
