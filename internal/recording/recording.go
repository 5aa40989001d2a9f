// Package recording implements the Recording Manager: one active
// NDJSON-append session per mode, with a manifest row persisted per
// session start/stop. Grounded on original_source/utils/recording.py.
package recording

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/store"
)

const manifestBucket = "recording_sessions"

// Session is one recording in progress or completed.
type Session struct {
	ID         string         `json:"id"`
	Mode       string         `json:"mode"`
	Label      string         `json:"label,omitempty"`
	FilePath   string         `json:"file_path"`
	StartedAt  time.Time      `json:"started_at"`
	StoppedAt  *time.Time     `json:"stopped_at,omitempty"`
	EventCount int            `json:"event_count"`
	SizeBytes  int64          `json:"size_bytes"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Compressed bool           `json:"compressed"`

	mu     sync.Mutex
	file   *os.File
	gzw    *gzip.Writer
	writer io.Writer
}

func (s *Session) open() error {
	if err := os.MkdirAll(filepath.Dir(s.FilePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	if s.Compressed {
		s.gzw = gzip.NewWriter(f)
		s.writer = s.gzw
	} else {
		s.writer = f
	}
	return nil
}

func (s *Session) writeEvent(record map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := s.writer.Write(line); err != nil {
		return err
	}
	if s.gzw != nil {
		if err := s.gzw.Flush(); err != nil {
			return err
		}
	} else if err := s.file.Sync(); err != nil {
		return err
	}
	s.EventCount++
	s.SizeBytes += int64(len(line))
	return nil
}

func (s *Session) closeFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gzw != nil {
		s.gzw.Close()
		s.gzw = nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.writer = nil
}

// Manager holds the one-active-session-per-mode invariant (spec.md
// §4.6 / §8 property — at most one active recording per mode) and
// routes fan-out events from the bus to the active session's file.
type Manager struct {
	dir      string
	compress bool
	store    store.Store

	mu           sync.Mutex
	activeByMode map[string]*Session
	activeByID   map[string]*Session
}

// New builds a Manager writing recordings under dir (one subdirectory
// per mode), gzip-compressing new session files when compress is true.
func New(dir string, compress bool, s store.Store) *Manager {
	return &Manager{
		dir:          dir,
		compress:     compress,
		store:        s,
		activeByMode: make(map[string]*Session),
		activeByID:   make(map[string]*Session),
	}
}

// Start begins a new recording session for mode, or returns the
// already-active session if one exists (spec.md: one active session per
// mode).
func (m *Manager) Start(mode, label string, metadata map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.activeByMode[mode]; ok {
		return existing, nil
	}

	id := uuid.New().String()
	startedAt := time.Now().UTC()
	ext := "jsonl"
	if m.compress {
		ext = "jsonl.gz"
	}
	filename := fmt.Sprintf("%s_%s_%s.%s", mode, startedAt.Format("20060102_150405"), id, ext)
	filePath := filepath.Join(m.dir, mode, filename)

	session := &Session{
		ID:         id,
		Mode:       mode,
		Label:      label,
		FilePath:   filePath,
		StartedAt:  startedAt,
		Metadata:   metadata,
		Compressed: m.compress,
	}
	if err := session.open(); err != nil {
		return nil, err
	}

	m.activeByMode[mode] = session
	m.activeByID[id] = session

	if m.store != nil {
		if err := m.store.Put(manifestBucket, id, session.snapshot()); err != nil {
			log.Printf("recording: failed to persist manifest row for %s: %v", id, err)
		}
	}
	return session, nil
}

// Stop ends the active recording identified by sessionID, or by mode if
// sessionID is blank. Returns nil if neither identifies an active
// session.
func (m *Manager) Stop(mode, sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var session *Session
	if sessionID != "" {
		session = m.activeByID[sessionID]
	} else if mode != "" {
		session = m.activeByMode[mode]
	}
	if session == nil {
		return nil
	}

	stoppedAt := time.Now().UTC()
	session.mu.Lock()
	session.StoppedAt = &stoppedAt
	session.mu.Unlock()
	session.closeFile()

	delete(m.activeByMode, session.Mode)
	delete(m.activeByID, session.ID)

	if m.store != nil {
		if err := m.store.Put(manifestBucket, session.ID, session.snapshot()); err != nil {
			log.Printf("recording: failed to update manifest row for %s: %v", session.ID, err)
		}
	}
	return session
}

// Handle implements bus.Sink: every non-keepalive/ping event is appended
// to the active recording for its mode, if any.
func (m *Manager) Handle(ev bus.Event) error {
	if ev.Type == bus.EventKeepalive || ev.Type == bus.EventPing {
		return nil
	}

	m.mu.Lock()
	session := m.activeByMode[ev.Mode]
	m.mu.Unlock()
	if session == nil {
		return nil
	}

	record := map[string]any{
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"mode":       ev.Mode,
		"event_type": string(ev.Type),
		"event":      ev.Payload,
	}
	if err := session.writeEvent(record); err != nil {
		log.Printf("recording: write failed for session %s: %v", session.ID, err)
	}
	return nil
}

// Active lists every currently-recording session.
func (m *Manager) Active() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.activeByMode))
	for _, s := range m.activeByMode {
		out = append(out, s.snapshot())
	}
	return out
}

// snapshot copies the fields safe to expose/serialize, excluding the
// open file handle.
func (s *Session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{
		ID:         s.ID,
		Mode:       s.Mode,
		Label:      s.Label,
		FilePath:   s.FilePath,
		StartedAt:  s.StartedAt,
		StoppedAt:  s.StoppedAt,
		EventCount: s.EventCount,
		SizeBytes:  s.SizeBytes,
		Metadata:   s.Metadata,
		Compressed: s.Compressed,
	}
}

// List returns every manifest row the store knows about (active and
// completed), ordered newest-started-first, capped to limit.
func (m *Manager) List(limit int) ([]Session, error) {
	if m.store == nil {
		return nil, nil
	}
	raw, err := m.store.List(manifestBucket)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(Session); ok {
			out = append(out, s)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartedAt.After(out[i].StartedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
