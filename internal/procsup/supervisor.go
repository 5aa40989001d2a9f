// Package procsup is the Process Supervisor: it spawns, tracks, and
// terminates the external DSP tools the Mode & Device Orchestrator
// delegates to, per spec.md §4.1. Three I/O styles are supported: plain
// pipes, a pseudoterminal (for tools that line-buffer unless attached to
// a TTY), and a backgrounded TCP daemon the caller connects a client
// socket to after a short warm-up.
//
// The shape — build *exec.Cmd, Start it, track it, Wait for it in a
// goroutine — is the one decoder_spawner.go uses for jt9/wsprd,
// generalised here to three I/O styles and a global registry.
package procsup

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/mitchross/intercept-sub000/internal/interr"
)

// IOStyle identifies how a child's output is attached.
type IOStyle int

const (
	// StylePipe attaches plain os/exec stdout/stderr pipes.
	StylePipe IOStyle = iota
	// StylePTY allocates a pseudoterminal; the child sees a TTY on
	// stdout so C stdio disables line buffering.
	StylePTY
	// StyleTCPDaemon backgrounds the child and leaves output attachment
	// to a separate TCP client connection the caller makes after a
	// short warm-up (AIS-catcher's shape).
	StyleTCPDaemon
)

// Handle is a supervised child process plus its I/O plumbing. It is
// never reused across a spawn/terminate cycle.
type Handle struct {
	Name   string         // argv[0], for diagnostics and kill-by-name
	Style  IOStyle
	Cmd    *exec.Cmd
	Stdout io.ReadCloser  // StylePipe
	Stderr io.ReadCloser  // StylePipe and SpawnTCPDaemon; nil for StylePTY (stderr goes to the PTY)
	Stdin  io.WriteCloser // StylePipe, only set via SpawnPipeWithStdin
	PTY    *os.File       // StylePTY master fd

	mu          sync.Mutex
	terminating bool
	exited      bool
	exitErr     error
	exitCh      chan struct{}
}

// Wait blocks until the child exits and returns its exit error (nil on
// clean exit). Safe to call from multiple goroutines.
func (h *Handle) Wait() error {
	<-h.exitCh
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Exited reports whether the child has already exited.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func (h *Handle) markExited(err error) {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	h.exitErr = err
	h.mu.Unlock()
	close(h.exitCh)
}

// StartWait is the grace window spec.md §5 calls PROCESS_START_WAIT: a
// child that dies before this elapses is treated as a spawn failure, not
// a normal exit.
const StartWait = 200 * time.Millisecond

// SpawnPipe spawns argv with plain stdout/stderr pipes. On any error it
// guarantees no half-started process is left behind.
func SpawnPipe(argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, interr.New(interr.KindValidation, "empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, "stderr pipe", err)
	}

	h := &Handle{Name: argv[0], Style: StylePipe, Cmd: cmd, Stdout: stdout, Stderr: stderr, exitCh: make(chan struct{})}

	if err := cmd.Start(); err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, fmt.Sprintf("exec %s", argv[0]), err)
	}
	defaultRegistry.register(h)
	go h.reap()

	return h, waitPastStartWindow(h, stderr)
}

// SpawnPipeWithStdin is SpawnPipe plus a writable stdin pipe, for
// children that consume a byte stream on stdin rather than reading a
// file or socket themselves (rtl_433's "-r cs8:-" in the SubGHz Decode
// pipeline).
func SpawnPipeWithStdin(argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, interr.New(interr.KindValidation, "empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, "stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, "stderr pipe", err)
	}

	h := &Handle{Name: argv[0], Style: StylePipe, Cmd: cmd, Stdin: stdin, Stdout: stdout, Stderr: stderr, exitCh: make(chan struct{})}

	if err := cmd.Start(); err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, fmt.Sprintf("exec %s", argv[0]), err)
	}
	defaultRegistry.register(h)
	go h.reap()

	return h, waitPastStartWindow(h, stderr)
}

// SpawnPTY spawns argv with stdout/stderr attached to a pseudoterminal
// master/slave pair, so line-buffered C stdio on the child side behaves
// like it is talking to an interactive terminal. Required for
// multimon-ng, acarsdec, SatDump, and the DSC decoder (spec.md §4.1).
func SpawnPTY(argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, interr.New(interr.KindValidation, "empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	setProcessGroup(cmd)

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, fmt.Sprintf("pty start %s", argv[0]), err)
	}

	h := &Handle{Name: argv[0], Style: StylePTY, Cmd: cmd, PTY: master, exitCh: make(chan struct{})}
	defaultRegistry.register(h)
	go h.reap()

	return h, waitPastStartWindow(h, nil)
}

// SpawnTCPDaemon spawns argv detached (its own process group/session) so
// it survives as a background daemon; the caller is expected to connect
// a TCP client to port after a short warm-up once this returns.
func SpawnTCPDaemon(argv []string, port int) (*Handle, error) {
	if len(argv) == 0 {
		return nil, interr.New(interr.KindValidation, "empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	setProcessGroup(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, "stderr pipe", err)
	}

	h := &Handle{Name: argv[0], Style: StyleTCPDaemon, Cmd: cmd, Stderr: stderr, exitCh: make(chan struct{})}

	if err := cmd.Start(); err != nil {
		return nil, interr.Wrap(interr.KindSpawnFailure, fmt.Sprintf("exec %s", argv[0]), err)
	}
	defaultRegistry.register(h)
	go h.reap()

	if err := waitPastStartWindow(h, stderr); err != nil {
		return nil, err
	}
	_ = port // unused here; the caller dials it
	return h, nil
}

func (h *Handle) reap() {
	err := h.Cmd.Wait()
	if h.PTY != nil {
		h.PTY.Close()
	}
	defaultRegistry.unregister(h)
	h.markExited(err)
}

// waitPastStartWindow blocks for StartWait; if the child has already
// exited by then, it is a spawn failure and stderr is drained for
// diagnostics (trimmed to ~200 bytes per spec.md §7).
func waitPastStartWindow(h *Handle, stderr io.Reader) error {
	timer := time.NewTimer(StartWait)
	defer timer.Stop()

	select {
	case <-h.exitCh:
		msg := ""
		if stderr != nil {
			msg = drainTrimmed(stderr, 200)
		}
		return interr.New(interr.KindSpawnFailure, fmt.Sprintf("%s exited during start window: %s", h.Name, msg))
	case <-timer.C:
		return nil
	}
}

func drainTrimmed(r io.Reader, max int) string {
	var sb strings.Builder
	sc := bufio.NewScanner(r)
	for sc.Scan() && sb.Len() < max {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	s := sb.String()
	if len(s) > max {
		s = s[:max]
	}
	return strings.TrimSpace(s)
}

// setProcessGroup arranges for the child to start its own process
// group, so SafeTerminate can signal the whole group (child plus any
// grandchildren it forks, e.g. rtl_fm | multimon-ng pipelines spawned
// via a shell) rather than just the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SafeTerminate sends SIGTERM to h's process group, waits grace, then
// sends SIGKILL if the child is still alive. It closes the PTY master
// fd (if any) and is never re-entrant on the same handle.
func SafeTerminate(h *Handle, grace time.Duration) error {
	h.mu.Lock()
	if h.terminating {
		h.mu.Unlock()
		return nil
	}
	h.terminating = true
	h.mu.Unlock()

	if h.Exited() {
		return nil
	}

	pgid := h.Cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-h.exitCh:
		return nil
	case <-time.After(grace):
	}

	if !h.Exited() {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-h.exitCh
	}
	return nil
}

// KillAllMatching runs SafeTerminate (SIGTERM, then SIGKILL after 2s) on
// every registered handle whose Name contains pattern, for emergency
// cleanup of orphaned tools (rtl_fm, multimon-ng, ...), and returns how
// many handles matched.
func KillAllMatching(pattern string) int {
	killed := 0
	for _, h := range defaultRegistry.snapshot() {
		if strings.Contains(h.Name, pattern) {
			if err := SafeTerminate(h, 2*time.Second); err != nil {
				log.Printf("procsup: kill-all-matching %s: %v", h.Name, err)
			}
			killed++
		}
	}
	return killed
}
