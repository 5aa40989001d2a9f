package modes

import (
	"time"

	"github.com/mitchross/intercept-sub000/internal/procsup"
)

// pipeline wires one or more child-process stages spawned for a mode
// start. Multi-stage pipelines (POCSAG's rtl_fm | multimon-ng) are
// built as a single shell invocation by their CommandBuilder, so a
// pipeline here almost always holds exactly one Handle; the type stays
// a slice so BuildCommand implementations may spawn auxiliary
// processes that must terminate together.
type pipeline struct {
	handles  []*procsup.Handle
	finalOut procsup.LineSource
}

func spawnPipeline(stages []Stage) (*pipeline, error) {
	if len(stages) == 0 {
		return nil, errNoStages
	}

	pl := &pipeline{}
	for i, stage := range stages {
		var h *procsup.Handle
		var err error
		switch stage.Style {
		case procsup.StylePTY:
			h, err = procsup.SpawnPTY(stage.Argv)
		case procsup.StyleTCPDaemon:
			h, err = procsup.SpawnTCPDaemon(stage.Argv, 0)
		default:
			h, err = procsup.SpawnPipe(stage.Argv)
		}
		if err != nil {
			pl.terminate(2 * time.Second)
			return nil, err
		}
		pl.handles = append(pl.handles, h)
		if i == len(stages)-1 {
			pl.finalOut = procsup.NewLineSource(h)
		}
	}
	return pl, nil
}

// output returns the final stage's line source, what readLoop drains.
func (pl *pipeline) output() procsup.LineSource {
	return pl.finalOut
}

func (pl *pipeline) terminate(grace time.Duration) {
	for i := len(pl.handles) - 1; i >= 0; i-- {
		_ = procsup.SafeTerminate(pl.handles[i], grace)
	}
}

// lastStderr reads a short tail of the last stage's stderr for
// device-disconnect pattern matching (spec.md §7).
func lastStderr(pl *pipeline) string {
	if pl == nil || len(pl.handles) == 0 {
		return ""
	}
	h := pl.handles[len(pl.handles)-1]
	if h.Stderr == nil {
		return ""
	}
	buf := make([]byte, 512)
	n, _ := h.Stderr.Read(buf)
	return string(buf[:n])
}

var errNoStages = &pipelineError{"no pipeline stages given"}

type pipelineError struct{ msg string }

func (e *pipelineError) Error() string { return e.msg }
