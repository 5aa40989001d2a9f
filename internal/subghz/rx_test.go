package subghz

import (
	"sync"
	"testing"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/config"
)

func TestRXSessionProcessAccumulatesBurstsAndOffset(t *testing.T) {
	b := bus.New(64, nil)
	var mu sync.Mutex
	var burstEvents int
	b.AddSink(bus.SinkFunc(func(ev bus.Event) error {
		if ev.Type == bus.EventBurst {
			mu.Lock()
			burstEvents++
			mu.Unlock()
		}
		return nil
	}))

	e := New(&config.SubGHzConfig{CapturesDir: t.TempDir()}, b)
	const sampleRate = 250000
	rx := &rxSession{
		engine:     e,
		sampleRate: sampleRate,
		segmenter:  newBurstSegmenter(sampleRate),
	}

	var offset float64
	noise := iqBytes(rx.segmenter.windowLen*5, 1)
	signal := iqBytes(rx.segmenter.windowLen*15, 30)
	tail := iqBytes(rx.segmenter.windowLen*45, 1)

	rx.process(noise, &offset)
	rx.process(signal, &offset)
	rx.process(tail, &offset)

	wantOffset := float64(len(noise)+len(signal)+len(tail)) / 2 / float64(sampleRate)
	if offset < wantOffset-1e-9 || offset > wantOffset+1e-9 {
		t.Fatalf("expected offset to track total samples processed, got %f want %f", offset, wantOffset)
	}

	rx.mu.Lock()
	n := len(rx.bursts)
	rx.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one accumulated burst, got %d", n)
	}

	mu.Lock()
	got := burstEvents
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected one burst event published, got %d", got)
	}
}
