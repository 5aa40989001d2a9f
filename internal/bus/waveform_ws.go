package bus

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WaveformHub pushes rx_waveform/spectrum events to a companion
// WebSocket channel, the teacher's primary transport for live SDR data
// (chat_websocket.go, user_spectrum_websocket.go). SSE (sse.go) remains
// the contract for the generic per-mode event stream (spec.md §6.1);
// this hub exists only for the SubGHz RX/Decode live envelope+spectrum
// preview, which is push-oriented binary/frequent data better suited to
// a persistent socket than a text/event-stream line per sample.
type WaveformHub struct {
	upgrader websocket.Upgrader
	bus      *Bus
}

// NewWaveformHub builds a hub bound to bus for its subghz-typed events.
func NewWaveformHub(b *Bus) *WaveformHub {
	return &WaveformHub{
		bus: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWaveform upgrades the connection and streams subghz waveform/
// spectrum/burst events until the client disconnects.
func (h *WaveformHub) ServeWaveform(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("bus: waveform upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe("subghz")
	defer sub.Close()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		ev, ok := sub.Next(2 * time.Second)
		if !ok {
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		switch ev.Type {
		case EventWaveform, EventSpectrum, EventBurst, EventRXLevel:
		default:
			continue
		}
		if err := conn.WriteJSON(ev.JSON()); err != nil {
			return
		}
	}
}
