package modes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/interr"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

const (
	aisTCPPort          = 5011
	aisReconnectDelay   = 2 * time.Second
	aisUpdateInterval   = 1 * time.Second
	aisSocketTimeout    = 5 * time.Second
	aisDialRetryBackoff = 500 * time.Millisecond
)

// AISController spawns AIS-catcher as a standalone TCP JSON server and
// connects to it as a client, aggregating per-vessel fields by MMSI and
// batching updates so the bus does not see one event per raw sentence
// (spec.md §4.4.3). It does not reuse Controller directly because its
// reader is a TCP client loop, not a pipeline LineSource drain.
type AISController struct {
	Registry *devreg.Registry
	Bus      *bus.Bus

	mu      sync.Mutex
	running bool
	handle  *procsup.Handle
	vessels map[string]map[string]any
	stopCh  chan struct{}
	wg      sync.WaitGroup
	device  int
}

// NewAIS builds the AIS mode controller.
func NewAIS(registry *devreg.Registry, b *bus.Bus) *AISController {
	return &AISController{Registry: registry, Bus: b, vessels: map[string]map[string]any{}}
}

// Start spawns AIS-catcher bound to localhost:aisTCPPort and begins the
// TCP client/aggregation loop.
func (a *AISController) Start(params StartParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return interr.New(interr.KindValidation, "ais is already running")
	}
	if err := validateSDRStart(params); err != nil {
		return err
	}

	if a.Registry != nil {
		if err := a.Registry.Claim(params.Device, "ais"); err != nil {
			return interr.Wrap(interr.KindDeviceBusy, err.Error(), err)
		}
	}

	argv := []string{
		"AIS-catcher", "-d", fmt.Sprintf("%d", params.Device),
		"-gr", "TUNER", fmt.Sprintf("%d", params.Gain),
		"-p", fmt.Sprintf("%d", params.PPM),
		"-N", fmt.Sprintf("%d", aisTCPPort),
	}
	h, err := procsup.SpawnPipe(argv)
	if err != nil {
		if a.Registry != nil {
			a.Registry.Release(params.Device)
		}
		return interr.Wrap(interr.KindSpawnFailure, "failed to spawn AIS-catcher", err)
	}

	a.handle = h
	a.device = params.Device
	a.running = true
	a.stopCh = make(chan struct{})
	a.vessels = map[string]map[string]any{}

	a.wg.Add(1)
	go a.clientLoop()

	a.Bus.Publish("ais", bus.Event{Type: bus.EventStatus, Payload: map[string]any{"status": "started"}})
	return nil
}

// Stop terminates AIS-catcher, stops the client loop, and releases the
// claimed device.
func (a *AISController) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	close(a.stopCh)
	h := a.handle
	device := a.device
	a.mu.Unlock()

	_ = procsup.SafeTerminate(h, 2*time.Second)
	a.wg.Wait()

	a.mu.Lock()
	a.running = false
	a.handle = nil
	a.mu.Unlock()

	if a.Registry != nil {
		a.Registry.Release(device)
	}
	a.Bus.Publish("ais", bus.Event{Type: bus.EventStatus, Payload: map[string]any{"status": "stopped"}})
	return nil
}

// Status reports whether AIS-catcher and its client loop are running.
func (a *AISController) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Running: a.running}
}

func (a *AISController) clientLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", aisTCPPort), aisSocketTimeout)
		if err != nil {
			select {
			case <-a.stopCh:
				return
			case <-time.After(aisReconnectDelay):
				continue
			}
		}

		a.drain(conn)
		conn.Close()

		select {
		case <-a.stopCh:
			return
		case <-time.After(aisReconnectDelay):
		}
	}
}

// drain reads newline-delimited JSON from conn, merges each message
// into its vessel's accumulated record by MMSI, and flushes pending
// vessel updates onto the bus every aisUpdateInterval.
func (a *AISController) drain(conn net.Conn) {
	reader := bufio.NewReader(conn)
	pending := map[string]bool{}
	lastFlush := time.Now()

	for {
		select {
		case <-a.stopCh:
			a.flush(pending)
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(aisSocketTimeout))
		line, err := reader.ReadString('\n')
		if line != "" {
			var msg map[string]any
			if jerr := json.Unmarshal([]byte(strings.TrimSpace(line)), &msg); jerr == nil {
				if mmsi := a.mergeVessel(msg); mmsi != "" {
					pending[mmsi] = true
				}
			}
		}
		if err != nil {
			// read timeout is expected while idle; anything else ends this connection
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(lastFlush) >= aisUpdateInterval {
					a.flush(pending)
					pending = map[string]bool{}
					lastFlush = time.Now()
				}
				continue
			}
			a.flush(pending)
			return
		}

		if time.Since(lastFlush) >= aisUpdateInterval {
			a.flush(pending)
			pending = map[string]bool{}
			lastFlush = time.Now()
		}
	}
}

func (a *AISController) flush(pending map[string]bool) {
	if len(pending) == 0 {
		return
	}
	a.mu.Lock()
	batch := make([]map[string]any, 0, len(pending))
	for mmsi := range pending {
		if v, ok := a.vessels[mmsi]; ok {
			batch = append(batch, cloneMap(v))
		}
	}
	a.mu.Unlock()

	for _, v := range batch {
		a.Bus.Publish("ais", bus.Event{Type: bus.EventVessel, Payload: v})
	}
}

// mergeVessel folds one AIS-catcher record into the running per-MMSI
// vessel state, discarding sentinel "unavailable" values (e.g. AIS uses
// 181° for latitude when the field is not present in this sentence).
func (a *AISController) mergeVessel(msg map[string]any) string {
	mmsiVal, ok := msg["mmsi"]
	if !ok {
		return ""
	}
	mmsi := fmt.Sprintf("%v", mmsiVal)

	a.mu.Lock()
	defer a.mu.Unlock()
	vessel, ok := a.vessels[mmsi]
	if !ok {
		vessel = map[string]any{"mmsi": mmsi}
		a.vessels[mmsi] = vessel
	}

	lat := firstFloat(msg, "latitude", "lat")
	lon := firstFloat(msg, "longitude", "lon")
	if lat != nil && lon != nil && *lat >= -90 && *lat <= 90 && *lon >= -180 && *lon <= 180 {
		vessel["lat"] = *lat
		vessel["lon"] = *lon
	}
	if speed := firstFloat(msg, "speed"); speed != nil && *speed < 102.3 {
		vessel["speed"] = *speed
	}
	if course := firstFloat(msg, "course"); course != nil && *course < 360 {
		vessel["course"] = *course
	}
	if heading := firstFloat(msg, "heading"); heading != nil && *heading < 511 {
		vessel["heading"] = int(*heading)
	}
	if v, ok := msg["status"]; ok {
		vessel["nav_status"] = v
	}
	if v, ok := msg["status_text"]; ok {
		vessel["nav_status_text"] = v
	}
	if name := trimAISString(msg["shipname"]); name != "" {
		vessel["name"] = name
	}
	if callsign := trimAISString(msg["callsign"]); callsign != "" {
		vessel["callsign"] = callsign
	}
	if v, ok := msg["shiptype"]; ok {
		vessel["ship_type"] = v
	}
	if v, ok := msg["shiptype_text"]; ok {
		vessel["ship_type_text"] = v
	}
	if dest := trimAISString(msg["destination"]); dest != "" {
		vessel["destination"] = dest
	}
	if v, ok := msg["eta"]; ok {
		vessel["eta"] = v
	}
	if bow := firstFloat(msg, "to_bow"); bow != nil {
		if stern := firstFloat(msg, "to_stern"); stern != nil {
			if length := *bow + *stern; length > 0 {
				vessel["length"] = length
			}
		}
	}
	if port := firstFloat(msg, "to_port"); port != nil {
		if starboard := firstFloat(msg, "to_starboard"); starboard != nil {
			if width := *port + *starboard; width > 0 {
				vessel["width"] = width
			}
		}
	}
	if v, ok := msg["draught"]; ok {
		vessel["draught"] = v
	}

	return mmsi
}

func firstFloat(msg map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := msg[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return &n
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func trimAISString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(s), "@")
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
