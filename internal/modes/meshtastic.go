// Package modes: Meshtastic support. Unlike every other mode,
// Meshtastic talks to a USB/serial LoRa device rather than claiming an
// SDR, so it is its own engine instead of a Controller instantiation
// (spec.md §4.4.4). Grounded on meshtastic.py's MeshtasticClient
// (node tracking, portnum filtering, PSK parsing).
package modes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/mitchross/intercept-sub000/internal/bus"
)

// broadcastAddr is Meshtastic's reserved all-nodes destination.
const broadcastAddr = 0xFFFFFFFF

// meshPacket is the subset of a decoded Meshtastic packet this engine
// cares about. The wire format is a binary-framed protobuf stream in
// the real firmware; this engine consumes the device's line-oriented
// debug/JSON bridge mode, mirroring the shape the Python SDK's pubsub
// callback already hands application code.
type meshPacket struct {
	From     uint32         `json:"from"`
	To       uint32         `json:"to"`
	Channel  int            `json:"channel"`
	RxRSSI   *int           `json:"rxRssi"`
	RxSNR    *float64       `json:"rxSnr"`
	HopLimit *int           `json:"hopLimit"`
	Decoded  map[string]any `json:"decoded"`
}

// ignoredPortnums are internal protocol chatter filtered from the
// user-visible message stream, though they still update the node map.
var ignoredPortnums = map[string]bool{
	"ROUTING_APP": true, "ADMIN_APP": true, "REPLY_APP": true,
	"STORE_FORWARD_APP": true, "RANGE_TEST_APP": true, "PAXCOUNTER_APP": true,
	"REMOTE_HARDWARE_APP": true, "SIMULATOR_APP": true, "MAP_REPORT_APP": true,
	"TELEMETRY_APP": true, "POSITION_APP": true, "NODEINFO_APP": true,
}

// Node is a tracked Meshtastic node enriched by NODEINFO/POSITION/
// TELEMETRY packets.
type Node struct {
	Num                uint32     `json:"num"`
	UserID             string     `json:"id"`
	LongName           string     `json:"long_name"`
	ShortName          string     `json:"short_name"`
	HWModel            string     `json:"hw_model"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	Altitude           *int       `json:"altitude,omitempty"`
	BatteryLevel       *int       `json:"battery_level,omitempty"`
	SNR                *float64   `json:"snr,omitempty"`
	LastHeard          *time.Time `json:"last_heard,omitempty"`
	Voltage            *float64   `json:"voltage,omitempty"`
	ChannelUtilization *float64   `json:"channel_utilization,omitempty"`
	AirUtilTx          *float64   `json:"air_util_tx,omitempty"`
	Temperature        *float64   `json:"temperature,omitempty"`
	Humidity           *float64   `json:"humidity,omitempty"`
	BarometricPressure *float64   `json:"barometric_pressure,omitempty"`
}

// MeshtasticEngine connects to a Meshtastic device over serial,
// maintains the node map, and publishes filtered text messages.
type MeshtasticEngine struct {
	Bus *bus.Bus

	mu      sync.Mutex
	port    serial.Port
	running bool
	nodes   map[uint32]*Node
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMeshtastic builds a Meshtastic engine publishing onto b.
func NewMeshtastic(b *bus.Bus) *MeshtasticEngine {
	return &MeshtasticEngine{Bus: b, nodes: map[uint32]*Node{}}
}

// Connect opens devicePath (e.g. /dev/ttyUSB0) at the device's fixed
// baud rate and begins reading packets.
func (m *MeshtasticEngine) Connect(devicePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	mode := &serial.Mode{BaudRate: 115200}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return fmt.Errorf("opening meshtastic device %s: %w", devicePath, err)
	}

	m.port = port
	m.running = true
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.readLoop()

	m.Bus.Publish("meshtastic", bus.Event{Type: bus.EventStatus, Payload: map[string]any{"status": "started", "device": devicePath}})
	return nil
}

// Disconnect closes the serial port and stops the read loop.
func (m *MeshtasticEngine) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	port := m.port
	m.mu.Unlock()

	if port != nil {
		port.Close()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.port = nil
	m.mu.Unlock()

	m.Bus.Publish("meshtastic", bus.Event{Type: bus.EventStatus, Payload: map[string]any{"status": "stopped"}})
}

func (m *MeshtasticEngine) readLoop() {
	defer m.wg.Done()

	buf := make([]byte, 4096)
	var pending []byte
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		n, err := m.port.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)

		for {
			idx := indexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(string(pending[:idx]))
			pending = pending[idx+1:]
			if line == "" {
				continue
			}
			m.handleLine(line)
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (m *MeshtasticEngine) handleLine(line string) {
	var pkt meshPacket
	if err := json.Unmarshal([]byte(line), &pkt); err != nil {
		return
	}

	portnum, _ := pkt.Decoded["portnum"].(string)
	if portnum == "" {
		portnum = "UNKNOWN"
	}

	m.trackNode(pkt, portnum)

	if ignoredPortnums[portnum] {
		return
	}

	var message string
	switch {
	case portnum == "TEXT_MESSAGE_APP":
		message, _ = pkt.Decoded["text"].(string)
	case portnum == "WAYPOINT_APP" || portnum == "TRACEROUTE_APP":
		message = "[" + portnum + "]"
	case pkt.Decoded["payload"] != nil:
		message = "[" + portnum + "]"
	}

	m.mu.Lock()
	fromName := m.lookupName(pkt.From)
	var toName string
	if pkt.To != broadcastAddr {
		toName = m.lookupName(pkt.To)
	}
	m.mu.Unlock()

	payload := map[string]any{
		"from":      formatNodeID(pkt.From),
		"from_name": fromName,
		"to":        formatNodeID(pkt.To),
		"to_name":   toName,
		"message":   message,
		"text":      message,
		"portnum":   portnum,
		"channel":   pkt.Channel,
		"rssi":      pkt.RxRSSI,
		"snr":       pkt.RxSNR,
		"hop_limit": pkt.HopLimit,
	}
	m.Bus.Publish("meshtastic", bus.Event{Type: bus.EventMesh, Payload: payload})
}

func (m *MeshtasticEngine) trackNode(pkt meshPacket, portnum string) {
	if pkt.From == 0 || pkt.From == broadcastAddr {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[pkt.From]
	if !ok {
		node = &Node{Num: pkt.From, UserID: fmt.Sprintf("!%08x", pkt.From), HWModel: "UNKNOWN"}
		m.nodes[pkt.From] = node
	}
	now := time.Now().UTC()
	node.LastHeard = &now
	if pkt.RxSNR != nil {
		node.SNR = pkt.RxSNR
	}

	switch portnum {
	case "NODEINFO_APP":
		if user, ok := pkt.Decoded["user"].(map[string]any); ok {
			if v, ok := user["longName"].(string); ok && v != "" {
				node.LongName = v
			}
			if v, ok := user["shortName"].(string); ok && v != "" {
				node.ShortName = v
			}
			if v, ok := user["hwModel"].(string); ok && v != "" {
				node.HWModel = v
			}
			if v, ok := user["id"].(string); ok && v != "" {
				node.UserID = v
			}
		}
	case "POSITION_APP":
		if position, ok := pkt.Decoded["position"].(map[string]any); ok {
			lat := floatFromAny(position["latitude"])
			lon := floatFromAny(position["longitude"])
			if lat == nil {
				lat = scaledFromAny(position["latitudeI"])
			}
			if lon == nil {
				lon = scaledFromAny(position["longitudeI"])
			}
			if lat != nil && lon != nil {
				node.Latitude = lat
				node.Longitude = lon
				if alt := floatFromAny(position["altitude"]); alt != nil {
					v := int(*alt)
					node.Altitude = &v
				}
			}
		}
	case "TELEMETRY_APP":
		telemetry, _ := pkt.Decoded["telemetry"].(map[string]any)
		if device, ok := telemetry["deviceMetrics"].(map[string]any); ok {
			if v := intFromAny(device["batteryLevel"]); v != nil {
				node.BatteryLevel = v
			}
			if v := floatFromAny(device["voltage"]); v != nil {
				node.Voltage = v
			}
			if v := floatFromAny(device["channelUtilization"]); v != nil {
				node.ChannelUtilization = v
			}
			if v := floatFromAny(device["airUtilTx"]); v != nil {
				node.AirUtilTx = v
			}
		}
		if env, ok := telemetry["environmentMetrics"].(map[string]any); ok {
			if v := floatFromAny(env["temperature"]); v != nil {
				node.Temperature = v
			}
			if v := floatFromAny(env["relativeHumidity"]); v != nil {
				node.Humidity = v
			}
			if v := floatFromAny(env["barometricPressure"]); v != nil {
				node.BarometricPressure = v
			}
		}
	}
}

// lookupName must be called with m.mu held.
func (m *MeshtasticEngine) lookupName(num uint32) string {
	if num == 0 || num == broadcastAddr {
		return ""
	}
	if node, ok := m.nodes[num]; ok {
		if node.ShortName != "" {
			return node.ShortName
		}
		return node.LongName
	}
	return ""
}

func formatNodeID(num uint32) string {
	if num == broadcastAddr {
		return "^all"
	}
	return fmt.Sprintf("!%08x", num)
}

func floatFromAny(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

func scaledFromAny(v any) *float64 {
	f := floatFromAny(v)
	if f == nil {
		return nil
	}
	scaled := *f / 1e7
	return &scaled
}

func intFromAny(v any) *int {
	f := floatFromAny(v)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// Nodes returns a snapshot of all tracked nodes.
func (m *MeshtasticEngine) Nodes() []Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	return out
}

// SendText transmits text (max 237 chars) to destination (a "!xxxxxxxx"
// node ID, "^all"/empty for broadcast, or a bare decimal node number) on
// channel (0-7). The serial bridge frames it as a single JSON line; the
// real firmware's binary protobuf framing is out of scope here.
func (m *MeshtasticEngine) SendText(text string, channel int, destination string) error {
	if text == "" || len(text) > 237 {
		return errors.New("message must be 1-237 characters")
	}
	if channel < 0 || channel > 7 {
		return fmt.Errorf("invalid channel index: %d", channel)
	}

	dest := uint32(broadcastAddr)
	switch {
	case destination == "" || destination == "^all":
		dest = broadcastAddr
	case strings.HasPrefix(destination, "!"):
		v, err := strconv.ParseUint(destination[1:], 16, 32)
		if err != nil {
			return fmt.Errorf("invalid destination: %s", destination)
		}
		dest = uint32(v)
	default:
		v, err := strconv.ParseUint(destination, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid destination: %s", destination)
		}
		dest = uint32(v)
	}

	m.mu.Lock()
	port := m.port
	m.mu.Unlock()
	if port == nil {
		return errors.New("not connected to device")
	}

	frame, err := json.Marshal(map[string]any{
		"op": "send_text", "text": text, "channel": channel, "destination": dest,
	})
	if err != nil {
		return err
	}
	_, err = port.Write(append(frame, '\n'))
	return err
}

// ParsePSK parses a channel pre-shared key string: none | default |
// random | base64:... | 0x... | simple:<passphrase> (spec.md §4.4.4).
func ParsePSK(psk string) ([]byte, error) {
	psk = strings.TrimSpace(psk)
	lower := strings.ToLower(psk)

	switch {
	case lower == "none":
		return []byte{}, nil
	case lower == "default":
		return []byte{0x01}, nil
	case lower == "random":
		return randomBytes(32)
	case strings.HasPrefix(psk, "base64:"):
		decoded, err := base64.StdEncoding.DecodeString(psk[len("base64:"):])
		if err != nil {
			return nil, fmt.Errorf("invalid base64 PSK: %w", err)
		}
		return decoded, nil
	case strings.HasPrefix(psk, "0x"):
		decoded, err := hex.DecodeString(psk[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex PSK: %w", err)
		}
		return decoded, nil
	case strings.HasPrefix(psk, "simple:"):
		sum := sha256.Sum256([]byte(psk[len("simple:"):]))
		return sum[:], nil
	default:
		decoded, err := base64.StdEncoding.DecodeString(psk)
		if err == nil && (len(decoded) == 0 || len(decoded) == 1 || len(decoded) == 16 || len(decoded) == 32) {
			return decoded, nil
		}
		return nil, fmt.Errorf("invalid PSK format: %s", psk)
	}
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
