// Package config loads the orchestrator's configuration from YAML with
// environment-variable overrides, in the style of the teacher's own
// Config/AdminConfig struct tree.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object for the orchestrator.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Devices    DevicesConfig    `yaml:"devices"`
	Process    ProcessConfig    `yaml:"process"`
	Bus        BusConfig        `yaml:"bus"`
	Recording  RecordingConfig  `yaml:"recording"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	SubGHz     SubGHzConfig     `yaml:"subghz"`
	ACARS      ACARSConfig      `yaml:"acars"`
	AIS        AISConfig        `yaml:"ais"`
	DSC        DSCConfig        `yaml:"dsc"`
	Meshtastic MeshtasticConfig `yaml:"meshtastic"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig controls the HTTP/SSE surface.
type ServerConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	SSEKeepaliveSeconds int    `yaml:"sse_keepalive_seconds"`
	SSEQueueTimeoutMs   int    `yaml:"sse_queue_timeout_ms"`
	MaxSSESubscribers   int    `yaml:"max_sse_subscribers"`
}

// DevicesConfig holds the data directory for device-related state.
type DevicesConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ProcessConfig holds process-lifecycle timing values. The mode
// controllers do not read them: internal/modes uses its own fixed
// timings (the AIS controller, for one, uses a 2s reconnect delay and a
// 1s update interval).
type ProcessConfig struct {
	StartWaitMs          int `yaml:"start_wait_ms"`           // PROCESS_START_WAIT
	TerminateTimeoutSec  int `yaml:"terminate_timeout_sec"`   // PROCESS_TERMINATE_TIMEOUT
	DSCTerminateTimeout  int `yaml:"dsc_terminate_timeout"`   // DSC_TERMINATE_TIMEOUT
	AISTerminateTimeout  int `yaml:"ais_terminate_timeout"`   // AIS_TERMINATE_TIMEOUT
	AISReconnectDelayMs  int `yaml:"ais_reconnect_delay_ms"`  // AIS_RECONNECT_DELAY
	AISUpdateIntervalSec int `yaml:"ais_update_interval_sec"` // AIS_UPDATE_INTERVAL
}

// BusConfig sizes the event bus queues.
type BusConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// RecordingConfig controls the Recording Manager.
type RecordingConfig struct {
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

// AlertsConfig controls the Alert Engine.
type AlertsConfig struct {
	WebhookURL          string `yaml:"webhook_url"`         // ALERT_WEBHOOK_URL
	WebhookSecret       string `yaml:"webhook_secret"`      // ALERT_WEBHOOK_SECRET
	WebhookTimeoutSec   int    `yaml:"webhook_timeout_sec"` // ALERT_WEBHOOK_TIMEOUT
	RuleCacheMaxAgeSec  int    `yaml:"rule_cache_max_age_sec"`
	StreamQueueCapacity int    `yaml:"stream_queue_capacity"`
}

// SubGHzConfig controls the SubGHz engine.
type SubGHzConfig struct {
	CapturesDir           string   `yaml:"captures_dir"`
	FreqMinHz             uint64   `yaml:"freq_min_hz"`
	FreqMaxHz             uint64   `yaml:"freq_max_hz"`
	TXAllowedBands        []Band   `yaml:"tx_allowed_bands"` // SUBGHZ_TX_ALLOWED_BANDS
	TXVGAGainMin          int      `yaml:"tx_vga_gain_min"`
	TXVGAGainMax          int      `yaml:"tx_vga_gain_max"`
	TXMaxDurationSec      int      `yaml:"tx_max_duration_sec"`
	LNAGainMin            int      `yaml:"lna_gain_min"`
	LNAGainMax            int      `yaml:"lna_gain_max"`
	VGAGainMin            int      `yaml:"vga_gain_min"`
	VGAGainMax            int      `yaml:"vga_gain_max"`
	MaxRestarts           int      `yaml:"max_restarts"`
	RestartDelayMs        int      `yaml:"restart_delay_ms"`
	MaxQuickRestarts      int      `yaml:"max_quick_restarts"`
	QuickRestartWindowSec int      `yaml:"quick_restart_window_sec"`
	HackRFDetectTTLSec    int      `yaml:"hackrf_detect_ttl_sec"`
}

// Band is a frequency range in Hz, inclusive.
type Band struct {
	Name    string `yaml:"name" json:"name"`
	MinHz   uint64 `yaml:"min_hz" json:"min_hz"`
	MaxHz   uint64 `yaml:"max_hz" json:"max_hz"`
}

// ACARSConfig controls label enrichment.
type ACARSConfig struct {
	LabelTablePath string `yaml:"label_table_path"`
}

// AISConfig holds the AIS-catcher TCP port. The AIS controller does not
// read it; it always uses its own fixed port (5011).
type AISConfig struct {
	Port int `yaml:"port"`
}

// DSCConfig controls the DSC decoder.
type DSCConfig struct {
	VHFFrequencyHz uint64 `yaml:"vhf_frequency_hz"`
	SampleRate     int    `yaml:"sample_rate"`
}

// MeshtasticConfig controls the serial Meshtastic client.
type MeshtasticConfig struct {
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
}

// MQTTConfig controls the optional MQTT alert-notify transport.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Topic     string `yaml:"topic"`
}

// MCPConfig controls the MCP tool surface.
type MCPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config populated with sane defaults, the way the
// teacher applies defaults after YAML unmarshal rather than scattering
// zero-value checks through the rest of the codebase.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:          ":8090",
			SSEKeepaliveSeconds: 30,
			SSEQueueTimeoutMs:   1000,
			MaxSSESubscribers:   256,
		},
		Devices: DevicesConfig{DataDir: "/var/lib/intercept"},
		Process: ProcessConfig{
			StartWaitMs:          200,
			TerminateTimeoutSec:  5,
			DSCTerminateTimeout:  3,
			AISTerminateTimeout:  5,
			AISReconnectDelayMs:  500,
			AISUpdateIntervalSec: 2,
		},
		Bus:       BusConfig{QueueCapacity: 500},
		Recording: RecordingConfig{Dir: "/var/lib/intercept/recordings"},
		Alerts: AlertsConfig{
			WebhookTimeoutSec:   10,
			RuleCacheMaxAgeSec:  10,
			StreamQueueCapacity: 500,
		},
		SubGHz: SubGHzConfig{
			CapturesDir:           "/var/lib/intercept/captures",
			FreqMinHz:             1_000_000,
			FreqMaxHz:             6_000_000_000,
			TXVGAGainMin:          0,
			TXVGAGainMax:          47,
			TXMaxDurationSec:      30,
			LNAGainMin:            0,
			LNAGainMax:            40,
			VGAGainMin:            0,
			VGAGainMax:            62,
			MaxRestarts:           5,
			RestartDelayMs:        500,
			MaxQuickRestarts:      3,
			QuickRestartWindowSec: 30,
			HackRFDetectTTLSec:    2,
			TXAllowedBands: []Band{
				{Name: "315MHz ISM", MinHz: 303_875_000, MaxHz: 316_875_000},
				{Name: "433MHz ISM", MinHz: 433_050_000, MaxHz: 434_790_000},
				{Name: "868MHz ISM", MinHz: 863_000_000, MaxHz: 870_000_000},
				{Name: "915MHz ISM", MinHz: 902_000_000, MaxHz: 928_000_000},
			},
		},
		AIS: AISConfig{Port: 5020},
		DSC: DSCConfig{VHFFrequencyHz: 156_525_000, SampleRate: 48000},
	}
}

// Load reads a YAML config file, applies defaults for unset fields, then
// applies INTERCEPT_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides mirrors the teacher's "env wins over file" convention
// for the handful of operationally hot settings (webhook URL/secret,
// listen address).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.WebhookSecret = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.WebhookTimeoutSec = n
		}
	}
	if v := os.Getenv("INTERCEPT_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SHARED_OBSERVER_LOCATION_ENABLED"); v != "" {
		_ = strings.EqualFold(v, "true") // recognised but not stored in Config
	}
}

// InBand reports whether freqHz falls in any of the configured TX-allowed
// bands (inclusive), and returns the matched band name.
func (c *SubGHzConfig) InBand(freqHz uint64) (string, bool) {
	for _, b := range c.TXAllowedBands {
		if freqHz >= b.MinHz && freqHz <= b.MaxHz {
			return b.Name, true
		}
	}
	return "", false
}
