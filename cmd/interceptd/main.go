// Command interceptd is the Mode & Device Orchestrator's entrypoint: it
// loads configuration, wires the Event Bus and its Recording/Alert/
// Pattern fan-out sinks, constructs every mode controller and the
// SubGHz engine, and serves the MCP tool surface plus Prometheus
// metrics. The HTTP router and browser-facing presentation layer are
// out of scope (spec.md §1 Non-goals) — this binary exposes only the
// two ambient/AI-operator surfaces the teacher's main.go also exposes
// standalone: metrics and a tool/API transport.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mitchross/intercept-sub000/internal/alerts"
	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/config"
	"github.com/mitchross/intercept-sub000/internal/correlator"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/mcpserver"
	"github.com/mitchross/intercept-sub000/internal/metrics"
	"github.com/mitchross/intercept-sub000/internal/modes"
	"github.com/mitchross/intercept-sub000/internal/orchestrator"
	"github.com/mitchross/intercept-sub000/internal/pattern"
	"github.com/mitchross/intercept-sub000/internal/recording"
	"github.com/mitchross/intercept-sub000/internal/store"
	"github.com/mitchross/intercept-sub000/internal/subghz"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults applied if omitted)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("interceptd: load config: %v", err)
	}

	kv := store.NewMemStore()
	met := metrics.New()
	b := bus.New(cfg.Bus.QueueCapacity, met)
	registry := devreg.New()

	corr := correlator.New(0)
	pat := pattern.New(0)

	notifiers := buildNotifiers(cfg)
	alertEngine := alerts.New(kv, notifiers...)
	recMgr := recording.New(cfg.Recording.Dir, cfg.Recording.Compress, kv)

	b.AddSink(recMgr)
	b.AddSink(alertEngine)
	b.AddSink(bus.SinkFunc(func(ev bus.Event) error {
		pat.Observe(ev.Mode, ev.Payload, ev.IngestedAt)
		return nil
	}))

	runners := map[string]interface {
		Start(modes.StartParams) error
		Stop() error
		Status() modes.Status
	}{
		"pocsag":      modes.NewPOCSAG(registry, b),
		"acars":       modes.NewACARS(registry, b, corr),
		"vdl2":        modes.NewVDL2(registry, b, corr),
		"ais":         modes.NewAIS(registry, b),
		"dsc":         modes.NewDSC(registry, b),
		"rtlamr":      modes.NewRTLAMR(registry, b),
		"dmr":         modes.NewDMR(registry, b),
		"weather_sat": modes.NewWeatherSat(registry, b),
	}
	mesh := modes.NewMeshtastic(b)
	sg := subghz.New(&cfg.SubGHz, b)

	if err := os.MkdirAll(cfg.SubGHz.CapturesDir, 0o755); err != nil {
		log.Fatalf("interceptd: create captures dir: %v", err)
	}
	if err := os.MkdirAll(cfg.Recording.Dir, 0o755); err != nil {
		log.Fatalf("interceptd: create recordings dir: %v", err)
	}

	orch := orchestrator.New(registry, b, runners, mesh, sg, recMgr, pat)

	stopHostSampler := make(chan struct{})
	met.StartHostSampler(10*time.Second, stopHostSampler)

	mcp := mcpserver.New(orch)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/mcp", mcp.HTTPServer())

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	go func() {
		log.Printf("interceptd: listening on %s (metrics + MCP tool surface)", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("interceptd: http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("interceptd: shutting down")

	close(stopHostSampler)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	for name, r := range runners {
		if r.Status().Running {
			_ = r.Stop()
			log.Printf("interceptd: stopped %s", name)
		}
	}
	mesh.Disconnect()
	if _, err := orch.StopMode("subghz"); err != nil {
		log.Printf("interceptd: subghz stop on shutdown: %v", err)
	}
}

func buildNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.WebhookURL, cfg.Alerts.WebhookSecret,
			time.Duration(cfg.Alerts.WebhookTimeoutSec)*time.Second))
	}
	if cfg.MQTT.BrokerURL != "" {
		notifier, err := alerts.NewMQTTNotifier(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			log.Printf("interceptd: mqtt notifier disabled: %v", err)
		} else {
			notifiers = append(notifiers, notifier)
		}
	}
	return notifiers
}
