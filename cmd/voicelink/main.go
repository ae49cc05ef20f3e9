// voicelink: real-time voice client. Streams microphone audio to a speech
// backend over a persistent WebSocket and plays the synthesized reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voicelink/go-voicelink/internal/config"
	"github.com/voicelink/go-voicelink/internal/log"
	"github.com/voicelink/go-voicelink/pkg/audio"
	"github.com/voicelink/go-voicelink/pkg/connection"
	"github.com/voicelink/go-voicelink/pkg/session"
	"github.com/voicelink/go-voicelink/pkg/status"
)

var version = "1.0.0"

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	endpoint   = flag.String("endpoint", "", "Backend ws:// or wss:// URL (overrides config)")
	backend    = flag.String("audio", "", "Audio backend: auto, device, mock (overrides config)")
	statusAddr = flag.String("status", "", "Status server listen address (overrides config)")
)

func main() {
	flag.Parse()

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg := loadConfig()
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("🎙  voicelink v" + version)
	fmt.Println("   endpoint:", cfg.Endpoint)
	fmt.Println()

	manager, err := connection.New(cfg.Endpoint, cfg.Reconnect,
		connection.WithDialTimeout(cfg.ConnectTimeout),
		connection.WithLogger(log.L()),
	)
	if err != nil {
		log.Error("connection setup failed", "error", err)
		os.Exit(1)
	}

	pipeline, err := audio.New(cfg.Audio, log.L())
	if err != nil {
		log.Error("audio setup failed", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	coordinator := session.NewCoordinator(manager, pipeline, log.L())
	defer coordinator.Close()

	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.StatusAddr, coordinator, func() status.Stats {
			return status.Stats{
				Connection: manager.Stats(),
				Audio:      pipeline.Stats(),
			}
		}, log.L())
		srv.StartAsync()
		defer srv.Shutdown()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	coordinator.Stop()
}

func loadConfig() config.Config {
	// An explicitly requested config file must load cleanly; flags never
	// paper over a broken one. Validity, in contrast, is judged only
	// after flags are applied, since a flag may complete a config the
	// file and env left unfinished (e.g. the endpoint).
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalUsage(err)
	}
	applyFlags(&cfg)

	if err := cfg.Validate(); err != nil {
		fatalUsage(err)
	}
	return cfg
}

func fatalUsage(err error) {
	fmt.Fprintln(os.Stderr, "voicelink:", err)
	flag.Usage()
	os.Exit(2)
}

func applyFlags(cfg *config.Config) {
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *backend != "" {
		cfg.Audio.Backend = audio.Backend(*backend)
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}
}
