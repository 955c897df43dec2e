// edgeflowd runs the edge telemetry handlers: the receiver stores raw device
// readings, the analyzer republishes trailing windows of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/edgeflow/internal/archive"
	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/ingest"
	"github.com/xtxerr/edgeflow/internal/loader"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/storage"
	"github.com/xtxerr/edgeflow/internal/transport/mqtt"
	"github.com/xtxerr/edgeflow/internal/window"
)

// Version is set at build time via ldflags
var Version = "dev"

// statsInterval is how often handler counters are logged.
const statsInterval = time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	role := flag.String("role", "", "handlers to run: receiver, analyzer or all (overrides config)")
	backend := flag.String("backend", "", "store backend: redis or memory (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	flag.Parse()

	// Load config
	cfg, err := loader.Load(*cfgPath)
	usingDefaults := false
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 1
		}
		cfg = loader.DefaultConfig()
		usingDefaults = true
	}

	if err := loader.ApplyEnv(cfg, os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "environment: %v\n", err)
		return 1
	}

	// CLI overrides
	if *role != "" {
		cfg.Role = *role
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(level, cfg.Log.JSON)
	log := logging.Component("edgeflowd")

	log.Info("starting", "version", Version, "role", cfg.Role, "backend", cfg.Store.Backend)
	if usingDefaults {
		log.Info("no config file found, using defaults", "path", *cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Store
	// =========================================================================

	store, err := storage.Open(ctx, &cfg.Store, time.Now)
	if err != nil {
		log.Error("open store", "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close store", "error", err)
		}
	}()

	// =========================================================================
	// Transport
	// =========================================================================

	client, err := mqtt.New(loader.MQTTOptions(cfg))
	if err != nil {
		log.Error("connect broker", "broker", cfg.MQTT.Broker, "error", err)
		return 1
	}

	// =========================================================================
	// Handlers
	// =========================================================================

	var (
		writer *ingest.Service
		reader *window.Service
	)

	if cfg.Role == constants.RoleReceiver || cfg.Role == constants.RoleAll {
		writer = ingest.New(store, client)
		if err := client.Subscribe(constants.TopicRawFilter, writer); err != nil {
			log.Error("subscribe receiver", "error", err)
			client.Close()
			return 1
		}
	}

	if cfg.Role == constants.RoleAnalyzer || cfg.Role == constants.RoleAll {
		opts := loader.WindowOptions(cfg)
		if cfg.Archive.Enabled {
			sink, err := archive.New(loader.ArchiveOptions(cfg))
			if err != nil {
				log.Error("open archive", "error", err)
				client.Close()
				return 1
			}
			opts.Sink = sink
			log.Info("window archive enabled", "dir", cfg.Archive.Dir, "compression", cfg.Archive.Compression)
		}

		reader = window.New(store, client, opts)
		if err := client.Subscribe(constants.TopicStoredFilter, reader); err != nil {
			log.Error("subscribe analyzer", "error", err)
			client.Close()
			return 1
		}
	}

	log.Info("running",
		"retention_sec", cfg.Store.RetentionSec,
		"window_sec", cfg.Window.WidthSec,
		"fields", cfg.Window.Fields)

	// =========================================================================
	// Run until signalled
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		reportStats(gctx, log, writer, reader)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Stop accepting deliveries first, then let the store close.
		client.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown", "error", err)
		return 1
	}

	reportOnce(log, writer, reader)
	return 0
}

// reportStats logs handler counters until ctx is done.
func reportStats(ctx context.Context, log *slog.Logger, writer *ingest.Service, reader *window.Service) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reportOnce(log, writer, reader)
		}
	}
}

func reportOnce(log *slog.Logger, writer *ingest.Service, reader *window.Service) {
	if writer != nil {
		s := writer.Stats()
		log.Info("receiver stats",
			"received", s.Received,
			"stored", s.Stored,
			"rejected", s.Rejected,
			"store_errors", s.StoreErrors,
			"publish_errors", s.PublishErrors)
	}
	if reader != nil {
		s := reader.Stats()
		log.Info("analyzer stats",
			"reads", s.Reads,
			"rows", s.Rows,
			"empty_windows", s.EmptyWindows,
			"non_numeric", s.NonNumeric,
			"store_errors", s.StoreErrors,
			"publish_errors", s.PublishErrors,
			"sink_errors", s.SinkErrors)
	}
}
