package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanikai/surfacerelay/internal/imustream"
	"github.com/lanikai/surfacerelay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("surfacerelayd")

const statsInterval = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// Check for help flag
	if h, _ := fs.GetBool("help"); h {
		help()
		return 0
	}

	// Check for version flag
	if v, _ := fs.GetBool("version"); v {
		version()
		return 0
	}

	path, _ := fs.GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	applyFlags(fs, &cfg)
	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.LogLevel != "" {
		if err := logging.Configure(cfg.LogLevel); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	session := uuid.New().String()
	log.Info("session %s: %dx%d format %#x, %d buffers at %d fps",
		session, cfg.Width, cfg.Height, cfg.Format, cfg.Buffers, cfg.FPS)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := newPipeline(cfg, reg)
	if err != nil {
		log.Error("pipeline: %v", err)
		return 1
	}

	mux := http.NewServeMux()
	mux.Handle("/imu", &imustream.Server{Broadcaster: p.broadcaster, Session: session})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:     cfg.Listen,
		Handler:  mux,
		ErrorLog: log.StdLogger(logging.Warn),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening on %s", cfg.Listen)
		serveErr <- server.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p.start(ctx)

	status := 0
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			break loop
		case err := <-serveErr:
			log.Error("http: %v", err)
			status = 1
			break loop
		case <-ticker.C:
			log.Info("%s", p.stats())
		}
	}

	// Closing the broadcaster ends websocket handlers, so tear down the
	// pipeline before waiting on the HTTP server.
	p.stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown: %v", err)
	}
	log.Info("%s", p.stats())
	return status
}
