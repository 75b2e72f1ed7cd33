package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/moffa90/go-keymatrix/internal/config"
	"github.com/moffa90/go-keymatrix/internal/observability"
	"github.com/moffa90/go-keymatrix/internal/publish"
)

var (
	configPath  = "matrixctl.toml"
	portName    string
	evalOnly    bool
	metricsAddr string
)

func init() {
	flag.StringVar(&configPath, "config", configPath, "Path to the TOML config file.")
	flag.StringVar(&portName, "port", portName, "Serial port, overrides serial.port.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&metricsAddr, "metrics", metricsAddr, "Serve Prometheus metrics on this address, e.g. :9102.")
}

func main() {
	flag.Parse()
	logger := observability.InitLogger("matrixctl")

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("config load failed")
	}
	if portName != "" {
		cfg.Serial.Port = portName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var pub *publish.Publisher
	if cfg.MQTT.Broker != "" {
		pub, err = publish.Dial(cfg.MQTT, cfg.Names, logger)
		if err != nil {
			logger.Error().Err(err).Msg("mqtt unavailable, status will not be published")
		} else {
			defer pub.Close()
		}
	}

	sh := NewShell(ctx, cfg, logger, pub)
	defer sh.Disconnect()

	if err := sh.Run(flag.Args()...); err != nil {
		logger.Error().Err(err).Msg("command failed")
		sh.Disconnect()
		os.Exit(1)
	}
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
