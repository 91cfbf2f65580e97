package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/agent"
	"github.com/dennisdiepolder/monti/alertagent/internal/config"
	"github.com/dennisdiepolder/monti/alertagent/internal/control"
	"github.com/dennisdiepolder/monti/alertagent/internal/device"
	"github.com/dennisdiepolder/monti/alertagent/internal/prefs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "alertagent").
		Logger()
}

// endpointFunc renders the endpoint, preferring a host saved in the store
func endpointFunc(cfg *config.Config, store *prefs.Store) func() string {
	return func() string {
		host := cfg.ServerHost
		if h := store.ServerHost(); h != "" {
			host = h
		}
		return config.EndpointFor(host, cfg.ServerPort, cfg.ServerPath)
	}
}

func runAgent(cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)
	logger.Info().Msg("starting alert agent")

	store := prefs.NewStore(cfg.PrefsFile)
	if _, err := store.Load(); err != nil {
		logger.Warn().Err(err).Str("path", store.Path()).Msg("preferences unreadable, using defaults")
	}

	speaker := device.NewCommandSpeaker(cfg.TTSCommand, logger)
	haptics := device.NewLogHaptics(logger)
	controlAPI := control.NewAPI(logger)
	endpoint := endpointFunc(cfg, store)

	dialer := agent.NewWSDialer(agent.DialerOptions{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReadLimit:        cfg.ReadLimit,
		PingInterval:     cfg.PingInterval,
		PongWait:         cfg.PongWait,
	}, logger.With().Str("component", "transport").Logger())

	sup := agent.NewSupervisor(agent.Options{
		Endpoint:       endpoint,
		DeviceClass:    cfg.DeviceClass,
		ReconnectDelay: cfg.ReconnectDelay,
		RetryDelay:     cfg.RetryDelay,
		Dialer:         dialer,
	}, agent.Collaborators{
		Presenter: controlAPI,
		Speech:    speaker,
		Haptics:   haptics,
		Status:    controlAPI,
		Location:  store,
	}, logger)

	controlAPI.SetHandlers(
		sup.State,
		store.LocationLabel,
		endpoint,
		sup.Metrics().Snapshot,
		speaker.Stop,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start control API
	go func() {
		if err := controlAPI.Start(ctx, cfg.ControlAddr); err != nil {
			logger.Error().Err(err).Msg("control API stopped")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()

	logger.Info().
		Str("endpoint", endpoint()).
		Str("location", store.LocationLabel()).
		Str("control_api", baseURL(cfg.ControlAddr)).
		Msg("alert agent ready")

	printUsage(cfg.ControlAddr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down alert agent")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("supervisor did not stop within 5s")
	}
	return nil
}

func printUsage(addr string) {
	base := baseURL(addr)
	fmt.Println()
	fmt.Println("Control API endpoints:")
	fmt.Printf("  GET  %s/health          - Health check\n", base)
	fmt.Printf("  GET  %s/status          - Connection status\n", base)
	fmt.Printf("  GET  %s/alerts          - Open alerts (?all=true for history)\n", base)
	fmt.Printf("  POST %s/alerts/ack      - Acknowledge newest alert\n", base)
	fmt.Printf("  POST %s/alerts/{id}/ack - Acknowledge one alert\n", base)
	fmt.Printf("  GET  %s/metrics         - Prometheus metrics\n", base)
	fmt.Println()
}
