package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/prysmi/siteedge/internal/config"
	"github.com/prysmi/siteedge/internal/httpserver"
	"github.com/prysmi/siteedge/internal/logger"
	"github.com/prysmi/siteedge/pkg/siteedge"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; real environment variables always win
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logger.New(logger.Config{Service: "siteedge", Version: version})
		bootLogger.Fatal().Err(err).Str("config", *configPath).Msg("config.load_failed")
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "siteedge",
		Version:     version,
		Environment: cfg.Logging.Environment,
	})

	app, err := siteedge.NewApp(cfg, siteedge.WithLogger(appLogger))
	if err != nil {
		appLogger.Fatal().Err(err).Msg("app.init_failed")
	}

	srv := httpserver.New(cfg, app.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Str("origin_mode", cfg.Origin.Mode).
			Msg("server.starting")
		if err := srv.ListenAndServe(); err != nil {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			appLogger.Error().Err(err).Msg("server.listen_failed")
			closeApp(app, appLogger)
			os.Exit(1)
		}
	case <-ctx.Done():
		appLogger.Info().Msg("server.shutdown_started")
	}

	shutdown(srv, cfg.Server.ShutdownTimeout.Duration, appLogger)
	closeApp(app, appLogger)
}

func shutdown(srv *httpserver.Server, timeout time.Duration, log zerolog.Logger) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server.shutdown_failed")
		return
	}
	log.Info().Msg("server.shutdown_complete")
}

func closeApp(app *siteedge.App, log zerolog.Logger) {
	if err := app.Close(); err != nil {
		log.Error().Err(err).Msg("app.close_failed")
	}
}
