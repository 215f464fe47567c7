package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"patternsvc/internal/bootstrap"
	"patternsvc/internal/http/handlers"
	httpapi "patternsvc/internal/http/httpapi"
	"patternsvc/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	svc, err := bootstrap.NewService(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure pipeline")
	}

	app := handlers.NewApp(logger, svc.Pipeline)
	app.MaxBodyBytes = cfg.MaxBodyBytes
	app.StaticDir = svc.StaticDir

	router := httpapi.NewRouter(app, logger, cfg.CORSAllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight generations can take as long as the write timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPWriteTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
