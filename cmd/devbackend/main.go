package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vitalog/healthchat/internal/config"
	"github.com/vitalog/healthchat/internal/devbackend"
	"github.com/vitalog/healthchat/internal/logging"
	"github.com/vitalog/healthchat/internal/model/record"
	"github.com/vitalog/healthchat/internal/service/ai"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	log.Logger = logger

	var responder devbackend.Responder = devbackend.EchoResponder{}
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("continuing with echo replies - 请检查 Ark 模型相关环境变量")
		} else {
			responder = aiService
			logger.Info().Msg("AI service initialized successfully")
		}
	} else {
		logger.Info().Msg("Ark 凭证未配置，使用回显回复")
	}

	store := devbackend.NewStore(record.Seed())
	router := devbackend.NewRouter(devbackend.New(store, responder, logger), cfg.DevBackend.Token, logger)

	srv := &http.Server{
		Addr:              cfg.DevBackend.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", srv.Addr).Bool("auth", cfg.DevBackend.Token != "").Msg("dev health backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
