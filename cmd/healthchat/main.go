package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/config"
	"github.com/vitalog/healthchat/internal/handler"
	"github.com/vitalog/healthchat/internal/logging"
	"github.com/vitalog/healthchat/internal/model/record"
	"github.com/vitalog/healthchat/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzeID := flag.String("analyze", "", "启动时带入的病历 ID，用于直接发起图片分析")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	log.Logger = logger

	opts := []backend.Option{
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger),
	}
	if cfg.Backend.Token != "" {
		opts = append(opts, backend.WithTokenSource(backend.StaticToken(cfg.Backend.Token)))
	} else {
		logger.Warn().Msg("HEALTH_API_TOKEN 未配置，请求将不携带认证信息")
	}
	client := backend.NewClient(cfg.Backend.BaseURL, opts...)

	mgr := chat.NewManager(client, chat.WithLogger(logger))

	startOpts, err := resolveStartOptions(ctx, client, *analyzeID)
	if err != nil {
		logger.Warn().Err(err).Str("record_id", *analyzeID).Msg("record to analyze not found, starting plainly")
	}
	if err := mgr.Start(ctx, startOpts); err != nil {
		logger.Warn().Err(err).Msg("conversation started without the requested record")
	}

	router := handler.NewRouter(mgr, logger)
	startServer(ctx, cfg.Server, router, logger)
}

// resolveStartOptions looks up the record named on the command line.
func resolveStartOptions(ctx context.Context, client *backend.Client, recordID string) (chat.StartOptions, error) {
	if recordID == "" {
		return chat.StartOptions{}, nil
	}

	records, err := client.Records(ctx)
	if err != nil {
		return chat.StartOptions{}, err
	}
	rec, ok := record.NewMemoryStore(records).FindByID(recordID)
	if !ok {
		return chat.StartOptions{}, fmt.Errorf("record %s not found", recordID)
	}
	return chat.StartOptions{AnalyzeRecord: &rec}, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("health chat bridge listening")
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
