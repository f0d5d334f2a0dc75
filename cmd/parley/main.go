package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/parley/internal/adapters/backend"
	"github.com/dkeye/parley/internal/adapters/capture"
	router "github.com/dkeye/parley/internal/adapters/http"
	"github.com/dkeye/parley/internal/adapters/rtc"
	sigtransport "github.com/dkeye/parley/internal/adapters/signal"
	"github.com/dkeye/parley/internal/adapters/store"
	"github.com/dkeye/parley/internal/app/attach"
	"github.com/dkeye/parley/internal/app/call"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd(config.New()).ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("parley exited")
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	user, err := domain.NewUser(cfg.User)
	if err != nil {
		return fmt.Errorf("user: %w", err)
	}

	blobs, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("close store")
		}
	}()

	src, err := capture.NewDeviceSource()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	peers, err := rtc.NewFactory(cfg.ICEServers)
	if err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}

	transport := sigtransport.New(sigtransport.Options{
		BaseURL:      cfg.BackendURL,
		Self:         user.ID,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.RequestTimeout,
	})
	defer transport.Close()

	api := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	calls := call.NewController(capture.NewManager(src), peers, transport)
	messages := attach.NewManager(blobs, cfg.SweepInterval)
	composer := attach.NewComposer(messages, api, user.Username, cfg.VanishingTTL)

	if seed, err := api.ListMessages(ctx); err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("could not load messages, starting empty")
	} else {
		messages.Seed(seed)
	}

	r := router.SetupRouter(ctx, cfg, router.Services{
		Rooms:    transport,
		Calls:    calls,
		Messages: messages,
		Composer: composer,
		Chat:     api,
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return calls.Run(gctx) })
	g.Go(func() error { return messages.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Str("user", user.Username).Msg("parley started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Str("module", "main").Msg("parley exited")
	return err
}
