package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/StreamRoom/internal/adapters/http"
	"github.com/dkeye/StreamRoom/internal/adapters/rtc"
	signaling "github.com/dkeye/StreamRoom/internal/adapters/signal"
	"github.com/dkeye/StreamRoom/internal/app"
	"github.com/dkeye/StreamRoom/internal/app/orch"
	"github.com/dkeye/StreamRoom/internal/config"
)

const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "streamroom",
	Short: "WebSocket signaling relay for rooms with a single streamer",
	Long: `StreamRoom keeps rooms of connected peers, tracks which member is streaming,
broadcasts membership and chat events and relays WebRTC signaling between peers.
Media flows peer to peer and never passes through the server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogger("debug", "info")
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		setupLogger(cfg.Mode, cfg.LogLevel)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx, cfg)
	},
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func setupLogger(mode, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		return err
	}
	ice, err := rtc.ICEServers(cfg.ICEServers, rtc.Credentials{
		Username:   cfg.TURNUsername,
		Credential: cfg.TURNPassword,
	})
	if err != nil {
		return err
	}

	o := orch.New(app.NewRegistry(), app.NewRoomManager(), policy)
	ctl := signaling.NewSignalWSController(o, cfg)

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.SetupRouter(gctx, cfg, ctl, ice),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("backpressure", cfg.Backpressure).Msg("StreamRoom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		// Hijacked websockets are not tracked by Shutdown.
		ctl.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
