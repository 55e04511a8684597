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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/relaymesh/conduit/internal/admin"
	"github.com/relaymesh/conduit/internal/adminapi"
	"github.com/relaymesh/conduit/internal/api"
	"github.com/relaymesh/conduit/internal/config"
	"github.com/relaymesh/conduit/internal/logging"
	"github.com/relaymesh/conduit/internal/ratelimit"
	"github.com/relaymesh/conduit/internal/realm"
	"github.com/relaymesh/conduit/internal/signaling"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:     "conduit",
	Short:   "Conduit - WebRTC signaling and relay server",
	Long:    `Conduit brokers WebRTC session negotiation between peers and relays media-channel traffic for peers that cannot connect directly.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Conduit %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to the env file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "conduit"})

	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level, Component: "conduit"})

	log.Info().Str("version", Version).Msg("Starting Conduit signaling server")

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.MaxTokens, cfg.RateLimit.RefillRate)
	}

	core := signaling.NewCore(realm.New(100), limiter, signaling.Options{
		Key:              cfg.Key,
		ConcurrentLimit:  cfg.ConcurrentLimit,
		AliveTimeout:     cfg.AliveTimeout,
		ExpireTimeout:    cfg.ExpireTimeout,
		CleanupInterval:  cfg.CleanupOutMsgs,
		MaxMessageBytes:  cfg.MaxMessageBytes,
		RelayEnabled:     cfg.Relay.Enabled,
		MaxRelayBytes:    cfg.Relay.MaxMessageSize,
		RateLimitEnabled: cfg.RateLimit.Enabled,
	})
	core.StartSweepers()
	defer core.Destroy()

	peerServer := api.NewServer(cfg, core, Version)

	mux := http.NewServeMux()

	var adminCore *admin.AdminCore
	if cfg.Admin.Enabled {
		adminCore = admin.New(cfg.Admin)
		adminCore.SetDiscoveryToggle(peerServer.SetAllowDiscovery)
		adminCore.AttachToServer(core)
		defer adminCore.Destroy()

		router := adminapi.NewRouter(cfg, adminCore, Version)
		mux.Handle(router.BasePath()+"/", router)
		log.Info().Str("path", router.BasePath()).Msg("Admin API enabled")
	}
	mux.Handle("/", peerServer.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watcher := watchConfig(cfg, core, peerServer)
	if watcher != nil {
		defer watcher.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("path", cfg.Path).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received, draining peers")
		core.Shutdown("server shutting down")
		core.StopSweepers()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped")
}

// watchConfig reloads the env file on change and applies the runtime-safe
// subset: rate limit parameters and feature toggles. Structural settings
// (port, paths, auth methods) still need a restart.
func watchConfig(cfg *config.Config, core *signaling.Core, peerServer *api.Server) *config.Watcher {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	w, err := config.Watch(envFile, func() {
		fresh, err := config.Load(envFile)
		if err != nil {
			log.Warn().Err(err).Msg("Config reload failed, keeping previous settings")
			return
		}
		if limiter := core.Limiter(); limiter != nil {
			limiter.SetLimits(fresh.RateLimit.MaxTokens, fresh.RateLimit.RefillRate)
		}
		core.SetRateLimitEnabled(fresh.RateLimit.Enabled)
		core.SetRelayEnabled(fresh.Relay.Enabled)
		peerServer.SetAllowDiscovery(fresh.AllowDiscovery)
		log.Info().Msg("Applied runtime configuration changes")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
		return nil
	}
	return w
}
