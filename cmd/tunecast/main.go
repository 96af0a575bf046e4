package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bnema/tunecast/config"
	"github.com/bnema/tunecast/internal/adapter/converter/ffmpeg"
	HTTPAdapter "github.com/bnema/tunecast/internal/adapter/http"
	"github.com/bnema/tunecast/internal/adapter/oauth/google"
	sqlitestore "github.com/bnema/tunecast/internal/adapter/storage/sqlite"
	"github.com/bnema/tunecast/internal/adapter/upload/youtube"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/service"
)

const youtubeUploadScope = "https://www.googleapis.com/auth/youtube.upload"

// app holds the wired object graph shared by the serve and sweep commands.
type app struct {
	cfg        *config.Config
	store      *sqlitestore.Store
	tuneSvc    *service.TuneService
	authSvc    *service.AuthService
	dispatcher *service.Dispatcher
}

func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := sqlitestore.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tunes := sqlitestore.NewTuneStore(store)
	users := sqlitestore.NewUserStore(store)

	oauth := google.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, youtubeUploadScope)
	renderer := ffmpeg.NewRendererWithTools(cfg.FFmpegPath, cfg.FFprobePath)
	uploader := youtube.NewClient(int64(cfg.UploadChunkSizeMB) * 1024 * 1024)

	refresher := service.NewCredentialRefresher(users, oauth)
	fulfiller := service.NewFulfiller(tunes, renderer, uploader, int64(cfg.UploadConcurrency))
	dispatcher := service.NewDispatcher(tunes, users, refresher, fulfiller, cfg.SweepInterval)

	return &app{
		cfg:        cfg,
		store:      store,
		tuneSvc:    service.NewTuneService(tunes, cfg.DataDir),
		authSvc:    service.NewAuthService(users, oauth, cfg.AuthSecret),
		dispatcher: dispatcher,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Error.Printf("close store: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "tunecast",
	Short:         "Scheduled audio+image to YouTube upload service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; config falls back to the process environment.
		_ = godotenv.Load()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled dispatch loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		logger.Info.Printf("starting tunecast on port %d, domain=%s", a.cfg.Port, a.cfg.Domain)

		dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
		defer dispatchCancel()
		go a.dispatcher.Run(dispatchCtx)

		server := HTTPAdapter.NewServer(a.authSvc, a.tuneSvc, a.dispatcher, a.cfg.MaxUploadSizeMB)
		httpServer := &http.Server{
			Addr:         fmt.Sprintf(":%d", a.cfg.Port),
			Handler:      server,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigChan
			logger.Info.Printf("received %s, shutting down", sig)

			// Stop accepting new requests first, then let in-flight
			// fulfillments wind down.
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error.Printf("http shutdown error: %v", err)
			}
			dispatchCancel()
			logger.Info.Printf("shutdown complete")
		}()

		logger.Info.Printf("server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one dispatch pass over due tunes and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.dispatcher.DispatchDue(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		// NewStore already migrated on open; this command exists so deploys
		// can run migrations separately from serving.
		logger.Info.Printf("database is up to date")
		return nil
	},
}

var userAddCmd = &cobra.Command{
	Use:   "user-add username password",
	Short: "Create a user account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		user, err := a.authSvc.CreateUser(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("created user %s (id %d)\n", user.Username, user.ID)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, userAddCmd)
	if err := rootCmd.Execute(); err != nil {
		logger.Error.Printf("%v", err)
		os.Exit(1)
	}
}
