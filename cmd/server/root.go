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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/config"
	"github.com/zaqqye/simlab_backend/internal/database"
	"github.com/zaqqye/simlab_backend/internal/logger"
	"github.com/zaqqye/simlab_backend/internal/middleware"
	"github.com/zaqqye/simlab_backend/internal/routes"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgPath string
	noSeed  bool
)

var log = logger.New("main")

var rootCmd = &cobra.Command{
	Use:          "simlab",
	Short:        "Clinical simulation scheduling and grading service",
	SilenceUsage: true,
	RunE:         serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate, seed and start the HTTP server",
	RunE:  serve,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and constraints",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := setup()
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Infof("schema up to date")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the initial admin and default room types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := setup()
		if err != nil {
			return err
		}
		return seed(db, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().BoolVar(&noSeed, "no-seed", false, "skip seeding on serve")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return cfg, db, nil
}

func seed(db *gorm.DB, cfg *config.Config) error {
	if err := database.SeedAdmin(db, cfg); err != nil {
		return fmt.Errorf("admin seed failed: %w", err)
	}
	if err := database.SeedRoomTypes(db); err != nil {
		return fmt.Errorf("room type seed failed: %w", err)
	}
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, db, err := setup()
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if !noSeed {
		if err := seed(db, cfg); err != nil {
			return err
		}
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger.NewZerologLogger("http").Zerolog()))
	if err := routes.Register(ctx, r, db, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server exited with error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
