package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"treasury/migrations"
	"treasury/src/api"
	"treasury/src/app"
	"treasury/src/config"
	"treasury/src/database"
	"treasury/src/utils"
	"treasury/src/worker"
)

var (
	settingsPath string
	serviceType  string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "treasury",
		Short:        "Bitcoin treasury data service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "./settings", "directory holding appsettings.yaml")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the API or the worker service",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&serviceType, "type", "", "service type (API or WORKER), overrides config")

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "sync-entity <slug>",
			Short: "Run the entity detail sync once and print the result",
			Args:  cobra.ExactArgs(1),
			RunE:  runSyncEntity,
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(settingsPath, os.Getenv("ENV"))
	if err != nil {
		return nil, nil, fmt.Errorf("error while loading config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serviceType != "" {
		cfg.Service.Type = config.ServiceType(serviceType)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	var httpServer *http.Server
	if cfg.Service.Type == config.WORKER {
		server := worker.NewServer(deps)
		if err := server.Controller.StartWarmupSchedule(cfg.Worker.WarmupCron); err != nil {
			return err
		}
		defer server.Controller.StopSchedules()
		httpServer = worker.NewHTTPServer(server, cfg.Service.Port)
	} else {
		httpServer = api.NewHTTPServer(api.NewServer(deps), cfg.Service.Port)
	}

	errC := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Service.Port, "type": cfg.Service.Type}).Info("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	dsn, err := database.ResolveDSN(cfg.Databases.SQL)
	if err != nil {
		return err
	}
	return migrations.Up(dsn, logger)
}

func runSyncEntity(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	deps, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Sync.Timeout)
	defer cancel()

	entity, err := deps.Entities.SyncEntityDetail(ctx, args[0])
	if err != nil {
		return err
	}
	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(entity)
}
