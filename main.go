package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signalflow/config"
	"signalflow/internal/app"
	"signalflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	runNow := flag.Bool("run-now", false, "Run one evaluation cycle immediately and exit")
	daemon := flag.Bool("daemon", false, "Run on the configured schedule")
	refreshSupply := flag.Bool("refresh-supply", false, "Refresh the circulating-supply table and exit")
	forceSupply := flag.Bool("force", false, "With -refresh-supply, re-fetch symbols that already have a value")
	showNext := flag.Bool("show-next", false, "Print the next scheduled run time and exit")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace, cfg.Logging.CloudWatch.DashboardName)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Signalflow.Name,
		"version":     cfg.Signalflow.Version,
		"environment": env,
	}).Info("starting signalflow")

	if config.IsProductionLike(env) && !cfg.Notifier.Enabled {
		log.Warn("notifier is disabled in a production-like environment; reports will only be logged")
	}

	schedule, err := app.NewSchedule(cfg.Scheduler)
	if err != nil {
		log.WithError(err).Error("Failed to build schedule")
		os.Exit(1)
	}

	if *showNext {
		fmt.Println(schedule.NextRun(time.Now()).Format(time.RFC3339))
		return
	}

	application, err := app.New(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to initialize application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	switch {
	case *refreshSupply:
		if err := application.RefreshSupply(ctx, *forceSupply); err != nil {
			log.WithError(err).Error("supply refresh failed")
			os.Exit(1)
		}

	case *runNow:
		if err := application.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start application")
			os.Exit(1)
		}
		if _, err := application.RunCycle(ctx); err != nil {
			log.WithError(err).Error("evaluation cycle failed")
			cancel()
			application.Stop()
			os.Exit(1)
		}
		cancel()
		application.Stop()

	case *daemon:
		if err := application.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start application")
			os.Exit(1)
		}
		runLoop(ctx, log, schedule, application)
		application.Stop()

	default:
		flag.Usage()
		os.Exit(2)
	}

	log.Info("signalflow stopped")
}

// runLoop sleeps until each scheduled run time and executes one cycle. Cycle
// failures are logged; the loop only exits on cancellation.
func runLoop(ctx context.Context, log *logger.Log, schedule *app.Schedule, application *app.App) {
	for {
		next := schedule.NextRun(time.Now())
		log.WithComponent("main").WithFields(logger.Fields{"next_run": next}).Info("waiting for next scheduled cycle")

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return
		}

		if _, err := application.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("evaluation cycle failed")
		}
	}
}
