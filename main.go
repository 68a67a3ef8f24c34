package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/alerts"
	"github.com/brettboylen/creator-pulse/api"
	"github.com/brettboylen/creator-pulse/db"
	"github.com/brettboylen/creator-pulse/insights"
	"github.com/brettboylen/creator-pulse/metrics"
	"github.com/brettboylen/creator-pulse/stats"
	"github.com/brettboylen/creator-pulse/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel, os.Getenv("LOG_FORMAT"))
	log.Info("Starting Creator Pulse")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	log = setupLogger(*logLevel, config.App.LogFormat)

	log.WithFields(logrus.Fields{
		"alert_schedule":   config.Scheduler.AlertSchedule,
		"insight_schedule": config.Scheduler.InsightSchedule,
		"server_port":      config.Server.Port,
		"database":         config.Database.Path,
	}).Info("Configuration loaded")

	database, err := db.NewDatabase(config.Database.Path, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	m := metrics.New()
	alertEngine := alerts.NewEngine(database, config.Alerts, log)
	insightEngine := insights.NewEngine(database, config.Insights, log)

	runner := stats.NewRunner(database, alertEngine, insightEngine, stats.NewLogNotifier(log), m, stats.Config{
		AlertSchedule:   config.Scheduler.AlertSchedule,
		InsightSchedule: config.Scheduler.InsightSchedule,
		Concurrency:     config.Scheduler.Concurrency,
		RatePerSecond:   config.Scheduler.RatePerSecond,
		Burst:           config.Scheduler.Burst,
		HistoryDays:     config.Scheduler.HistoryDays,
	}, log)

	server := api.NewServer(api.Options{
		Store:                database,
		Alerts:               alertEngine,
		Insights:             insightEngine,
		Stats:                runner,
		Ingestor:             database,
		MetricsHandler:       m.Handler(),
		MaxRequestsPerMinute: config.Server.MaxRequestsPerMinute,
		HistoryDays:          config.Server.HistoryDays,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx, config.Server.Port)

	go func() {
		if err := runner.Start(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("Runner stopped unexpectedly")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, log)
}

// setupLogger sets up the logger with the specified log level and format
func setupLogger(level, format string) *logrus.Logger {
	log := logrus.New()
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// waitForShutdown waits for a shutdown signal or for ctx to end
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	time.Sleep(1 * time.Second)
	log.Info("Creator Pulse stopped")
}
