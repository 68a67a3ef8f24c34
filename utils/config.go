package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/alerts"
	"github.com/brettboylen/creator-pulse/cooldown"
	"github.com/brettboylen/creator-pulse/insights"
	"github.com/brettboylen/creator-pulse/models"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Alerts    alerts.Config
	Insights  insights.Config
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name      string
	Version   string
	LogFormat string // text or json
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port                 int
	MaxRequestsPerMinute int
	HistoryDays          int
}

// SchedulerConfig holds the runner schedules and fan-out limits
type SchedulerConfig struct {
	AlertSchedule   string
	InsightSchedule string
	Concurrency     int
	RatePerSecond   float64
	Burst           int
	HistoryDays     int
}

// LoadConfig loads configuration from the .env file and the environment.
// A missing .env file is not an error; the environment alone is used.
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
		log.WithField("file", envPath).Warn("No .env file found, using environment only")
	}

	alertCooldowns, err := parseCooldowns(getEnv("ALERT_COOLDOWNS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_COOLDOWNS: %w", err)
	}
	insightCooldowns, err := parseCooldowns(getEnv("INSIGHT_COOLDOWNS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid INSIGHT_COOLDOWNS: %w", err)
	}

	alertCfg, err := loadAlertConfig()
	if err != nil {
		return nil, err
	}
	alertCfg.Cooldowns = alertCfg.Cooldowns.Merge(alertCooldowns)

	insightCfg := loadInsightConfig()
	insightCfg.Cooldowns = insightCfg.Cooldowns.Merge(insightCooldowns)

	historyDays := getEnvAsInt("HISTORY_DAYS", 90)

	config := &Config{
		App: AppConfig{
			Name:      getEnv("APP_NAME", "Creator Pulse"),
			Version:   getEnv("APP_VERSION", "1.0.0"),
			LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./pulse.db"),
		},
		Server: ServerConfig{
			Port:                 getEnvAsInt("SERVER_PORT", 8080),
			MaxRequestsPerMinute: getEnvAsInt("SERVER_MAX_REQUESTS_PER_MINUTE", 120),
			HistoryDays:          historyDays,
		},
		Scheduler: SchedulerConfig{
			AlertSchedule:   getEnv("ALERT_SCHEDULE", "@every 1h"),
			InsightSchedule: getEnv("INSIGHT_SCHEDULE", "@daily"),
			Concurrency:     getEnvAsInt("RUNNER_CONCURRENCY", 4),
			RatePerSecond:   getEnvAsFloat("RUNNER_RATE_PER_SECOND", 10),
			Burst:           getEnvAsInt("RUNNER_BURST", 5),
			HistoryDays:     historyDays,
		},
		Alerts:   alertCfg,
		Insights: insightCfg,
	}

	// validation
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

func loadAlertConfig() (alerts.Config, error) {
	cfg := alerts.DefaultConfig()

	ps := &cfg.PeakShares
	ps.MinAgeDays = getEnvAsInt("PEAK_SHARES_MIN_AGE_DAYS", ps.MinAgeDays)
	ps.MaxAgeDays = getEnvAsInt("PEAK_SHARES_MAX_AGE_DAYS", ps.MaxAgeDays)
	ps.ComparisonLookbackDays = getEnvAsInt("PEAK_SHARES_LOOKBACK_DAYS", ps.ComparisonLookbackDays)
	ps.ComparisonPoolSize = getEnvAsInt("PEAK_SHARES_POOL_SIZE", ps.ComparisonPoolSize)
	ps.MinComparisonPosts = getEnvAsInt("PEAK_SHARES_MIN_POOL_POSTS", ps.MinComparisonPosts)
	ps.AbsoluteMinimum = getEnvAsFloat("PEAK_SHARES_MIN_SHARES", ps.AbsoluteMinimum)
	ps.Multiplier = getEnvAsFloat("PEAK_SHARES_MULTIPLIER", ps.Multiplier)

	wt := &cfg.WatchTime
	wt.LookbackDays = getEnvAsInt("WATCH_TIME_LOOKBACK_DAYS", wt.LookbackDays)
	wt.MinReels = getEnvAsInt("WATCH_TIME_MIN_REELS", wt.MinReels)
	wt.CurrentWindow = getEnvAsInt("WATCH_TIME_CURRENT_WINDOW", wt.CurrentWindow)
	wt.HistoricalPoolSize = getEnvAsInt("WATCH_TIME_POOL_SIZE", wt.HistoricalPoolSize)
	wt.DropThreshold = getEnvAsFloat("WATCH_TIME_DROP_THRESHOLD", wt.DropThreshold)
	wt.MinHistoricalSeconds = getEnvAsFloat("WATCH_TIME_MIN_HISTORICAL_SECONDS", wt.MinHistoricalSeconds)
	wt.SynthesizedFactor = getEnvAsFloat("WATCH_TIME_SYNTHESIZED_FACTOR", wt.SynthesizedFactor)
	wt.SynthesizedFloorSeconds = getEnvAsFloat("WATCH_TIME_SYNTHESIZED_FLOOR_SECONDS", wt.SynthesizedFloorSeconds)

	ff := &cfg.ForgottenFormat
	ff.LookbackDays = getEnvAsInt("FORGOTTEN_FORMAT_LOOKBACK_DAYS", ff.LookbackDays)
	ff.MinPostsPerFormat = getEnvAsInt("FORGOTTEN_FORMAT_MIN_POSTS", ff.MinPostsPerFormat)
	ff.UnusedDays = getEnvAsInt("FORGOTTEN_FORMAT_UNUSED_DAYS", ff.UnusedDays)
	ff.Multiplier = getEnvAsFloat("FORGOTTEN_FORMAT_MULTIPLIER", ff.Multiplier)

	ut := &cfg.UntappedTopic
	ut.LookbackDays = getEnvAsInt("UNTAPPED_TOPIC_LOOKBACK_DAYS", ut.LookbackDays)
	ut.RecentDays = getEnvAsInt("UNTAPPED_TOPIC_RECENT_DAYS", ut.RecentDays)
	ut.MinRecentPosts = getEnvAsInt("UNTAPPED_TOPIC_MIN_RECENT_POSTS", ut.MinRecentPosts)
	ut.MinOlderPosts = getEnvAsInt("UNTAPPED_TOPIC_MIN_OLDER_POSTS", ut.MinOlderPosts)
	ut.TopFraction = getEnvAsFloat("UNTAPPED_TOPIC_TOP_FRACTION", ut.TopFraction)
	ut.MinSameFormatRecent = getEnvAsInt("UNTAPPED_TOPIC_MIN_SAME_FORMAT_RECENT", ut.MinSameFormatRecent)
	ut.Multiplier = getEnvAsFloat("UNTAPPED_TOPIC_MULTIPLIER", ut.Multiplier)

	ep := &cfg.EngagementPeak
	ep.MinAgeDays = getEnvAsInt("ENGAGEMENT_PEAK_MIN_AGE_DAYS", ep.MinAgeDays)
	ep.MaxAgeDays = getEnvAsInt("ENGAGEMENT_PEAK_MAX_AGE_DAYS", ep.MaxAgeDays)
	ep.HistoricalLookbackDays = getEnvAsInt("ENGAGEMENT_PEAK_LOOKBACK_DAYS", ep.HistoricalLookbackDays)
	ep.MinHistoricalPosts = getEnvAsInt("ENGAGEMENT_PEAK_MIN_HISTORICAL_POSTS", ep.MinHistoricalPosts)
	ep.AbsoluteMinimum = getEnvAsFloat("ENGAGEMENT_PEAK_MIN_COMMENTS", ep.AbsoluteMinimum)
	ep.Multiplier = getEnvAsFloat("ENGAGEMENT_PEAK_MULTIPLIER", ep.Multiplier)

	if raw := getEnv("ALERT_RANKING_METRIC", ""); raw != "" {
		metric, err := models.ParseMetric(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid ALERT_RANKING_METRIC: %w", err)
		}
		ff.Metric = metric
		ut.Metric = metric
	}

	return cfg, nil
}

func loadInsightConfig() insights.Config {
	cfg := insights.DefaultConfig()

	cfg.LookbackDays = getEnvAsInt("INSIGHT_LOOKBACK_DAYS", cfg.LookbackDays)
	cfg.MinFollowerGrowth = int64(getEnvAsInt("INSIGHT_MIN_FOLLOWER_GROWTH", int(cfg.MinFollowerGrowth)))
	cfg.TopPostMinPosts = getEnvAsInt("INSIGHT_TOP_POST_MIN_POSTS", cfg.TopPostMinPosts)
	cfg.TopPostMultiplier = getEnvAsFloat("INSIGHT_TOP_POST_MULTIPLIER", cfg.TopPostMultiplier)
	cfg.ConsistencyMinPosts = getEnvAsInt("INSIGHT_CONSISTENCY_MIN_POSTS", cfg.ConsistencyMinPosts)
	cfg.BestDayMinPosts = getEnvAsInt("INSIGHT_BEST_DAY_MIN_POSTS", cfg.BestDayMinPosts)
	cfg.BestDayMinSlots = getEnvAsInt("INSIGHT_BEST_DAY_MIN_SLOTS", cfg.BestDayMinSlots)
	cfg.ReachMinPosts = getEnvAsInt("INSIGHT_REACH_MIN_POSTS", cfg.ReachMinPosts)
	cfg.ReachMultiplier = getEnvAsFloat("INSIGHT_REACH_MULTIPLIER", cfg.ReachMultiplier)
	cfg.ContentTypeMinPosts = getEnvAsInt("INSIGHT_CONTENT_TYPE_MIN_POSTS", cfg.ContentTypeMinPosts)
	cfg.ContentTypeMultiplier = getEnvAsFloat("INSIGHT_CONTENT_TYPE_MULTIPLIER", cfg.ContentTypeMultiplier)
	cfg.FormatVariationDays = getEnvAsInt("INSIGHT_FORMAT_VARIATION_DAYS", cfg.FormatVariationDays)
	cfg.ProposalMinPosts = getEnvAsInt("INSIGHT_PROPOSAL_MIN_POSTS", cfg.ProposalMinPosts)
	cfg.ProposalMultiplier = getEnvAsFloat("INSIGHT_PROPOSAL_MULTIPLIER", cfg.ProposalMultiplier)
	cfg.ProposalRecentDays = getEnvAsInt("INSIGHT_PROPOSAL_RECENT_DAYS", cfg.ProposalRecentDays)
	cfg.DominanceRatio = getEnvAsFloat("INSIGHT_DOMINANCE_RATIO", cfg.DominanceRatio)
	cfg.DominanceMinPosts = getEnvAsInt("INSIGHT_DOMINANCE_MIN_POSTS", cfg.DominanceMinPosts)

	return cfg
}

// parseCooldowns parses "type:days,type:days" into a cooldown table
func parseCooldowns(raw string) (cooldown.Config, error) {
	cfg := make(cooldown.Config)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, daysStr, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected type:days, got %q", part)
		}

		days, err := strconv.Atoi(strings.TrimSpace(daysStr))
		if err != nil || days < 1 {
			return nil, fmt.Errorf("cooldown for %s must be a positive number of days, got %q", name, daysStr)
		}
		cfg[name] = days
	}
	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if config.Scheduler.Concurrency < 1 {
		return fmt.Errorf("RUNNER_CONCURRENCY must be positive")
	}
	if config.App.LogFormat != "text" && config.App.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(config.Scheduler.AlertSchedule); err != nil {
		return fmt.Errorf("ALERT_SCHEDULE is invalid: %w", err)
	}
	if _, err := parser.Parse(config.Scheduler.InsightSchedule); err != nil {
		return fmt.Errorf("INSIGHT_SCHEDULE is invalid: %w", err)
	}

	if config.Alerts.PeakShares.MinAgeDays > config.Alerts.PeakShares.MaxAgeDays {
		return fmt.Errorf("PEAK_SHARES_MIN_AGE_DAYS must not exceed PEAK_SHARES_MAX_AGE_DAYS")
	}
	if d := config.Alerts.WatchTime.DropThreshold; d <= 0 || d >= 1 {
		return fmt.Errorf("WATCH_TIME_DROP_THRESHOLD must be between 0 and 1")
	}
	if config.Alerts.EngagementPeak.MinAgeDays > config.Alerts.EngagementPeak.MaxAgeDays {
		return fmt.Errorf("ENGAGEMENT_PEAK_MIN_AGE_DAYS must not exceed ENGAGEMENT_PEAK_MAX_AGE_DAYS")
	}
	if f := config.Alerts.UntappedTopic.TopFraction; f <= 0 || f > 1 {
		return fmt.Errorf("UNTAPPED_TOPIC_TOP_FRACTION must be in (0, 1]")
	}

	// if we are storing the db in a nested directory, create the directory
	dbDir := filepath.Dir(config.Database.Path)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
