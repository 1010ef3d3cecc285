// Package config loads application configuration from a .env file, an
// optional tradeconfirm.yaml and TRADECONFIRM_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TRADECONFIRM"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// scheduleOff disables a cron job when used as its spec.
const scheduleOff = "off"

// Config holds the application configuration.
type Config struct {
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditUserAgent    string

	Subreddit   string
	BotName     string
	WikiPrefix  string
	LabelsFile  string
	PostFlairID string

	PollInterval    time.Duration
	PollMinInterval time.Duration
	PageLimit       int
	MaxPages        int
	Workers         int
	DrainTimeout    time.Duration

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	DedupLease           time.Duration

	DBDriver    string
	DBPath      string
	PostgresDSN string
	ListenAddr  string

	PushoverToken  string
	PushoverUser   string
	DiscordToken   string
	DiscordChannel string

	RotateSchedule string
	LockSchedule   string

	LogLevel  string
	LogFormat string
}

// HasRedditCredentials returns true when every value the password grant
// needs is present.
func (c *Config) HasRedditCredentials() bool {
	return c.RedditClientID != "" && c.RedditClientSecret != "" &&
		c.RedditUsername != "" && c.RedditPassword != ""
}

// RequireReddit reports which settings are missing for commands that talk to
// the forum.
func (c *Config) RequireReddit() error {
	var missing []string
	for key, v := range map[string]string{
		"TRADECONFIRM_REDDIT_CLIENT_ID":     c.RedditClientID,
		"TRADECONFIRM_REDDIT_CLIENT_SECRET": c.RedditClientSecret,
		"TRADECONFIRM_REDDIT_USERNAME":      c.RedditUsername,
		"TRADECONFIRM_REDDIT_PASSWORD":      c.RedditPassword,
		"TRADECONFIRM_SUBREDDIT":            c.Subreddit,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
}

// EffectiveBotName is the configured bot name, or the Reddit username when
// no override is set.
func (c *Config) EffectiveBotName() string {
	if c.BotName != "" {
		return c.BotName
	}
	return c.RedditUsername
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reddit.user_agent", "linux:tradeconfirm:v1 (confirmation bot)")
	v.SetDefault("wiki.prefix", "trade-confirmation-bot")
	v.SetDefault("poll.interval", 15*time.Second)
	v.SetDefault("poll.min_interval", 2*time.Second)
	v.SetDefault("poll.page_limit", 100)
	v.SetDefault("poll.max_pages", 9)
	v.SetDefault("poll.workers", 4)
	v.SetDefault("poll.drain_timeout", 30*time.Second)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.max_interval", 30*time.Second)
	v.SetDefault("dedup.lease", 10*time.Minute)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.path", "tradeconfirm.db")
	v.SetDefault("listen.addr", "127.0.0.1:8080")
	v.SetDefault("rotate.schedule", "0 0 1 * *")
	v.SetDefault("lock.schedule", "0 0 5 * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration and returns a validated Config. A .env file in the
// working directory is loaded first without overriding variables already set;
// tradeconfirm.yaml is optional. Keys map to environment variables by
// upper-casing and replacing "." with "_", e.g. poll.interval is
// TRADECONFIRM_POLL_INTERVAL.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tradeconfirm")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read tradeconfirm.yaml: %w", err)
		}
	}

	cfg := &Config{
		RedditClientID:     v.GetString("reddit.client_id"),
		RedditClientSecret: v.GetString("reddit.client_secret"),
		RedditUsername:     v.GetString("reddit.username"),
		RedditPassword:     v.GetString("reddit.password"),
		RedditUserAgent:    v.GetString("reddit.user_agent"),

		Subreddit:   strings.TrimPrefix(v.GetString("subreddit"), "r/"),
		BotName:     v.GetString("bot.name"),
		WikiPrefix:  v.GetString("wiki.prefix"),
		LabelsFile:  v.GetString("labels.file"),
		PostFlairID: v.GetString("post.flair_id"),

		PollInterval:    v.GetDuration("poll.interval"),
		PollMinInterval: v.GetDuration("poll.min_interval"),
		PageLimit:       v.GetInt("poll.page_limit"),
		MaxPages:        v.GetInt("poll.max_pages"),
		Workers:         v.GetInt("poll.workers"),
		DrainTimeout:    v.GetDuration("poll.drain_timeout"),

		RetryMaxAttempts:     v.GetInt("retry.max_attempts"),
		RetryInitialInterval: v.GetDuration("retry.initial_interval"),
		RetryMaxInterval:     v.GetDuration("retry.max_interval"),
		DedupLease:           v.GetDuration("dedup.lease"),

		DBDriver:    strings.ToLower(v.GetString("db.driver")),
		DBPath:      v.GetString("db.path"),
		PostgresDSN: v.GetString("postgres.dsn"),
		ListenAddr:  v.GetString("listen.addr"),

		PushoverToken:  v.GetString("pushover.token"),
		PushoverUser:   v.GetString("pushover.user"),
		DiscordToken:   v.GetString("discord.token"),
		DiscordChannel: v.GetString("discord.channel"),

		RotateSchedule: schedule(v.GetString("rotate.schedule")),
		LockSchedule:   schedule(v.GetString("lock.schedule")),

		LogLevel:  v.GetString("log.level"),
		LogFormat: strings.ToLower(v.GetString("log.format")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func schedule(spec string) string {
	spec = strings.TrimSpace(spec)
	if strings.EqualFold(spec, scheduleOff) {
		return ""
	}
	return spec
}

func (c *Config) validate() error {
	var errs []error

	positive := []struct {
		key string
		d   time.Duration
	}{
		{"TRADECONFIRM_POLL_INTERVAL", c.PollInterval},
		{"TRADECONFIRM_POLL_MIN_INTERVAL", c.PollMinInterval},
		{"TRADECONFIRM_POLL_DRAIN_TIMEOUT", c.DrainTimeout},
		{"TRADECONFIRM_RETRY_INITIAL_INTERVAL", c.RetryInitialInterval},
		{"TRADECONFIRM_RETRY_MAX_INTERVAL", c.RetryMaxInterval},
		{"TRADECONFIRM_DEDUP_LEASE", c.DedupLease},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", p.key))
		}
	}
	if c.PollMinInterval > c.PollInterval {
		errs = append(errs, errors.New("TRADECONFIRM_POLL_MIN_INTERVAL must not exceed TRADECONFIRM_POLL_INTERVAL"))
	}

	counts := []struct {
		key string
		n   int
	}{
		{"TRADECONFIRM_POLL_PAGE_LIMIT", c.PageLimit},
		{"TRADECONFIRM_POLL_MAX_PAGES", c.MaxPages},
		{"TRADECONFIRM_POLL_WORKERS", c.Workers},
		{"TRADECONFIRM_RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts},
	}
	for _, n := range counts {
		if n.n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer", n.key))
		}
	}
	if c.PageLimit > 100 {
		errs = append(errs, errors.New("TRADECONFIRM_POLL_PAGE_LIMIT must not exceed 100"))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("TRADECONFIRM_DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("TRADECONFIRM_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("TRADECONFIRM_DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("TRADECONFIRM_LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("TRADECONFIRM_LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	if (c.PushoverToken == "") != (c.PushoverUser == "") {
		errs = append(errs, errors.New("TRADECONFIRM_PUSHOVER_TOKEN and TRADECONFIRM_PUSHOVER_USER must be set together"))
	}
	if (c.DiscordToken == "") != (c.DiscordChannel == "") {
		errs = append(errs, errors.New("TRADECONFIRM_DISCORD_TOKEN and TRADECONFIRM_DISCORD_CHANNEL must be set together"))
	}

	return errors.Join(errs...)
}
