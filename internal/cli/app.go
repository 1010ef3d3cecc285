package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ericfisherdev/tradeconfirm/internal/adapter/driven/labelfile"
	"github.com/ericfisherdev/tradeconfirm/internal/adapter/driven/notify"
	postgresadapter "github.com/ericfisherdev/tradeconfirm/internal/adapter/driven/postgres"
	"github.com/ericfisherdev/tradeconfirm/internal/adapter/driven/reddit"
	"github.com/ericfisherdev/tradeconfirm/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/config"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// newLogger builds the process logger from configuration. verbose forces
// debug level.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig reads configuration and installs the default logger.
func loadConfig(opts *RootOptions, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := newLogger(cfg, opts.Verbose, logOut)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// stores groups the persistence ports behind the configured driver.
type stores struct {
	dedup     driven.DedupStore
	ledger    driven.LedgerStore
	watermark driven.WatermarkStore
	threads   driven.ThreadStore
	close     func() error
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pg, err := postgresadapter.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		store := postgresadapter.NewStore(pg.DB, logger)
		logger.Info("postgres store opened")
		return &stores{dedup: store, ledger: store, watermark: store, threads: store, close: pg.Close}, nil

	case config.DriverSQLite:
		db, err := sqlite.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		version, dirty, err := sqlite.SchemaVersion(db.Writer)
		if err != nil {
			logger.Warn("could not read schema version", "error", err)
		}
		logger.Info("sqlite store opened", "path", cfg.DBPath, "schema_version", version, "dirty", dirty)
		return &stores{
			dedup:     sqlite.NewDedupRepo(db),
			ledger:    sqlite.NewLedgerRepo(db),
			watermark: sqlite.NewWatermarkRepo(db),
			threads:   sqlite.NewThreadRepo(db),
			close:     db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// newNotifier fans alerts out to the log plus every configured channel.
func newNotifier(cfg *config.Config, logger *slog.Logger) (driven.Notifier, error) {
	source := "tradeconfirm r/" + cfg.Subreddit
	var channels []driven.Notifier
	if cfg.PushoverToken != "" {
		channels = append(channels, notify.NewPushover(cfg.PushoverToken, cfg.PushoverUser, source))
	}
	if cfg.DiscordToken != "" {
		d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel, source)
		if err != nil {
			return nil, err
		}
		channels = append(channels, d)
	}
	return notify.NewMulti(logger, channels...), nil
}

// app is the wired engine shared by the serve, cycle and rotate commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	stores   *stores
	forum    *reddit.Client
	resolver *application.TemplateResolver
	ledger   *application.UserLedger
	cursor   *application.WatermarkCursor
	threads  *application.ThreadService
	poll     *application.PollService
	status   *application.StatusService
}

// newApp connects to the forum and stores and wires the services.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.RequireReddit(); err != nil {
		return nil, WrapExitError(ExitCommandError, "reddit is not configured", err)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		_ = st.close()
		return nil, err
	}

	forum := reddit.NewClient(ctx, reddit.Credentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	}, cfg.Subreddit)

	var labels driven.LabelTemplateSource = forum
	if cfg.LabelsFile != "" {
		src, err := labelfile.Load(cfg.LabelsFile)
		if err != nil {
			_ = st.close()
			return nil, WrapExitError(ExitCommandError, "invalid label file", err)
		}
		labels = src
		logger.Info("label templates loaded from file", "path", cfg.LabelsFile)
	}

	botName := cfg.EffectiveBotName()
	resolver := application.NewTemplateResolver(reddit.NewWikiStore(forum, cfg.WikiPrefix), logger)
	ledger := application.NewUserLedger(forum, labels, st.ledger, notifier, logger)
	cursor := application.NewWatermarkCursor(forum, st.watermark, notifier, cfg.PageLimit, cfg.MaxPages, logger)
	threads := application.NewThreadService(forum, st.threads, resolver, notifier, application.ThreadConfig{
		BotName:     botName,
		Subreddit:   cfg.Subreddit,
		PostFlairID: cfg.PostFlairID,
	}, logger)
	pipeline := application.NewConfirmationPipeline(forum, st.dedup, ledger, resolver, threads, notifier, application.PipelineConfig{
		BotName:   botName,
		Subreddit: cfg.Subreddit,
		Lease:     cfg.DedupLease,
		Retry: application.RetryPolicy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		},
	}, logger)
	poll := application.NewPollService(cursor, pipeline, threads, application.PollConfig{
		MinInterval:  cfg.PollMinInterval,
		MaxInterval:  cfg.PollInterval,
		Workers:      cfg.Workers,
		DrainTimeout: cfg.DrainTimeout,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		stores:   st,
		forum:    forum,
		resolver: resolver,
		ledger:   ledger,
		cursor:   cursor,
		threads:  threads,
		poll:     poll,
		status:   application.NewStatusService(cursor, st.dedup, st.ledger, poll, threads, cfg.Subreddit, botName),
	}, nil
}

// close waits for queued ledger writes and releases the store.
func (a *app) close() error {
	a.ledger.Wait()
	return a.stores.close()
}

// closeWith joins a deferred close error into err.
func closeWith(err *error, closer func() error) {
	if cerr := closer(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("close: %w", cerr))
	}
}
