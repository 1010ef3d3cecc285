package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/web"
	"github.com/ericfisherdev/tradeconfirm/internal/application"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoHTTP        bool
	SecureCookies bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot with the dashboard and API",
		Long: `Run the poll loop, the monthly thread scheduler and the HTTP server until
interrupted. Queued comments are dropped on shutdown and rediscovered on the
next start; comments already being processed are allowed to finish.

Example:
  tradeconfirm serve
  TRADECONFIRM_LISTEN_ADDR=0.0.0.0:8080 tradeconfirm serve --secure-cookies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoHTTP, "no-http", false, "do not start the HTTP server")
	cmd.Flags().BoolVar(&opts.SecureCookies, "secure-cookies", false, "mark dashboard cookies Secure (serve behind HTTPS)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) (err error) {
	cfg, logger, err := loadConfig(opts.RootOptions, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWith(&err, a.close)

	scheduler, err := application.NewScheduler(a.threads, cfg.RotateSchedule, cfg.LockSchedule, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid schedule", err)
	}

	if err := a.threads.Refresh(ctx); err != nil {
		logger.Warn("initial thread refresh failed, continuing", "error", err)
	}

	// runCtx ends on signal or when the poll loop is stopped over the API.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		a.poll.Start(runCtx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Start(runCtx)
	}()

	var srv *http.Server
	if !opts.NoHTTP {
		srv = newServer(a, opts, logger)
		go func() {
			logger.Info("http server starting", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
				cancel()
			}
		}()
	}

	logger.Info("tradeconfirm started",
		"subreddit", cfg.Subreddit,
		"bot", cfg.EffectiveBotName(),
		"workers", cfg.Workers,
		"poll_interval", cfg.PollInterval,
		"next_jobs", scheduler.Next(),
	)

	<-runCtx.Done()
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

// newServer mounts the API and dashboard on one mux.
func newServer(a *app, opts *ServeOptions, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	api := httphandler.NewHandler(a.status, a.poll, a.threads, a.resolver, a.ledger, logger)
	httphandler.RegisterAPIRoutes(mux, api)

	web := webhandler.NewHandler(webhandler.Deps{
		Status:        a.status,
		Templates:     a.resolver,
		Poller:        a.poll,
		Threads:       a.threads,
		Labels:        a.ledger,
		SecureCookies: opts.SecureCookies,
	}, logger)
	webhandler.RegisterRoutes(mux, web)

	return &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.ApplyMiddleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
