package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stockwatch/internal/api"
	"stockwatch/internal/catalog"
	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/detect"
	"stockwatch/internal/fetch"
	"stockwatch/internal/notify"
	"stockwatch/internal/notify/channel"
	"stockwatch/internal/poll"
	"stockwatch/internal/pubsub"
	"stockwatch/internal/schedule"
	"stockwatch/internal/store"
	"stockwatch/internal/transition"
)

// Exit codes per the operational surface: 0 success, 1 config invalid,
// 2 migration failure, 3 fatal runtime, 130 cancelled.
const (
	exitOK            = 0
	exitConfigInvalid = 1
	exitMigration     = 2
	exitRuntime       = 3
	exitCancelled     = 130
)

func main() {
	app := &cli.App{
		Name:  "stockwatch",
		Usage: "VPS stock availability monitor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "path to a .env file to load before reading environment variables"},
		},
		Commands: []*cli.Command{
			{Name: "server", Usage: "run the full poll/evaluate/notify pipeline and the inbound API", Action: runServer},
			{Name: "migrate", Usage: "apply pending migrations and exit", Action: runMigrate},
			{
				Name:  "poll",
				Usage: "run one diagnostic fetch+detect+fuse for a single item, without scheduling or notifying",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "item", Required: true, Usage: "item UUID"},
				},
				Action: runPollOnce,
			},
			{
				Name:  "prune",
				Usage: "force a check_history prune",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "before", Required: true, Usage: "prune check_history rows older than this age"},
				},
				Action: runPrune,
			},
			{
				Name:   "config",
				Usage:  "configuration utilities",
				Subcommands: []*cli.Command{
					{Name: "dump", Usage: "print the resolved, validated configuration as JSON", Action: runConfigDump},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(*cliExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.err)
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntime)
	}
}

// cliExitError carries an explicit process exit code through urfave/cli's
// error-returning Action signature.
type cliExitError struct {
	err  error
	code int
}

func (e *cliExitError) Error() string { return e.err.Error() }

func exitErrf(code int, format string, args ...interface{}) error {
	return &cliExitError{err: fmt.Errorf(format, args...), code: code}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return config.Config{}, exitErrf(exitConfigInvalid, "config: %w", err)
	}
	return cfg, nil
}

func newLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}

// runServer starts the scheduler, the notification manager and the inbound
// HTTP API together, shutting all three down gracefully on SIGINT/SIGTERM.
func runServer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var cancelled atomic.Bool
	go func() {
		<-sigChan
		log.Info("server: shutdown signal received")
		cancelled.Store(true)
		cancel()
	}()

	clk := clock.Real{}
	st, err := store.Open(ctx, cfg.DatabaseURL, clk, log)
	if err != nil {
		return exitErrf(exitRuntime, "server: open store: %w", err)
	}
	defer st.Close()

	events := buildPubSub(cfg, log)
	defer events.Close()

	sinks := buildSinks(cfg, log)
	manager := notify.NewManager(notify.Config{FlushInterval: cfg.AggregationInterval}, st, clk, sinks, events, log)
	manager.Start(ctx)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer shutdownCancel()
		if err := manager.Stop(shutdownCtx); err != nil {
			log.Warn("server: notify manager stop error", zap.Error(err))
		}
	}()

	httpClient := fetch.NewHTTPClient(cfg.FetchTimeout, cfg.PerHostMinDelay)
	var browsers *fetch.BrowserPool
	if cfg.EnableRender {
		browsers, err = fetch.NewBrowserPool(cfg.MaxBrowsers, log)
		if err != nil {
			log.Warn("server: browser pool unavailable, rendering disabled", zap.Error(err))
			browsers = nil
		} else {
			defer browsers.Close()
		}
	}

	evaluator := transition.New(cfg.ConfidenceThreshold, cfg.ErrorThreshold, clk)
	poller := poll.New(httpClient, browsers, st, evaluator, manager, events, clk, cfg)

	hostLocks := schedule.NewHostLockTable(func() rate.Limit { return rate.Every(cfg.PerHostMinDelay) })
	retry := schedule.NewRetryPolicy(cfg.RetryDelay, cfg.MaxRetries, cfg.BlockedBackoff, clk.Sleep, poll.ClassifyPollError)
	sched := schedule.New(st, poller, hostLocks, retry, clk, cfg.TickInterval, cfg.MaxWorkers, cfg.ShutdownGrace)

	schedErrCh := make(chan error, 1)
	go func() { schedErrCh <- sched.Run(ctx) }()

	cat := catalog.New(st, cfg, clk, log)
	srv := api.NewServer(cat, st, cfg, log)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewRouter(srv, cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
			return
		}
		httpErrCh <- nil
	}()

	log.Info("server: ready", zap.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
	case err := <-httpErrCh:
		if err != nil {
			log.Error("server: http server failed", zap.Error(err))
			cancel()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("server: http shutdown error", zap.Error(err))
	}
	<-schedErrCh

	if cancelled.Load() {
		return &cliExitError{err: fmt.Errorf("server: cancelled"), code: exitCancelled}
	}
	return nil
}

// buildPubSub constructs the process-wide eventing transport: Redis-backed
// when STOCKWATCH_REDIS_URL is set, so more than one server instance shares
// published events, or in-memory for a single-instance deployment.
func buildPubSub(cfg config.Config, log *zap.Logger) pubsub.PubSub {
	if cfg.RedisURL == "" {
		return pubsub.NewMemoryPubSub()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("server: invalid redis url, falling back to in-memory pubsub", zap.Error(err))
		return pubsub.NewMemoryPubSub()
	}
	client := redis.NewClient(opts)
	return pubsub.NewRedisPubSub(client)
}

func buildSinks(cfg config.Config, log *zap.Logger) []channel.Sink {
	var sinks []channel.Sink
	if cfg.SendGridAPIKey != "" {
		sink, err := channel.NewSendGridSink(channel.SendGridConfig{
			APIKey: cfg.SendGridAPIKey, FromEmail: cfg.FromEmail, FromName: cfg.FromName,
		})
		if err != nil {
			log.Warn("server: sendgrid sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	sinks = append(sinks, channel.NewWebSocketHub())
	return sinks
}

func runMigrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()

	st, err := store.Open(context.Background(), cfg.DatabaseURL, clock.Real{}, log)
	if err != nil {
		return exitErrf(exitMigration, "migrate: %w", err)
	}
	defer st.Close()

	fmt.Println("migrations applied")
	return nil
}

// runPollOnce runs a single fetch+detect+fuse cycle for one item, printing
// the fused verdict without touching the scheduler, transition evaluator or
// notification pipeline — a diagnostic tool only (§6).
func runPollOnce(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()

	itemID, err := uuid.Parse(c.String("item"))
	if err != nil {
		return exitErrf(exitRuntime, "poll: invalid item id: %w", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DatabaseURL, clock.Real{}, log)
	if err != nil {
		return exitErrf(exitRuntime, "poll: open store: %w", err)
	}
	defer st.Close()

	item, err := st.GetItem(ctx, itemID)
	if err != nil {
		return exitErrf(exitRuntime, "poll: %w", err)
	}

	httpClient := fetch.NewHTTPClient(cfg.FetchTimeout, cfg.PerHostMinDelay)
	result, err := httpClient.Fetch(ctx, item.URL)
	if err != nil {
		return exitErrf(exitRuntime, "poll: fetch: %w", err)
	}

	in := detect.Input{
		URL:                 item.URL,
		RawBody:             result.Body,
		PreviousFingerprint: item.FingerprintHash,
		APIProbeEndpoint:    item.APIProbeEndpoint,
		HTTPDo: func(ctx context.Context, method, url string) (int, []byte, error) {
			r, err := httpClient.Fetch(ctx, url)
			return r.StatusCode, r.Body, err
		},
	}
	results := detect.RunAll(ctx, in, cfg.DetectorTimeout)
	weights := detect.Weights{
		Keyword: cfg.DetectorWeights.Keyword, Dom: cfg.DetectorWeights.Dom,
		APIProbe: cfg.DetectorWeights.APIProbe, Fingerprint: cfg.DetectorWeights.Fingerprint,
	}
	fused := detect.Fuse(results, weights, cfg.ConfidenceThreshold)

	fmt.Printf("verdict=%s confidence=%.2f http_status=%d\n", fused.Verdict, fused.Confidence, result.StatusCode)
	for name, r := range results {
		fmt.Printf("  %s: verdict=%s confidence=%.2f evidence=%q\n", name, r.Verdict, r.Confidence, r.Evidence)
	}
	return nil
}

func runPrune(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DatabaseURL, clock.Real{}, log)
	if err != nil {
		return exitErrf(exitRuntime, "prune: open store: %w", err)
	}
	defer st.Close()

	cutoff := time.Now().UTC().Add(-c.Duration("before"))
	n, err := st.PruneHistory(ctx, cutoff)
	if err != nil {
		return exitErrf(exitRuntime, "prune: %w", err)
	}
	fmt.Printf("pruned %d check_history rows older than %s\n", n, cutoff.Format(time.RFC3339))
	return nil
}

func runConfigDump(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := cfg.DumpJSON()
	if err != nil {
		return exitErrf(exitRuntime, "config dump: %w", err)
	}
	fmt.Println(out)
	return nil
}
