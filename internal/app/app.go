package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"apples-watch/internal/alerting"
	"apples-watch/internal/alertstore"
	"apples-watch/internal/config"
	"apples-watch/internal/fetcher"
	"apples-watch/internal/flatfile"
	"apples-watch/internal/metrics"
	"apples-watch/internal/parser"
	"apples-watch/internal/scheduler"
	"apples-watch/internal/service"
	"apples-watch/internal/storage"
)

// DefaultAlertsDB is used by the alert management commands when no path is configured.
const DefaultAlertsDB = "alerts.db"

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// RunOptions hold per-invocation overrides for run and watch.
type RunOptions struct {
	URL      string
	CSVPath  string
	NoCSV    bool
	Insecure bool
	AlertsDB string
	FromFile string
	Top      int
	JSON     bool
}

func (a *App) sourceURL(opts RunOptions) string {
	if opts.URL != "" {
		return opts.URL
	}
	return a.Config.Source.URL
}

func (a *App) newFetcher(opts RunOptions) fetcher.DocumentFetcher {
	if opts.FromFile != "" {
		return fetcher.NewFile(opts.FromFile, a.Logger)
	}
	src := a.Config.Source
	return fetcher.NewWeb(fetcher.WebOptions{
		Timeout:            src.RequestTimeout,
		UserAgent:          src.UserAgent,
		Referer:            src.Referer,
		InsecureSkipVerify: src.InsecureSkipVerify || opts.Insecure,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var email, telegram alerting.Notifier
	if a.Config.SMTPConfigured() {
		smtp := a.Config.SMTP
		email = alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
			StartTLS: smtp.StartTLS,
			Timeout:  smtp.Timeout,
		}, a.Logger)
	}
	if a.Config.Alerts.Telegram.Enabled {
		cfg := a.Config.Alerts.Telegram
		telegram = alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewMultiNotifier(email, telegram)
}

// newWriters returns the configured sinks. A relational sink that is enabled but
// has no resolvable connection parameters is reported and skipped.
func (a *App) newWriters(opts RunOptions) []service.SnapshotWriter {
	writers := make([]service.SnapshotWriter, 0, 2)

	if a.Config.Database.Enabled {
		dsn, err := a.Config.Database.ResolveDSN()
		if err != nil {
			a.Logger.Warn().Err(err).Str("stage", "persist").Str("sink", "postgres").Msg("relational sink skipped")
		} else {
			writers = append(writers, storage.NewRunWriter(dsn, a.Config.Database.ConnectTimeout, a.Logger))
		}
	}

	if a.Config.CSV.Enabled && !opts.NoCSV {
		path := a.Config.CSV.Path
		if opts.CSVPath != "" {
			path = opts.CSVPath
		}
		writers = append(writers, flatfile.NewWriter(path, a.Logger))
	}
	return writers
}

func (a *App) alertsPath(override string) string {
	if override != "" {
		return override
	}
	return a.Config.Alerts.DBPath
}

func (a *App) openAlertStore(ctx context.Context, path string) (*alertstore.Store, error) {
	if path == "" {
		path = DefaultAlertsDB
	}
	return alertstore.Open(ctx, path)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if !a.Config.Database.Enabled {
		return nil, nil, nil
	}
	if _, err := a.Config.Database.ResolveDSN(); errors.Is(err, config.ErrDatabaseNotConfigured) {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// buildService wires the pipeline. The returned closer releases the alert store.
func (a *App) buildService(ctx context.Context, opts RunOptions, recorder *metrics.Recorder) (*service.Service, func(), error) {
	closer := func() {}

	if a.Config.Database.AutoMigrate && a.Config.Database.Enabled {
		if err := a.Migrate(ctx); err != nil && !errors.Is(err, config.ErrDatabaseNotConfigured) {
			return nil, closer, err
		}
	}

	var evaluator service.AlertEvaluator
	if path := a.alertsPath(opts.AlertsDB); path != "" {
		store, err := alertstore.Open(ctx, path)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { _ = store.Close() }
		evaluator = alerting.NewEvaluator(store, a.newNotifier(), a.Logger)
	}

	svc := service.New(
		a.sourceURL(opts),
		a.newFetcher(opts),
		parser.New(a.Logger),
		a.newWriters(opts),
		evaluator,
		recorder,
		a.Logger,
	)
	return svc, closer, nil
}

// RunOnce executes one batch job and prints its outcome.
func (a *App) RunOnce(ctx context.Context, opts RunOptions) error {
	recorder := metrics.NewRecorder()
	svc, closer, err := a.buildService(ctx, opts, recorder)
	if err != nil {
		return err
	}
	defer closer()

	res, runErr := svc.RunOnce(ctx)
	a.pushMetrics(ctx, recorder)
	if res.Offers != nil {
		if err := a.printResult(res, opts); err != nil {
			return err
		}
	}
	return runErr
}

// Watch runs the batch job on the configured cron schedule until interrupted.
func (a *App) Watch(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Spec:       a.Config.Scheduler.Cron,
		Location:   a.Config.Location(),
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	svc, closer, err := a.buildService(ctx, opts, recorder)
	if err != nil {
		return err
	}
	defer closer()

	a.Logger.Info().Str("cron", a.Config.Scheduler.Cron).Str("timezone", a.Config.Scheduler.Timezone).Msg("starting watch loop")
	err = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, runErr := svc.RunOnce(ctx)
		a.pushMetrics(ctx, recorder)
		return runErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}

// Migrate applies the relational schema.
func (a *App) Migrate(ctx context.Context) error {
	dsn, err := a.Config.Database.ResolveDSN()
	if err != nil {
		return err
	}
	return storage.Migrate(ctx, dsn, a.Logger)
}

func (a *App) pushMetrics(ctx context.Context, recorder *metrics.Recorder) {
	url := a.Config.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	if err := recorder.Push(ctx, url, a.Config.Metrics.Job); err != nil {
		a.Logger.Warn().Err(err).Msg("metrics push failed")
	}
}
