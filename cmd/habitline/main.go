package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/HabitLine/internal/api"
	"github.com/BTreeMap/HabitLine/internal/flow"
	"github.com/BTreeMap/HabitLine/internal/genai"
	"github.com/BTreeMap/HabitLine/internal/jobs"
	"github.com/BTreeMap/HabitLine/internal/lockfile"
	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/scheduler"
	"github.com/BTreeMap/HabitLine/internal/store"
	"github.com/BTreeMap/HabitLine/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HabitLine state data
	DefaultStateDir = "/var/lib/habitline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "habitline.db"
	// EnvProduction and EnvDevelopment are the accepted APP_ENV values.
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// MemoryDSN selects the in-memory store.
	MemoryDSN = "memory"
	// DefaultRetryPoll is the retry drainer cadence.
	DefaultRetryPoll = time.Minute

	PlatformLINE   = "line"
	PlatformTwilio = "twilio"
)

func main() {
	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(flags.logLevel)

	if err := run(flags); err != nil {
		slog.Error("HabitLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HabitLine exited successfully")
}

// Config holds environment configuration
type Config struct {
	AppEnv           string
	ChannelSecret    string
	ChannelToken     string
	SkipSignature    bool
	Platform         string
	TwilioAuthToken  string
	TwilioWebhookURL string
	OpenAIKey        string
	OpenAIModel      string
	DBDSN            string
	StateDir         string
	APIAddr          string
	JobToken         string
	ReminderCron     string
	ReportCron       string
	FeedbackCron     string
	RetryPoll        time.Duration
	JobConcurrency   int
	LogLevel         string
}

// Flags holds command line flag values
type Flags struct {
	appEnv        string
	channelSecret string
	channelToken  string
	skipSignature bool
	platform      string
	twilioToken   string
	twilioURL     string
	openaiKey     string
	openaiModel   string
	dbDSN         string
	stateDir      string
	apiAddr       string
	jobToken      string
	reminderCron  string
	reportCron    string
	feedbackCron  string
	retryPoll     time.Duration
	jobWorkers    int
	logLevel      string
}

// initializeLogger installs a text handler at the given level.
func initializeLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		AppEnv:           strings.ToLower(util.GetEnv("APP_ENV", EnvProduction)),
		ChannelSecret:    os.Getenv("LINE_CHANNEL_SECRET"),
		ChannelToken:     os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		SkipSignature:    util.ParseBoolEnv("SKIP_SIGNATURE_VERIFICATION", false),
		Platform:         strings.ToLower(util.GetEnv("MESSAGING_PLATFORM", PlatformLINE)),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      util.GetEnv("OPENAI_MODEL", genai.DefaultModel),
		DBDSN:            util.FirstEnv("HABITLINE_DB_DSN", "DATABASE_URL"),
		StateDir:         util.GetEnv("HABITLINE_STATE_DIR", DefaultStateDir),
		APIAddr:          util.GetEnv("API_ADDR", api.DefaultAddr),
		JobToken:         os.Getenv("JOB_TRIGGER_TOKEN"),
		ReminderCron:     os.Getenv("REMINDER_CRON"),
		ReportCron:       os.Getenv("REPORT_CRON"),
		FeedbackCron:     os.Getenv("FEEDBACK_CRON"),
		RetryPoll:        util.ParseDurationEnv("RETRY_POLL_INTERVAL", DefaultRetryPoll),
		JobConcurrency:   util.ParseIntEnv("JOB_CONCURRENCY", jobs.DefaultConcurrency),
		LogLevel:         util.GetEnv("LOG_LEVEL", "info"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}

	slog.Debug("environment variables loaded",
		"APP_ENV", config.AppEnv,
		"LINE_CHANNEL_SECRET_SET", config.ChannelSecret != "",
		"LINE_CHANNEL_ACCESS_TOKEN_SET", config.ChannelToken != "",
		"MESSAGING_PLATFORM", config.Platform,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"HABITLINE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("habitline", flag.ContinueOnError)
	fs.StringVar(&f.appEnv, "env", config.AppEnv, "production or development (overrides $APP_ENV)")
	fs.StringVar(&f.channelSecret, "line-channel-secret", config.ChannelSecret, "LINE channel secret (overrides $LINE_CHANNEL_SECRET)")
	fs.StringVar(&f.channelToken, "line-access-token", config.ChannelToken, "LINE channel access token (overrides $LINE_CHANNEL_ACCESS_TOKEN)")
	fs.BoolVar(&f.skipSignature, "skip-signature", config.SkipSignature, "skip webhook signature verification, development only (overrides $SKIP_SIGNATURE_VERIFICATION)")
	fs.StringVar(&f.platform, "platform", config.Platform, "messaging platform: line or twilio (overrides $MESSAGING_PLATFORM)")
	fs.StringVar(&f.twilioToken, "twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)")
	fs.StringVar(&f.twilioURL, "twilio-webhook-url", config.TwilioWebhookURL, "public URL Twilio signs (overrides $TWILIO_WEBHOOK_URL)")
	fs.StringVar(&f.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.openaiModel, "openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DBDSN, `database DSN: postgres URL, sqlite path or "memory" (overrides $HABITLINE_DB_DSN or $DATABASE_URL)`)
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for HabitLine data (overrides $HABITLINE_STATE_DIR)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.jobToken, "job-token", config.JobToken, "bearer token required by /jobs/* (overrides $JOB_TRIGGER_TOKEN)")
	fs.StringVar(&f.reminderCron, "reminder-cron", config.ReminderCron, "in-process reminder schedule (overrides $REMINDER_CRON)")
	fs.StringVar(&f.reportCron, "report-cron", config.ReportCron, "in-process weekly report schedule (overrides $REPORT_CRON)")
	fs.StringVar(&f.feedbackCron, "feedback-cron", config.FeedbackCron, "in-process feedback schedule (overrides $FEEDBACK_CRON)")
	fs.DurationVar(&f.retryPoll, "retry-poll", config.RetryPoll, "retry drainer interval, 0 disables (overrides $RETRY_POLL_INTERVAL)")
	fs.IntVar(&f.jobWorkers, "job-concurrency", config.JobConcurrency, "parallel sends per job run (overrides $JOB_CONCURRENCY)")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Follow a changed state directory when the DSN was the derived default.
	if f.dbDSN == config.DBDSN && config.DBDSN == filepath.Join(config.StateDir, DefaultDBFileName) && f.stateDir != config.StateDir {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
	}
	switch f.appEnv {
	case EnvProduction, EnvDevelopment:
	default:
		return Flags{}, fmt.Errorf("unknown environment %q: want %q or %q", f.appEnv, EnvProduction, EnvDevelopment)
	}
	// The bypass is honoured in development only.
	if f.skipSignature && f.appEnv != EnvDevelopment {
		slog.Warn("skip-signature ignored outside development", "env", f.appEnv)
		f.skipSignature = false
	}
	if f.platform != PlatformLINE && f.platform != PlatformTwilio {
		return Flags{}, fmt.Errorf("unknown messaging platform %q", f.platform)
	}
	return f, nil
}

// openStore opens the configured backend. A SQLite database also takes the
// lock on its directory; the returned lock is nil for other backends.
func openStore(flags Flags) (store.Store, *lockfile.Lock, error) {
	if flags.dbDSN == MemoryDSN {
		slog.Warn("Using in-memory store; data is lost on restart")
		st, err := store.Open("")
		return st, nil, err
	}
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		st, err := store.Open(flags.dbDSN)
		return st, nil, err
	}

	lock, err := lockfile.Acquire(filepath.Dir(flags.dbDSN))
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(flags.dbDSN)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return st, lock, nil
}

// buildMessagingService selects the outbound backend. Missing credentials
// yield a backend whose sends fail, so the process still starts.
func buildMessagingService(flags Flags) messaging.Service {
	switch flags.platform {
	case PlatformTwilio:
		client, err := messaging.NewTwilioClient(messaging.WithAuthToken(flags.twilioToken))
		if err != nil {
			slog.Error("Twilio backend not configured", "error", err)
			return messaging.NewUnconfiguredService(err.Error())
		}
		return messaging.NewTwilioService(client)
	default:
		svc, err := messaging.NewLINEService(messaging.WithChannelToken(flags.channelToken))
		if err != nil {
			slog.Error("LINE backend not configured", "error", err)
			return messaging.NewUnconfiguredService(err.Error())
		}
		return svc
	}
}

// buildCompleter returns nil when no API key is set; feedback then uses the
// persona fallback texts.
func buildCompleter(flags Flags) genai.Completer {
	client, err := genai.NewClient(genai.WithAPIKey(flags.openaiKey), genai.WithModel(flags.openaiModel))
	if err != nil {
		slog.Warn("GenAI disabled, feedback will use fallback messages", "error", err)
		return nil
	}
	return client
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	opts := []api.Option{
		api.WithAddr(flags.apiAddr),
		api.WithJobToken(flags.jobToken),
	}
	switch flags.platform {
	case PlatformTwilio:
		opts = append(opts, api.WithTwilioAuthToken(flags.twilioToken), api.WithTwilioWebhookURL(flags.twilioURL))
	default:
		opts = append(opts, api.WithLINECredentials(flags.channelSecret, flags.channelToken), api.WithSkipSignature(flags.skipSignature))
	}
	return opts
}

// buildScheduler registers the in-process schedules that are configured.
func buildScheduler(flags Flags, runner *jobs.Runner) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	entries := []struct {
		name, expr string
		job        scheduler.JobFunc
	}{
		{"reminders", flags.reminderCron, runner.SendReminders},
		{"reports", flags.reportCron, runner.SendReports},
		{"feedback", flags.feedbackCron, func(ctx context.Context) (models.JobResponse, error) {
			return runner.GenerateFeedback(ctx, "")
		}},
	}
	for _, e := range entries {
		if err := sched.Schedule(e.name, e.expr, e.job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, lock, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer lock.Release()
	defer st.Close()

	svc := buildMessagingService(flags)
	proc := flow.NewProcessor(st, svc)
	runner := jobs.NewRunner(st, svc, buildCompleter(flags), jobs.WithConcurrency(flags.jobWorkers))

	sched, err := buildScheduler(flags, runner)
	if err != nil {
		return err
	}
	if sched.Len() > 0 {
		sched.Start()
		defer sched.Stop()
	}

	srv := api.NewServer(proc, runner, st, buildAPIOptions(flags)...)

	g, gctx := errgroup.WithContext(ctx)
	if flags.retryPoll > 0 {
		rr := store.NewRetryRunner(st, flags.retryPoll)
		runner.RegisterRetryHandlers(rr)
		if err := rr.RecoverStaleJobs(ctx); err != nil {
			slog.Error("Failed to recover stale retry jobs", "error", err)
		}
		g.Go(func() error {
			rr.Run(gctx)
			return nil
		})
	}
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("Bootstrapping HabitLine", "platform", flags.platform, "store", store.DetectDSNType(flags.dbDSN), "api_addr", flags.apiAddr, "scheduled_jobs", sched.Len(), "retry_poll", flags.retryPoll)
	return g.Wait()
}
