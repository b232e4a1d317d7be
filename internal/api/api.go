// Package api provides the HTTP server for HabitLine.
//
// It exposes the LINE and Twilio webhooks, the job trigger endpoints used by
// an external scheduler, and a health check.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/HabitLine/internal/line"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/scheduler"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// maxBodyBytes caps webhook bodies.
const maxBodyBytes = 1 << 20

// EventProcessor handles the events of one webhook invocation.
type EventProcessor interface {
	Process(ctx context.Context, events []models.InboundEvent)
}

// JobRunner runs the scheduled jobs.
type JobRunner interface {
	SendReminders(ctx context.Context) (models.JobResponse, error)
	SendReports(ctx context.Context) (models.JobResponse, error)
	GenerateFeedback(ctx context.Context, date string) (models.JobResponse, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	ChannelSecret    string
	ChannelToken     string
	SkipSignature    bool
	TwilioAuthToken  string
	TwilioWebhookURL string // public URL Twilio signs; derived from the request when empty
	JobToken         string

	// JobTimeout bounds a webhook batch or job run once it is detached from
	// the triggering request.
	JobTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithLINECredentials sets the channel secret and access token.
func WithLINECredentials(secret, token string) Option {
	return func(o *Opts) {
		o.ChannelSecret = secret
		o.ChannelToken = token
	}
}

// WithSkipSignature disables LINE signature verification. Development only.
func WithSkipSignature(skip bool) Option {
	return func(o *Opts) { o.SkipSignature = skip }
}

// WithTwilioAuthToken enables the Twilio webhook.
func WithTwilioAuthToken(token string) Option {
	return func(o *Opts) { o.TwilioAuthToken = token }
}

// WithTwilioWebhookURL sets the public URL Twilio signs requests against.
func WithTwilioWebhookURL(url string) Option {
	return func(o *Opts) { o.TwilioWebhookURL = url }
}

// WithJobToken requires "Authorization: Bearer <token>" on job endpoints.
func WithJobToken(token string) Option {
	return func(o *Opts) { o.JobToken = token }
}

// WithJobTimeout bounds detached work. Zero keeps the default.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.JobTimeout = d
		}
	}
}

// Server wires the HTTP routes to the processor, the jobs and the store.
type Server struct {
	opts     Opts
	verifier *line.Verifier
	twilio   *client.RequestValidator
	proc     EventProcessor
	jobs     JobRunner
	health   Pinger
	srv      *http.Server
}

// NewServer creates a Server. It does not start listening.
func NewServer(proc EventProcessor, jobs JobRunner, health Pinger, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, JobTimeout: scheduler.DefaultJobTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		opts:     cfg,
		verifier: line.NewVerifier(cfg.ChannelSecret, cfg.SkipSignature),
		proc:     proc,
		jobs:     jobs,
		health:   health,
	}
	if cfg.TwilioAuthToken != "" {
		v := client.NewRequestValidator(cfg.TwilioAuthToken)
		s.twilio = &v
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.lineWebhookHandler)
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/jobs/reminders", s.jobHandler("reminders", func(ctx context.Context, _ *http.Request) (models.JobResponse, error) {
		return s.jobs.SendReminders(ctx)
	}))
	mux.HandleFunc("/jobs/reports", s.jobHandler("reports", func(ctx context.Context, _ *http.Request) (models.JobResponse, error) {
		return s.jobs.SendReports(ctx)
	}))
	mux.HandleFunc("/jobs/feedback", s.jobHandler("feedback", func(ctx context.Context, r *http.Request) (models.JobResponse, error) {
		return s.jobs.GenerateFeedback(ctx, r.URL.Query().Get("date"))
	}))
	mux.HandleFunc("/health", s.healthHandler)
	return recoverMiddleware(mux)
}

// detach returns a context that outlives a dropped or timed-out client.
// Jobs and webhook batches run to completion once accepted, bounded only by
// JobTimeout.
func (s *Server) detach(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.JobTimeout)
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	slog.Info("Server.ListenAndServe: HabitLine API listening", "addr", s.opts.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Server.recover: handler panicked", "path", r.URL.Path, "panic", rec)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
