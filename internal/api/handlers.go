package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/HabitLine/internal/line"
	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
)

// TwilioSignatureHeader carries Twilio's request signature.
const TwilioSignatureHeader = "X-Twilio-Signature"

func (s *Server) lineWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "Server.lineWebhookHandler", r, http.MethodPost)
		return
	}
	if (s.opts.ChannelSecret == "" && !s.verifier.Skipping()) || s.opts.ChannelToken == "" {
		slog.Error("Server.lineWebhookHandler: LINE credentials not configured")
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Missing LINE credentials"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Server.lineWebhookHandler: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read body"))
		return
	}

	switch err := s.verifier.Verify(body, r.Header.Get(line.SignatureHeader)); {
	case errors.Is(err, line.ErrMissingSignature):
		slog.Warn("Server.lineWebhookHandler: missing signature")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing signature"))
		return
	case err != nil:
		slog.Warn("Server.lineWebhookHandler: signature rejected", "error", err)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid signature"))
		return
	}

	events, err := line.ParseEvents(body)
	if err != nil {
		slog.Warn("Server.lineWebhookHandler: malformed body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid webhook body"))
		return
	}
	slog.Debug("Server.lineWebhookHandler: processing events", "count", len(events))

	ctx, cancel := s.detach(r)
	defer cancel()
	s.proc.Process(ctx, events)
	writeJSONResponse(w, http.StatusOK, models.Accepted())
}

func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "Server.twilioWebhookHandler", r, http.MethodPost)
		return
	}
	if s.twilio == nil {
		slog.Error("Server.twilioWebhookHandler: Twilio credentials not configured")
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Missing Twilio credentials"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
		return
	}

	signature := r.Header.Get(TwilioSignatureHeader)
	if signature == "" {
		slog.Warn("Server.twilioWebhookHandler: missing signature")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing signature"))
		return
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if !s.twilio.Validate(s.twilioURL(r), params, signature) {
		slog.Warn("Server.twilioWebhookHandler: signature rejected")
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid signature"))
		return
	}

	from, err := messaging.CanonicalizeNumber(strings.TrimPrefix(params["From"], "whatsapp:"))
	if err != nil {
		slog.Warn("Server.twilioWebhookHandler: invalid sender", "from", params["From"], "error", err)
		writeTwiML(w)
		return
	}
	ev := models.InboundEvent{
		ID:         params["MessageSid"],
		Kind:       models.EventMessage,
		UserID:     from,
		ReplyToken: from,
		Text:       params["Body"],
	}
	ctx, cancel := s.detach(r)
	defer cancel()
	s.proc.Process(ctx, []models.InboundEvent{ev})
	writeTwiML(w)
}

// twilioURL returns the URL Twilio computed its signature over.
func (s *Server) twilioURL(r *http.Request) string {
	if s.opts.TwilioWebhookURL != "" {
		return s.opts.TwilioWebhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI())
}

func (s *Server) jobHandler(name string, run func(ctx context.Context, r *http.Request) (models.JobResponse, error)) http.HandlerFunc {
	handler := "Server.jobHandler[" + name + "]"
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			defer r.Body.Close()
		}
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			methodNotAllowed(w, handler, r, http.MethodGet, http.MethodPost)
			return
		}
		if !s.authorizedJob(r) {
			slog.Warn(handler + ": unauthorized trigger")
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
			return
		}

		ctx, cancel := s.detach(r)
		defer cancel()
		resp, err := run(ctx, r)
		switch {
		case errors.Is(err, models.ErrInvalidDate):
			slog.Debug(handler+": invalid date", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		case err != nil:
			slog.Error(handler+": job failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
		default:
			slog.Info(handler+": job complete", "total", resp.Total, "successful", resp.Successful, "failed", resp.Failed)
			writeJSONResponse(w, http.StatusOK, resp)
		}
	}
}

func (s *Server) authorizedJob(r *http.Request) bool {
	if s.opts.JobToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.JobToken)) == 1
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "Server.healthHandler", r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		slog.Error("Server.healthHandler: store unreachable", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSONResponse(w, http.StatusOK, healthResponse{Status: "ok"})
}
