package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
)

// Opts configures a Processor.
type Opts struct {
	Now func() time.Time
}

// Option configures a Processor.
type Option func(*Opts)

// WithClock overrides the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Processor runs the events of one webhook invocation in order.
type Processor struct {
	store    store.Store
	sender   messaging.Sender
	resolver *Resolver
	handlers *Handlers
}

// NewProcessor wires the resolver, router and handlers around st and svc.
func NewProcessor(st store.Store, svc messaging.Service, opts ...Option) *Processor {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Processor{
		store:    st,
		sender:   svc,
		resolver: NewResolver(st, svc),
		handlers: NewHandlers(st, cfg.Now),
	}
}

// Process handles events sequentially. A failing event is logged and never
// prevents later events from being handled.
func (p *Processor) Process(ctx context.Context, events []models.InboundEvent) {
	for i, ev := range events {
		if err := p.handleEvent(ctx, ev); err != nil {
			slog.Error("Processor.Process: event failed", "index", i, "event_id", ev.ID, "kind", ev.Kind, "error", err)
		}
	}
}

func (p *Processor) handleEvent(ctx context.Context, ev models.InboundEvent) (err error) {
	if ev.UserID == "" {
		slog.Debug("Processor.handleEvent: ignoring non-user event", "event_id", ev.ID, "kind", ev.Kind)
		return nil
	}
	if ev.Kind == models.EventOther {
		return nil
	}

	replied := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling event: %v", r)
			if !replied {
				p.reply(ctx, ev, messaging.TextWithMenu(GenericErrorText))
			}
		}
	}()

	if ev.ID != "" {
		fresh, err := p.store.RecordInbound(ctx, ev.ID)
		if err != nil {
			slog.Warn("Processor.handleEvent: dedup record failed, processing anyway", "event_id", ev.ID, "error", err)
		} else if !fresh {
			slog.Info("Processor.handleEvent: skipping redelivered event", "event_id", ev.ID)
			return nil
		}
	}

	user, err := p.resolver.Resolve(ctx, ev.UserID)
	if err != nil {
		replied = true
		p.reply(ctx, ev, messaging.TextWithMenu(GenericErrorText))
		return fmt.Errorf("resolve user %s: %w", ev.UserID, err)
	}

	msg, ok := p.dispatch(ctx, ev, user)
	if !ok {
		return nil
	}
	replied = true
	return p.reply(ctx, ev, msg)
}

// dispatch routes an event to its handler and returns the reply, if any.
func (p *Processor) dispatch(ctx context.Context, ev models.InboundEvent, user *models.User) (messaging.Message, bool) {
	switch ev.Kind {
	case models.EventFollow:
		return p.handlers.Follow(), true
	case models.EventPostback:
		return p.handlers.Postback(ctx, user, ev.PostbackData)
	case models.EventMessage:
		cmd := Classify(ev.Text)
		slog.Debug("Processor.dispatch: classified", "user_id", user.ID, "intent", cmd.Intent)
		switch cmd.Intent {
		case IntentHelp:
			return p.handlers.Help(), true
		case IntentAddHabit:
			return p.handlers.AddHabit(ctx, user, cmd.Arg), true
		case IntentSetReminder:
			return p.handlers.SetReminder(ctx, user, cmd.Arg), true
		case IntentComplete:
			return p.handlers.Complete(ctx, user), true
		case IntentLater:
			return p.handlers.Later(), true
		case IntentProgress:
			return p.handlers.Progress(ctx, user), true
		case IntentList:
			return p.handlers.List(ctx, user), true
		default:
			return p.handlers.Unrecognized(), true
		}
	}
	return messaging.Message{}, false
}

func (p *Processor) reply(ctx context.Context, ev models.InboundEvent, msg messaging.Message) error {
	if ev.ReplyToken == "" {
		return nil
	}
	if err := p.sender.Reply(ctx, ev.ReplyToken, msg); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
