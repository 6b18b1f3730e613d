// Package bot routes inbound chat commands. All updates are consumed by a
// single goroutine, which serializes every registry mutation in the system
// (the scheduled broadcast's failure path runs on the same loop's context,
// one run at a time).
package bot

import (
	"context"
	"strings"
	"time"

	"mensabot/internal/registry"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

// Registry is the subscription surface the router mutates.
type Registry interface {
	Subscribe(ctx context.Context, chatID int64) (registry.Subscriber, bool, error)
	SetPreference(ctx context.Context, chatID int64, pref registry.Preference) (bool, error)
	Unsubscribe(ctx context.Context, chatID int64) (bool, error)
}

// MenuSource produces the image artifact for a date.
type MenuSource interface {
	EnsureArtifact(ctx context.Context, today time.Time) (string, error)
}

// Sender is the outbound slice of the transport.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string) error
	SendImage(ctx context.Context, to transport.ChatTarget, imagePath string) error
}

// FeedbackSink forwards user feedback to the operators. A nil or
// unavailable sink degrades /feedback to an "unavailable" reply.
type FeedbackSink interface {
	Available() bool
	Forward(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// Location is the zone "today" is read in for on-demand requests.
	Location *time.Location
}

type Router struct {
	cfg      Config
	registry Registry
	menu     MenuSource
	sender   Sender
	feedback FeedbackSink
	log      logx.Logger

	now func() time.Time
}

func NewRouter(cfg Config, reg Registry, menu MenuSource, sender Sender, feedback FeedbackSink, log logx.Logger) *Router {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Router{
		cfg:      cfg,
		registry: reg,
		menu:     menu,
		sender:   sender,
		feedback: feedback,
		log:      log,
		now:      time.Now,
	}
}

// Run consumes updates until the channel closes or ctx is done.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message != nil {
				r.Handle(ctx, *up.Message)
			}
		}
	}
}

// Handle dispatches one inbound message. Command matching is a
// case-sensitive prefix match, like the bot has always done.
func (r *Router) Handle(ctx context.Context, msg transport.Message) {
	// Group chats are addressed in the plural.
	salut := "Ihr bekommt "
	if msg.Private {
		salut = "Du bekommst "
	}

	text := msg.Text
	switch {
	case strings.HasPrefix(text, "/start"):
		r.handleStart(ctx, msg, salut)
	case strings.HasPrefix(text, "/stop"):
		r.handleStop(ctx, msg, salut)
	case strings.HasPrefix(text, "/mondays"):
		r.handlePreference(ctx, msg, salut, registry.MondayOnly)
	case strings.HasPrefix(text, "/weekdays"):
		r.handlePreference(ctx, msg, salut, registry.FullWeek)
	case strings.HasPrefix(text, "/menu"), strings.HasPrefix(text, "/fullmenu"):
		r.handleMenu(ctx, msg)
	case strings.HasPrefix(text, "/help"):
		r.reply(ctx, msg, helpText)
	case strings.HasPrefix(text, "/feedback"):
		r.handleFeedback(ctx, msg)
	default:
		r.reply(ctx, msg, "Das habe ich nicht verstanden")
	}
}

func (r *Router) handleStart(ctx context.Context, msg transport.Message, salut string) {
	_, created, err := r.registry.Subscribe(ctx, msg.ChatID)
	if err != nil {
		r.log.Error("subscribe failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return
	}
	if created {
		r.log.Info("subscriber added", logx.Int64("chat_id", msg.ChatID))
		r.reply(ctx, msg, salut+"ab jetzt jeden Tag das Menü")
		return
	}
	r.reply(ctx, msg, salut+"das Menü schon!")
}

func (r *Router) handleStop(ctx context.Context, msg transport.Message, salut string) {
	removed, err := r.registry.Unsubscribe(ctx, msg.ChatID)
	if err != nil {
		r.log.Error("unsubscribe failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return
	}
	if !removed {
		r.reply(ctx, msg, salut+"das Menü doch gar nicht")
		return
	}
	r.log.Info("subscriber removed", logx.Int64("chat_id", msg.ChatID))
	r.reply(ctx, msg, salut+"das Menü ab jetzt nicht mehr")
}

func (r *Router) handlePreference(ctx context.Context, msg transport.Message, salut string, pref registry.Preference) {
	ok, err := r.registry.SetPreference(ctx, msg.ChatID, pref)
	if err != nil {
		r.log.Error("preference change failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return
	}
	if !ok {
		r.reply(ctx, msg, salut+"das Menü doch gar nicht – /start zum Anmelden")
		return
	}
	if pref == registry.MondayOnly {
		r.reply(ctx, msg, salut+"das Menü ab jetzt nur noch montags")
		return
	}
	r.reply(ctx, msg, salut+"das Menü ab jetzt wieder an jedem Wochentag")
}

// handleMenu serves an explicit request. It bypasses subscription state and
// the weekday/Monday gating on purpose: an explicit ask beats a passive
// preference.
func (r *Router) handleMenu(ctx context.Context, msg transport.Message) {
	r.reply(ctx, msg, "Kommt sofort...")

	today := r.now().In(r.cfg.Location)
	path, err := r.menu.EnsureArtifact(ctx, today)
	if err != nil {
		r.log.Error("on-demand menu failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		r.reply(ctx, msg, "Das Menü konnte leider nicht abgerufen werden")
		return
	}
	if err := r.sender.SendImage(ctx, transport.ChatTarget{ChatID: msg.ChatID}, path); err != nil {
		r.log.Warn("on-demand menu send failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

func (r *Router) handleFeedback(ctx context.Context, msg transport.Message) {
	if r.feedback == nil || !r.feedback.Available() {
		r.reply(ctx, msg, "Feedback ist zur Zeit leider nicht möglich")
		return
	}
	body := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/feedback"))
	if body == "" {
		r.reply(ctx, msg, "Benutzung: /feedback <Text>")
		return
	}
	if err := r.feedback.Forward(ctx, msg.ChatID, body); err != nil {
		r.log.Error("feedback forwarding failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		r.reply(ctx, msg, "Dein Feedback konnte leider nicht zugestellt werden")
		return
	}
	r.reply(ctx, msg, "Danke für dein Feedback!")
}

func (r *Router) reply(ctx context.Context, msg transport.Message, text string) {
	if err := r.sender.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, text); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

const helpText = `Ich schicke dir jeden Wochentag das Kasino-Menü.

/start – Menü abonnieren
/stop – Menü abbestellen
/mondays – nur montags das Menü bekommen
/weekdays – an jedem Wochentag das Menü bekommen
/menu – das aktuelle Menü sofort bekommen
/feedback <Text> – Feedback an die Betreiber schicken`
