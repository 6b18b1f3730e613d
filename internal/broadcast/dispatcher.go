// Package broadcast fans the day's menu image out to every eligible
// subscriber, isolating per-recipient failures.
package broadcast

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"mensabot/internal/registry"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

// Registry is the subscriber view the dispatcher needs.
type Registry interface {
	ListAll(ctx context.Context) ([]registry.Subscriber, error)
	Unsubscribe(ctx context.Context, chatID int64) (bool, error)
}

// MenuSource produces the image artifact for a date.
type MenuSource interface {
	EnsureArtifact(ctx context.Context, today time.Time) (string, error)
}

// Sender is the slice of the transport the dispatcher uses.
type Sender interface {
	SendImage(ctx context.Context, to transport.ChatTarget, imagePath string) error
	Classify(err error) transport.Outcome
}

type Config struct {
	// RatePerSec paces sends to stay under Telegram's broadcast limits.
	RatePerSec int
}

// Dispatcher delivers the cached menu image to all current subscribers.
type Dispatcher struct {
	registry Registry
	menu     MenuSource
	sender   Sender
	limiter  *rate.Limiter
	log      logx.Logger
}

func NewDispatcher(cfg Config, reg Registry, menu MenuSource, sender Sender, log logx.Logger) *Dispatcher {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	return &Dispatcher{
		registry: reg,
		menu:     menu,
		sender:   sender,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		log:      log,
	}
}

// Run performs one broadcast for the given date. Weekends are skipped
// outright. A fetch or conversion failure aborts the whole run before any
// subscriber is touched; a single recipient's failure never blocks delivery
// to the rest. Permanent delivery failures unsubscribe the recipient.
func (d *Dispatcher) Run(ctx context.Context, today time.Time) {
	switch today.Weekday() {
	case time.Saturday, time.Sunday:
		return
	}

	imagePath, err := d.menu.EnsureArtifact(ctx, today)
	if err != nil {
		d.log.Error("broadcast aborted: no menu artifact", logx.Err(err))
		return
	}

	subs, err := d.registry.ListAll(ctx)
	if err != nil {
		d.log.Error("broadcast aborted: listing subscribers failed", logx.Err(err))
		return
	}

	start := time.Now()
	var sent, skipped, removed, failed int
	for _, sub := range subs {
		if sub.Preference == registry.MondayOnly && today.Weekday() != time.Monday {
			skipped++
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Warn("broadcast interrupted", logx.Err(err))
			break
		}

		err := d.sender.SendImage(ctx, transport.ChatTarget{ChatID: sub.ChatID}, imagePath)
		switch d.sender.Classify(err) {
		case transport.Sent:
			sent++
			d.log.Debug("menu sent", logx.Int64("chat_id", sub.ChatID))
		case transport.PermanentFailure:
			removed++
			d.log.Warn("removing unreachable subscriber", logx.Int64("chat_id", sub.ChatID), logx.Err(err))
			if _, uerr := d.registry.Unsubscribe(ctx, sub.ChatID); uerr != nil {
				d.log.Error("unsubscribe failed", logx.Int64("chat_id", sub.ChatID), logx.Err(uerr))
			}
		case transport.TransientFailure:
			failed++
			d.log.Warn("menu send failed; will retry next run", logx.Int64("chat_id", sub.ChatID), logx.Err(err))
		}
	}

	d.log.Info("broadcast finished",
		logx.Int("total", len(subs)),
		logx.Int("sent", sent),
		logx.Int("skipped", skipped),
		logx.Int("removed", removed),
		logx.Int("failed", failed),
		logx.Duration("dur", time.Since(start)))
}
