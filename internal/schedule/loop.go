// Package schedule fires the daily broadcast at a fixed wall-clock time.
//
// This is deliberately a coarse polling loop, not a precise timer: the
// contract is "once a day, some time after HH:MM", which survives the
// process being busy past the scheduled instant and restarts within the
// same day firing at most once more.
package schedule

import (
	"context"
	"runtime/debug"
	"time"

	"mensabot/pkg/logx"
)

type Config struct {
	// Hour and Minute are the local wall-clock firing time.
	Hour   int
	Minute int
	// Location is the time zone the wall clock is read in.
	Location *time.Location
	// PollInterval defaults to one second.
	PollInterval time.Duration
}

// Watermark persists the last-fired day so a restart later the same day
// does not fire a second broadcast.
type Watermark interface {
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
}

const watermarkKey = "schedule.last_fired_day"

// Loop invokes a run function once per calendar day at the configured time.
// It owns its "last fired day" watermark; a failing or panicking run is
// logged and the loop keeps polling for the next day.
type Loop struct {
	cfg  Config
	run  func(ctx context.Context, today time.Time)
	mark Watermark
	log  logx.Logger

	now       func() time.Time // injectable for tests
	loaded    bool
	lastFired string // day watermark, formatted 2006-01-02
}

func NewLoop(cfg Config, run func(ctx context.Context, today time.Time), mark Watermark, log logx.Logger) *Loop {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Loop{
		cfg:  cfg,
		run:  run,
		mark: mark,
		log:  log,
		now:  time.Now,
	}
}

// Run polls until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.log.Info("schedule loop started",
		logx.Int("hour", l.cfg.Hour),
		logx.Int("minute", l.cfg.Minute),
		logx.String("tz", l.cfg.Location.String()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick fires the run function if the scheduled time has passed and the loop
// has not fired yet today.
func (l *Loop) Tick(ctx context.Context) {
	if !l.loaded {
		l.restore(ctx)
	}

	now := l.now().In(l.cfg.Location)
	day := now.Format("2006-01-02")
	if l.lastFired == day {
		return
	}

	due := time.Date(now.Year(), now.Month(), now.Day(), l.cfg.Hour, l.cfg.Minute, 0, 0, l.cfg.Location)
	if now.Before(due) {
		return
	}

	l.lastFired = day
	if l.mark != nil {
		if err := l.mark.SetMeta(ctx, watermarkKey, day); err != nil {
			l.log.Warn("failed persisting schedule watermark", logx.Err(err))
		}
	}
	l.log.Info("scheduled broadcast firing", logx.Time("due", due))
	l.safeRun(ctx, now)
}

func (l *Loop) restore(ctx context.Context) {
	l.loaded = true
	if l.mark == nil {
		return
	}
	day, err := l.mark.GetMeta(ctx, watermarkKey)
	if err != nil {
		l.log.Warn("failed loading schedule watermark", logx.Err(err))
		return
	}
	l.lastFired = day
}

func (l *Loop) safeRun(ctx context.Context, today time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("scheduled run panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	l.run(ctx, today)
}
