// Package telegram adapts telebot to the transport boundary.
package telegram

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		up := transport.Update{
			Message: &transport.Message{
				ChatID:  m.Chat.ID,
				Text:    m.Text,
				Private: m.Chat.Type == tele.ChatPrivate,
			},
		}
		select {
		case out <- up:
		case <-rctx.Done():
		}
		return nil
	})

	go func() {
		defer a.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on the
	// Telegram long-poll.
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	_, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text)
	return err
}

func (a *Adapter) SendImage(ctx context.Context, to transport.ChatTarget, imagePath string) error {
	photo := &tele.Photo{File: tele.FromDisk(imagePath)}
	_, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo)
	return err
}

// Classify maps a telebot send error onto the delivery outcome taxonomy.
// 401/403 responses mean the chat is gone for good (blocked, kicked,
// deactivated); flood control and network errors are worth retrying.
func (a *Adapter) Classify(err error) transport.Outcome {
	if err == nil {
		return transport.Sent
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return transport.TransientFailure
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return transport.PermanentFailure
		}
		return transport.TransientFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transport.TransientFailure
	}

	return transport.TransientFailure
}
