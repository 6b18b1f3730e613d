package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"mensabot/internal/bot"
	"mensabot/internal/broadcast"
	"mensabot/internal/config"
	"mensabot/internal/debughttp"
	"mensabot/internal/feedback"
	"mensabot/internal/menu"
	"mensabot/internal/registry"
	"mensabot/internal/schedule"
	"mensabot/internal/transport"
	"mensabot/internal/transport/telegram"
	"mensabot/pkg/logx"
)

func main() {
	cmd := &cli.Command{
		Name:   "mensabot",
		Usage:  "Telegram bot that sends out the weekly canteen menu",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "./config.yaml",
				Sources: cli.EnvVars("MENSABOT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "database",
				Usage: "Override the sqlite database path",
			},
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if db := cmd.String("database"); db != "" {
		cfg.Storage.Path = db
	}

	log, closeLogs := logx.New(logx.Config{
		Level:    cfg.Logging.Level,
		Console:  cfg.Logging.ConsoleEnabled(),
		FilePath: cfg.Logging.File,
	})
	defer closeLogs()

	store, err := registry.Open(registry.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}, log.With(logx.String("comp", "registry")))
	if err != nil {
		return err
	}
	defer store.Close()

	if n, err := store.Count(ctx); err == nil {
		log.Info("registry opened", logx.String("path", cfg.Storage.Path), logx.Int("subscribers", n))
	}

	loc := cfg.Location()

	resolver := menu.NewResolver(menu.ResolverConfig{
		IndexURL:     cfg.Menu.IndexURL,
		BaseURL:      cfg.Menu.BaseURL,
		FetchTimeout: cfg.Menu.FetchTimeout.Std(),
	}, log.With(logx.String("comp", "resolver")))

	converter := menu.NewImageMagick(menu.ConverterConfig{
		Binary:  cfg.Menu.ConvertBinary,
		Timeout: cfg.Menu.ConvertTimeout.Std(),
	}, log.With(logx.String("comp", "convert")))

	cache := menu.NewCache(menu.CacheConfig{
		Dir:          cfg.Menu.CacheDir,
		FetchTimeout: cfg.Menu.FetchTimeout.Std(),
	}, resolver, converter, log.With(logx.String("comp", "cache")))

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.Std(),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}

	sink := feedback.NewSwitch(newMailer(cfg, log))

	router := bot.NewRouter(bot.Config{Location: loc},
		store, cache, adapter, sink, log.With(logx.String("comp", "router")))

	dispatcher := broadcast.NewDispatcher(broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec},
		store, cache, adapter, log.With(logx.String("comp", "broadcast")))

	hour, minute := cfg.BroadcastTime()
	loop := schedule.NewLoop(schedule.Config{
		Hour:     hour,
		Minute:   minute,
		Location: loc,
	}, dispatcher.Run, store, log.With(logx.String("comp", "schedule")))

	debugSrv := debughttp.New(debughttp.Config{Addr: cfg.Debug.Addr, Location: loc},
		store, cache, log.With(logx.String("comp", "debug")))

	updates := make(chan transport.Update, 64)
	if err := adapter.Start(ctx, updates); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return router.Run(gctx, updates) })
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return debugSrv.Run(gctx) })
	g.Go(func() error {
		// Config hot reload: only feedback addressing is applied live;
		// everything else takes effect on restart.
		return config.Watch(gctx, cfgPath, log.With(logx.String("comp", "config")), func(next *config.Config) {
			sink.Swap(newMailer(next, log))
		})
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("mensabot running")

	err = g.Wait()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = adapter.Stop(stopCtx)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newMailer(cfg *config.Config, log logx.Logger) *feedback.Mailer {
	return feedback.NewMailer(feedback.Config{
		Host:     cfg.Feedback.SMTPHost,
		Port:     cfg.Feedback.SMTPPort,
		Username: cfg.Feedback.Username,
		Password: cfg.Feedback.Password,
		From:     cfg.Feedback.From,
		To:       cfg.Feedback.To,
	}, log.With(logx.String("comp", "feedback")))
}
