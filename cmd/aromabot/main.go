package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"log/slog"

	coreconfig "github.com/m3rciful/aromabot/core/config"
	coredatabase "github.com/m3rciful/aromabot/core/database"
	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/core/telegram"
	"github.com/m3rciful/aromabot/internal/ai"
	"github.com/m3rciful/aromabot/internal/bot"
	"github.com/m3rciful/aromabot/internal/broadcast"
	"github.com/m3rciful/aromabot/internal/engine"
	"github.com/m3rciful/aromabot/internal/export"
	"github.com/m3rciful/aromabot/internal/notify"
	"github.com/m3rciful/aromabot/internal/recommend"
	"github.com/m3rciful/aromabot/internal/schedule"
	"github.com/m3rciful/aromabot/internal/secrets"
	"github.com/m3rciful/aromabot/internal/session"
	"github.com/m3rciful/aromabot/internal/storage"
)

const migrationsDir = "migrations"

// buildDatabaseConfig maps the leaf config struct onto the database
// package's Config. The two are kept separate so core/config never
// imports core/database (which logs through core/logger, a reader of
// core/config).
func buildDatabaseConfig(c coreconfig.DatabaseConfig) coredatabase.Config {
	return coredatabase.Config{
		Host:           c.Host,
		Port:           c.Port,
		User:           c.User,
		Password:       c.Password,
		Name:           c.Name,
		SSLMode:        c.SSLMode,
		MaxConnections: c.MaxConnections,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.yaml", "path to YAML config")
	flag.Parse()

	// optional .env for local runs; real deployments use the environment
	_ = godotenv.Load()

	cfg, err := coreconfig.Load(*configPath)
	if err != nil {
		return err
	}

	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := buildDatabaseConfig(cfg.Database)
	if err := coredatabase.RunMigrations(dbCfg, migrationsDir); err != nil {
		return err
	}
	db, err := coredatabase.Connect(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cipher, err := secrets.New(cfg.Secrets.EncryptionKey)
	if err != nil {
		return err
	}
	store := storage.New(db, cipher)

	gen, err := ai.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return err
	}
	defer func() { _ = gen.Close() }()

	sender := bot.NewTeleSender()
	notifier := notify.NewService(sender, cfg.Operators.IDs)
	dispatcher := broadcast.NewDispatcher(sender, broadcast.Options{
		Concurrency:    cfg.Broadcast.Concurrency,
		SendTimeout:    cfg.Broadcast.SendTimeout,
		RetryTransient: cfg.Broadcast.RetryTransient,
	})

	eng := engine.New(store, gen, notifier, dispatcher, cfg.IsOperator)
	sessions := session.NewManager()
	b := bot.New(cfg, eng, sessions)

	exporter, err := export.NewExporter(store, cfg.Export.Dir)
	if err != nil {
		return err
	}
	pusher := recommend.NewService(store, gen, sender)

	scheduler, err := schedule.New(
		schedule.Job{
			Name:  "recommend",
			Every: cfg.Scheduler.RecommendEvery,
			Run:   pusher.Run,
		},
		schedule.Job{
			Name:  "export",
			Every: cfg.Scheduler.ExportEvery,
			Run: func(ctx context.Context) error {
				_, err := exporter.Run(ctx)
				return err
			},
		},
	)
	if err != nil {
		return err
	}
	scheduler.NotifyFailures(func(ctx context.Context, job string, err error) {
		notifier.Notify(ctx, fmt.Sprintf("Сбой фоновой задачи %q: %v", job, err))
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return telegram.RunTelegram(ctx, telegram.RunOptions{
			Config:      cfg,
			Middlewares: b.Middlewares(),
			Routes:      b.Routes(),
			Commands:    b.Commands(),
			OnStart: func(ctx context.Context, tb *tele.Bot) error {
				sender.Bind(tb)
				logger.L.Info("bot started",
					slog.String("event", "start"),
					slog.String("username", tb.Me.Username),
				)
				return nil
			},
		})
	})

	return g.Wait()
}
