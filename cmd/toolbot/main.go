package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/vthunder/toolbot/internal/activity"
	"github.com/vthunder/toolbot/internal/bot"
	"github.com/vthunder/toolbot/internal/cache"
	"github.com/vthunder/toolbot/internal/config"
	"github.com/vthunder/toolbot/internal/deckrouter"
	"github.com/vthunder/toolbot/internal/executor"
	"github.com/vthunder/toolbot/internal/gtd"
	"github.com/vthunder/toolbot/internal/integrations/anki"
	"github.com/vthunder/toolbot/internal/integrations/todoist"
	"github.com/vthunder/toolbot/internal/ledger"
	"github.com/vthunder/toolbot/internal/llm"
	"github.com/vthunder/toolbot/internal/logging"
	"github.com/vthunder/toolbot/internal/metrics"
	"github.com/vthunder/toolbot/internal/search"
	"github.com/vthunder/toolbot/internal/status"
	"github.com/vthunder/toolbot/internal/tasks"
	"github.com/vthunder/toolbot/internal/transcribe"
	"github.com/vthunder/toolbot/internal/transport/discord"
	"github.com/vthunder/toolbot/internal/transport/matrix"
)

// chatTransport is a transport the bot can talk through and main can run
type chatTransport interface {
	bot.Transport
	Run(ctx context.Context) error
}

func main() {
	// Load .env file (optional - won't error if missing)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if envErr != nil {
		logging.Info("config", "no .env file found, using environment variables")
	} else {
		logging.Info("config", "loaded .env file")
	}

	if err := cfg.Validate(); err != nil {
		logging.Error("config", "invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logging.Info("main", "shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logging.Error("main", "%v", err)
		os.Exit(1)
	}
	logging.Info("main", "goodbye")
}

func run(ctx context.Context, cfg config.Config) error {
	logging.Info("main", "toolbot starting (transport=%s, llm=%s, todos=%s)", cfg.Transport, cfg.LLMProvider, cfg.TodoBackend)

	tr, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := llm.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	todos, err := newTodoBackend(cfg)
	if err != nil {
		return err
	}

	db, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer db.Close()

	samples, err := newSampleCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer samples.Close()

	transcriber, err := transcribe.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("transcriber: %w", err)
	}
	if c, ok := transcriber.(io.Closer); ok {
		defer c.Close()
	}

	execCfg := executor.Config{
		Todos:         todos,
		Ledger:        db,
		AnkiURL:       cfg.AnkiConnectURL,
		DeckNamespace: cfg.DeckNamespace,
		Timeout:       cfg.Timeouts.Backend,
	}
	activityLog := activity.New(cfg.ActivityPath)
	logging.Info("main", "activity log at %s", activityLog.Path())
	deps := bot.Deps{
		Transport:   tr,
		Engine:      engine,
		Router:      deckrouter.New(engine, cfg.DeckNamespace),
		Search:      search.NewOrchestrator(search.NewDuckDuckGo(""), search.NewHTTPFetcher(cfg.Timeouts.Fetch), cfg.Timeouts.Search),
		SampleCache: samples,
		Transcriber: transcriber,
		Activity:    activityLog,
		Metrics:     metrics.New(),
	}
	if cfg.EnableAnki {
		ankiClient := anki.NewClient(cfg.AnkiConnectURL, cfg.Timeouts.Backend)
		execCfg.Flashcards = ankiClient
		deps.Decks = ankiClient
	} else {
		logging.Info("main", "Anki integration disabled")
	}
	deps.Executor = executor.New(execCfg)

	b := bot.New(cfg, deps)

	var srv *status.Server
	if cfg.StatusAddr != "" {
		srv = status.New(status.Options{
			Addr:       cfg.StatusAddr,
			Bot:        b,
			Executions: db,
			Activity:   deps.Activity,
			Metrics:    deps.Metrics.Handler(),
		})
		srv.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := tr.Run(gctx); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return b.Run(gctx)
	})
	logging.Info("main", "all subsystems started, press Ctrl+C to stop")

	err = g.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logging.Warn("main", "status server shutdown: %v", serr)
		}
	}
	return err
}

func newTransport(ctx context.Context, cfg config.Config) (chatTransport, error) {
	switch cfg.Transport {
	case "discord":
		c, err := discord.New(discord.Config{Token: cfg.DiscordToken, Channels: cfg.DiscordChannels})
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		return c, nil
	default:
		c, err := matrix.New(ctx, matrix.Config{
			Homeserver:  cfg.MatrixHomeserver,
			UserID:      cfg.MatrixUser,
			Password:    cfg.MatrixPassword,
			AccessToken: cfg.MatrixAccessToken,
			Timeout:     cfg.Timeouts.Transport,
		})
		if err != nil {
			return nil, fmt.Errorf("matrix: %w", err)
		}
		return c, nil
	}
}

func newTodoBackend(cfg config.Config) (tasks.Backend, error) {
	switch cfg.TodoBackend {
	case "local":
		b, err := gtd.NewBackend(cfg.GTDPath)
		if err != nil {
			return nil, fmt.Errorf("gtd store: %w", err)
		}
		return b, nil
	default:
		if cfg.TodoistToken == "" {
			logging.Warn("main", "TODOIST_TOKEN not set; todo proposals cannot be executed")
			return nil, nil
		}
		return todoist.NewClient(cfg.TodoistToken, cfg.Timeouts.Backend), nil
	}
}

func newSampleCache(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(cfg.DeckCacheTTL), nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.DeckCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	logging.Info("main", "deck samples cached in Redis")
	return r, nil
}
