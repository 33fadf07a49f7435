// omniagent is the chat agent daemon: it serves the webhook surface, routes
// messages through the skill pipeline, and pushes reminders over the channel
// socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/costs"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/intent"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/memory"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/observability"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/orchestrator"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/render"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/schema"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/server"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/session"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/skills"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var pidFile string

	root := &cobra.Command{
		Use:     "omniagent",
		Short:   "法律实务多维表格对话助手",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	root.PersistentFlags().StringVar(&pidFile, "pid-file", "omniagent.pid", "daemon pid file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, pidFile)
		},
	}

	reload := &cobra.Command{
		Use:   "reload-config",
		Short: "Ask a running daemon to reload its configuration and L0 rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(pidFile)
			if err != nil {
				return fmt.Errorf("read pid file: %w", err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("parse pid file: %w", err)
			}
			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				return fmt.Errorf("signal daemon %d: %w", pid, err)
			}
			fmt.Printf("reload requested, pid %d\n", pid)
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("configuration ok: %d table profiles, server %s:%d\n",
				len(cfg.Tables), cfg.Server.Host, cfg.Server.Port)
			return nil
		},
	}

	root.AddCommand(serve, reload, validate)
	return root
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func runServe(configPath, pidFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.SetDefaultLevel(parseLogLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("main")

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(pidFile)
	}
	provider := config.NewProvider(cfg, configPath, logging.NewComponentLogger("config"))

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		PrometheusPort: cfg.Metrics.PrometheusPort,
	}, logging.NewComponentLogger("metrics"))
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	var store state.Store
	var sqlite *state.SQLiteStore
	if cfg.State.SQLitePath != "" {
		sqlite, err = state.NewSQLiteStore(cfg.State.SQLitePath)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		store = sqlite
	} else {
		store = state.NewMemoryStore()
	}
	states := state.NewManager(store, state.TTLConfig{
		Session:       cfg.State.SessionTTL,
		LastResult:    cfg.State.LastResultTTL,
		PendingDelete: cfg.State.PendingDeleteTTL,
		PendingAction: cfg.State.PendingActionTTL,
		Pagination:    cfg.State.PaginationTTL,
	}, nil, logging.NewComponentLogger("state"))

	bridge := backend.NewHTTPClient(backend.HTTPClientConfig{
		BaseURL:  cfg.Backend.BaseURL,
		AppToken: cfg.Backend.AppToken,
		APIKey:   cfg.Backend.APIKey,
		Timeout:  cfg.Backend.Timeout,
	}, logging.NewComponentLogger("backend"))

	schemas, err := schema.NewCache(bridge, 64, 10*time.Minute, nil, logging.NewComponentLogger("schema"))
	if err != nil {
		return fmt.Errorf("init schema cache: %w", err)
	}

	model := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logging.NewComponentLogger("llm"))

	monitor := costs.NewMonitor(costs.Thresholds{
		Hourly:         cfg.Cost.HourlyThreshold,
		Daily:          cfg.Cost.DailyThreshold,
		CircuitBreaker: cfg.Cost.CircuitBreaker,
	}, nil, func(a costs.Alert) {
		logger.Warn("cost alert: %s window %s spent %.4f over %.4f", a.Window, a.WindowKey, a.Spent, a.Threshold)
	}, logging.NewComponentLogger("costs"))

	usageFallback := logging.NewComponentLogger("usage")
	usage := costs.NewUsageLogger(cfg.Cost.UsageLogPath,
		func(rec costs.UsageRecord) {
			usageFallback.Warn("usage record (log unavailable): user=%s skill=%s cost=%.6f", rec.UserID, rec.Skill, rec.Cost)
		},
		func(status string) {
			metrics.RecordUsageLogWrite(context.Background(), status)
		},
		logging.NewComponentLogger("usage"))

	business, err := cache.NewIdempotencyStore(10*time.Minute, 1024, nil)
	if err != nil {
		return fmt.Errorf("init business dedup: %w", err)
	}
	callbackDedup, err := cache.NewIdempotencyStore(600*time.Second, 1024, nil)
	if err != nil {
		return fmt.Errorf("init callback dedup: %w", err)
	}
	events, err := cache.NewIdempotencyStore(cfg.Server.EventDedupTTL, 4096, nil)
	if err != nil {
		return fmt.Errorf("init event dedup: %w", err)
	}

	var channel *server.WSChannel
	var notifier skills.Notifier
	var progress orchestrator.Progress
	if cfg.Channel.WebsocketURL != "" {
		channel = server.NewWSChannel(cfg.Channel, logging.NewComponentLogger("channel"))
		notifier = channel
		progress = channel
	}

	scheduler := skills.NewReminderScheduler(notifier, "", logging.NewComponentLogger("reminders"))
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}

	executor := skills.NewExecutor(bridge, schemas, provider, business, scheduler, logging.NewComponentLogger("executor"))
	deps := skills.NewMutationDeps(bridge, schemas, model, provider, states, logging.NewComponentLogger("skills"))

	registry := skills.NewRegistry()
	registry.Register(skills.NewQuerySkill(bridge, schemas, model, provider, metrics, logging.NewComponentLogger("query")))
	registry.Register(skills.NewCreateSkill(deps))
	registry.Register(skills.NewUpdateSkill(deps))
	registry.Register(skills.NewCloseSkill(deps))
	registry.Register(skills.NewDeleteSkill(deps))
	registry.Register(skills.NewChitchatSkill(model, logging.NewComponentLogger("chitchat")))
	registry.Register(skills.NewReminderSkill(deps, scheduler))

	rules, err := intent.LoadRules(cfg.Intent.RulesPath, logging.NewComponentLogger("intent"))
	if err != nil {
		return fmt.Errorf("load intent rules: %w", err)
	}
	planner := intent.NewPlanner(model, cfg.Intent.ConfidenceThreshold, cfg.LLM.Timeout, logging.NewComponentLogger("planner"))

	engine := render.NewEngine(cfg.Render.TemplateRoot, logging.NewComponentLogger("render"))
	renderer := render.NewRenderer(engine, logging.NewComponentLogger("render"))

	orch := orchestrator.New(orchestrator.Deps{
		Registry:      registry,
		Executor:      executor,
		States:        states,
		Provider:      provider,
		Planner:       planner,
		Rules:         rules,
		Renderer:      renderer,
		Transcript:    session.NewTranscript(20, 4000),
		Journal:       memory.NewJournal(1000),
		Monitor:       monitor,
		Usage:         usage,
		Metrics:       metrics,
		CallbackDedup: callbackDedup,
		Progress:      progress,
		Logger:        logging.NewComponentLogger("orchestrator"),
	})

	if err := metrics.RegisterActiveSessions(orch.ActiveSessions); err != nil {
		return fmt.Errorf("register sessions gauge: %w", err)
	}

	srv := server.New(cfg.Server, orch, events, logging.NewComponentLogger("server"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("omniagent %s started", version)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
			return nil
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				// hot reload: configuration and intent rules
				if err := provider.Reload(); err != nil {
					logger.Error("config reload failed: %v", err)
					continue
				}
				current := provider.Current()
				if current.Intent.RulesPath != "" {
					reloaded, err := intent.LoadRules(current.Intent.RulesPath, logging.NewComponentLogger("intent"))
					if err != nil {
						logger.Error("intent rules reload failed: %v", err)
						continue
					}
					if err := rules.Replace(reloaded.Snapshot()); err != nil {
						logger.Error("intent rules reload failed: %v", err)
						continue
					}
				}
				logger.Info("configuration reloaded")
				continue
			}

			logger.Info("shutting down on %s", sig)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown: %v", err)
			}
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics shutdown: %v", err)
			}
			scheduler.Stop()
			if channel != nil {
				channel.Close()
			}
			if sqlite != nil {
				if err := sqlite.Close(); err != nil {
					logger.Error("state store close: %v", err)
				}
			}
			return nil
		}
	}
}
