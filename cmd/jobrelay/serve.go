package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/jobrelay/internal/action"
	"github.com/memohai/jobrelay/internal/agent"
	"github.com/memohai/jobrelay/internal/channel/adapters/telegram"
	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/handlers"
	"github.com/memohai/jobrelay/internal/history"
	"github.com/memohai/jobrelay/internal/jobs"
	"github.com/memohai/jobrelay/internal/llm"
	"github.com/memohai/jobrelay/internal/logger"
	"github.com/memohai/jobrelay/internal/prompts"
	"github.com/memohai/jobrelay/internal/schedule"
	"github.com/memohai/jobrelay/internal/server"
	"github.com/memohai/jobrelay/internal/summary"
	"github.com/memohai/jobrelay/internal/transcribe"
	"github.com/memohai/jobrelay/internal/trigger"
	"github.com/memohai/jobrelay/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runServe(cfg)
			return nil
		},
	}
}

func runServe(cfg config.Config) {
	fx.New(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			config.NewCredentials,
			provideHistoryStore,
			history.NewLocker,
			provideGitHubRunner,
			providePrompts,
			provideToolRegistry,
			provideLLMClient,
			provideSummarizer,
			provideTelegramClient,
			provideTranscriber,
			provideCoordinator,
			provideAgentLoop,
			provideTelegramAdapter,
			provideActionExecutor,
			provideTriggerDispatcher,
			provideScheduler,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideJobsHandler),
			provideServerHandler(provideTelegramHandler),
			provideServerHandler(provideGitHubHandler),
			provideServer,
		),
		fx.Invoke(
			registerJobTools,
			startScheduler,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideHistoryStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (history.Store, error) {
	store, err := history.Open(context.Background(), log, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return store.Close() }})
	return store, nil
}

func provideGitHubRunner(log *slog.Logger, cfg config.Config) *jobs.GitHubRunner {
	return jobs.NewGitHubRunner(log, cfg.GitHub)
}

func providePrompts(cfg config.Config) *prompts.Renderer {
	return prompts.New(cfg.Prompts.Dir)
}

func provideToolRegistry() *llm.ToolRegistry {
	return llm.NewToolRegistry()
}

func provideLLMClient(log *slog.Logger, cfg config.Config, tools *llm.ToolRegistry, renderer *prompts.Renderer) (*llm.Client, error) {
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(log, provider, tools, llm.ClientOptions{
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		MaxIterations: cfg.LLM.MaxToolIterations,
		System: func() (string, error) {
			return renderer.Render(prompts.ChatSystem, nil)
		},
	}), nil
}

func provideSummarizer(log *slog.Logger, cfg config.Config, client *llm.Client, renderer *prompts.Renderer) *summary.Summarizer {
	return summary.New(log, client, renderer, cfg.LLM.ResolvedSummaryModel(), cfg.LLM.SummaryMaxTokens)
}

func provideTelegramClient(log *slog.Logger, cfg config.Config, creds *config.Credentials) *telegram.Client {
	return telegram.NewClient(log, creds, telegram.WithAPIEndpoint(cfg.Telegram.APIEndpoint))
}

// provideTranscriber yields a nil interface when no OpenAI key is set so
// the adapter declines voice messages.
func provideTranscriber(log *slog.Logger, cfg config.Config) telegram.Transcriber {
	w, ok := transcribe.FromConfig(cfg)
	if !ok {
		log.Info("voice transcription disabled; OPENAI_API_KEY is not set")
		return nil
	}
	return w
}

func provideCoordinator(log *slog.Logger, runner *jobs.GitHubRunner, summarizer *summary.Summarizer, tg *telegram.Client, creds *config.Credentials, store history.Store, locker *history.Locker) *jobs.Coordinator {
	return jobs.NewCoordinator(log, runner, runner, summarizer, tg, creds, store, locker)
}

func provideAgentLoop(log *slog.Logger, client *llm.Client, tg *telegram.Client, store history.Store, locker *history.Locker) *agent.Loop {
	return agent.New(log, client, tg, store, locker)
}

func provideTelegramAdapter(log *slog.Logger, tg *telegram.Client, creds *config.Credentials, transcriber telegram.Transcriber, loop *agent.Loop) *telegram.Adapter {
	return telegram.NewAdapter(log, tg, creds, transcriber, loop)
}

func provideActionExecutor(log *slog.Logger, coordinator *jobs.Coordinator) *action.Executor {
	return action.NewExecutor(log, coordinator, &http.Client{Timeout: 60 * time.Second})
}

func provideTriggerDispatcher(log *slog.Logger, cfg config.Config, executor *action.Executor) *trigger.Dispatcher {
	return trigger.NewDispatcher(log, cfg.Triggers.File, executor)
}

func provideScheduler(log *slog.Logger, cfg config.Config, executor *action.Executor) (*schedule.Scheduler, error) {
	entries, err := schedule.Load(cfg.Crons.File)
	if err != nil {
		return nil, fmt.Errorf("load crons: %w", err)
	}
	return schedule.New(log, entries, executor)
}

func provideJobsHandler(log *slog.Logger, coordinator *jobs.Coordinator) *handlers.JobsHandler {
	return handlers.NewJobsHandler(log, coordinator)
}

func provideTelegramHandler(log *slog.Logger, adapter *telegram.Adapter, tg *telegram.Client, creds *config.Credentials) *handlers.TelegramHandler {
	return handlers.NewTelegramHandler(log, adapter, tg, creds)
}

func provideGitHubHandler(log *slog.Logger, coordinator *jobs.Coordinator, creds *config.Credentials) *handlers.GitHubHandler {
	return handlers.NewGitHubHandler(log, coordinator, creds)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	Credentials    *config.Credentials
	Triggers       *trigger.Dispatcher
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server, params.Credentials, params.Triggers, params.ServerHandlers...)
}

func registerJobTools(tools *llm.ToolRegistry, coordinator *jobs.Coordinator) error {
	return jobs.RegisterTools(tools, coordinator)
}

func startScheduler(lc fx.Lifecycle, scheduler *schedule.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { scheduler.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return scheduler.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting jobrelay", slog.String("version", version.GetInfo()), slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
