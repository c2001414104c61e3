package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/taskpilot/api/handler"
	"github.com/fastygo/taskpilot/internal/config"
	"github.com/fastygo/taskpilot/internal/infrastructure/buffer"
	"github.com/fastygo/taskpilot/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/taskpilot/internal/infrastructure/postgres"
	"github.com/fastygo/taskpilot/internal/infrastructure/ratelimit"
	redisInfra "github.com/fastygo/taskpilot/internal/infrastructure/redis"
	"github.com/fastygo/taskpilot/internal/middleware"
	"github.com/fastygo/taskpilot/internal/router"
	"github.com/fastygo/taskpilot/internal/services"
	"github.com/fastygo/taskpilot/internal/services/lifecycle"
	"github.com/fastygo/taskpilot/pkg/httpcontext"
	"github.com/fastygo/taskpilot/pkg/logger"
	"github.com/fastygo/taskpilot/repository"
	"github.com/fastygo/taskpilot/repository/memory"
	"github.com/fastygo/taskpilot/repository/postgres"
	redisRepo "github.com/fastygo/taskpilot/repository/redis"
	"github.com/fastygo/taskpilot/usecase/agent"
	profileUC "github.com/fastygo/taskpilot/usecase/profile"
	suggestionUC "github.com/fastygo/taskpilot/usecase/suggestion"
	taskUC "github.com/fastygo/taskpilot/usecase/task"
)

type repositories struct {
	users       repository.UserRepository
	tasks       repository.TaskRepository
	suggestions repository.SuggestionRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	var (
		pool  *pgxpool.Pool
		repos repositories
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		repos = repositories{users: store.Users(), tasks: store.Tasks(), suggestions: store.Suggestions()}
		zapLogger.Warn("using in-memory storage, data is lost on restart")
	default:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err = pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		repos = repositories{
			users:       postgres.NewUserRepository(pool),
			tasks:       postgres.NewTaskRepository(pool),
			suggestions: postgres.NewSuggestionRepository(pool),
		}
	}

	var redisClient *goRedis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	var gate agent.RateGate
	switch cfg.RateGate.Backend {
	case "redis":
		gate = redisRepo.NewRateGate(redisClient, cfg.RateGate.KeyPrefix, cfg.RateGate.Limit, cfg.RateGate.Window)
	default:
		gate = ratelimit.NewGate(cfg.RateGate.Limit, cfg.RateGate.Window, cfg.RateGate.CacheSize)
	}

	spawnStore, err := buffer.Open(cfg.Spawn.BufferPath)
	if err != nil {
		zapLogger.Fatal("failed to open spawn buffer", zap.Error(err))
	}
	manager.Register("spawn_buffer", func(ctx context.Context) error {
		return spawnStore.Close()
	})

	mon := monitor.New(pool, redisClient, spawnStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	spawnProcessor, err := services.NewSpawnProcessor(
		spawnStore,
		mon,
		repos.tasks,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Spawn.RetryInterval,
			BatchSize:  cfg.Spawn.BatchSize,
			MaxRetries: cfg.Spawn.MaxRetries,
		},
	)
	if err != nil {
		zapLogger.Fatal("spawn processor setup failed", zap.Error(err))
	}
	spawnProcessor.Start()
	manager.Register("spawn_processor", func(ctx context.Context) error {
		spawnProcessor.Stop(ctx)
		return nil
	})

	overdueAgent := agent.New(
		repos.users,
		gate,
		repos.tasks,
		repos.suggestions,
		agent.Config{BatchSize: cfg.Agent.BatchSize, Concurrency: cfg.Agent.Concurrency},
		agent.WithReporter(agent.NewZapReporter(zapLogger)),
	)

	scheduler, err := services.NewAgentScheduler(overdueAgent, cfg.Agent.Schedule, cfg.Agent.RunTimeout, zapLogger)
	if err != nil {
		zapLogger.Fatal("agent scheduler setup failed", zap.Error(err))
	}
	if cfg.Agent.Enabled {
		scheduler.Start()
		manager.Register("agent_scheduler", func(ctx context.Context) error {
			scheduler.Stop(ctx)
			return nil
		})
	} else {
		zapLogger.Info("scheduled agent runs disabled, manual runs only")
	}
	if len(cfg.Agent.AdminIDs) == 0 {
		zapLogger.Info("no AGENT_ADMIN_IDS configured, manual agent runs are refused")
	}

	profileUseCase := profileUC.New(repos.users, zapLogger)
	taskUseCase := taskUC.New(repos.tasks, spawnProcessor, zapLogger)
	suggestionUseCase := suggestionUC.New(repos.suggestions, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout, httpcontext.WithCaller(middleware.UserID))

	handlers := router.Handlers{
		Profile:    apiHandler.NewProfileHandler(profileUseCase, ctxAdapter, zapLogger),
		Task:       apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Suggestion: apiHandler.NewSuggestionHandler(suggestionUseCase, ctxAdapter, zapLogger),
		Agent:      apiHandler.NewAgentHandler(scheduler, cfg.Agent.AdminIDs, ctxAdapter, zapLogger),
		Health:     apiHandler.NewHealthHandler(mon, scheduler, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:       r.Handler,
		ReadTimeout:   cfg.HTTP.ReadTimeout,
		WriteTimeout:  cfg.HTTP.WriteTimeout,
		IdleTimeout:   cfg.HTTP.IdleTimeout,
		MaxConnsPerIP: cfg.HTTP.MaxConn,
		Name:          cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("rate_gate", cfg.RateGate.Backend))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
