package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/internal/queue"
	mid "github.com/OFFIS-RIT/lemur/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lemur/backend/internal/util"
	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
	"github.com/OFFIS-RIT/lemur/backend/pkg/analytics"
	"github.com/OFFIS-RIT/lemur/backend/pkg/cache"
	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
	"github.com/OFFIS-RIT/lemur/backend/pkg/index"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
	"github.com/OFFIS-RIT/lemur/backend/pkg/router"

	"github.com/go-playground/validator"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir := util.GetEnvString("DATA_DIR", "./data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Fatal("Failed to create data directory", "dir", dataDir, "err", err)
	}
	embedDim := int(util.GetEnvNumeric("EMBED_DIM", 1536))

	hier, err := index.NewHierarchicalIndex(embedDim, filepath.Join(dataDir, "hier_index.gob"))
	if err != nil {
		logger.Fatal("Failed to open hierarchical index", "err", err)
	}
	flat, err := index.NewFlatIndex(embedDim, filepath.Join(dataDir, "flat_index.gob"))
	if err != nil {
		logger.Fatal("Failed to open flat index", "err", err)
	}
	graphStore, err := graph.NewStore(filepath.Join(dataDir, "graph.gob"))
	if err != nil {
		logger.Fatal("Failed to open graph store", "err", err)
	}

	var redisClient *redis.Client
	if redisURL := util.GetEnv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("Failed to parse REDIS_URL", "err", err)
		}
		redisClient = redis.NewClient(redisOpts)
	} else {
		logger.Warn("REDIS_URL not set, caching disabled")
	}
	cacheTTL := time.Duration(util.GetEnvNumeric("CACHE_TTL_SECONDS", 86400)) * time.Second
	cacheStore := cache.NewStore(redisClient, cache.WithDefaultTTL(cacheTTL))

	gateway := ai.NewGateway(ai.NewGatewayParams{
		Providers:    buildProviders(),
		HealthWindow: time.Duration(util.GetEnvNumeric("AI_HEALTH_WINDOW_SECONDS", 30)) * time.Second,
	})

	bridge := analytics.NewBridge(
		analytics.NewHTTPEngine(
			util.GetEnvString("ANALYTICS_URL", "http://localhost:8091"),
			analytics.WithAPIKey(util.GetEnv("ANALYTICS_KEY")),
		),
	)

	pool, err := ants.NewPool(int(util.GetEnvNumeric("ROUTER_POOL_SIZE", 32)))
	if err != nil {
		logger.Fatal("Failed to create worker pool", "err", err)
	}
	defer pool.Release()

	rtr := router.New(
		router.NewClassifier(),
		router.NewExtractor(),
		hier,
		graph.NewQueryService(graphStore),
		bridge,
		gateway,
		router.WithResultCache(cacheStore),
		router.WithEmbeddingCache(cacheStore, util.GetEnv("AI_EMBED_MODEL")),
		router.WithWorkerPool(pool),
		router.WithContextBudget(int(util.GetEnvNumeric("CTX_TOKEN_BUDGET", 4000))),
	)

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to setup queues", "err", err)
	}

	app := &mid.App{
		Queue:   ch,
		Router:  rtr,
		Gateway: gateway,
		Docs:    hier,
		Flat:    flat,
		Graph:   graphStore,
		Cache:   cacheStore,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("512M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
