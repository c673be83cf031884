package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"eventrec/recommender/internal/cache"
	"eventrec/recommender/internal/client"
	"eventrec/recommender/internal/config"
	"eventrec/recommender/internal/queue"
	"eventrec/recommender/internal/recommend"
	"eventrec/recommender/internal/repository"
	"eventrec/recommender/internal/server"
	"eventrec/recommender/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Client     client.TicketMasterClient
	Repository repository.Repository
	Queue      queue.Queue       // nil when Redis is disabled
	Cache      cache.SearchCache // nil when Redis is disabled

	Service *service.Service
	Engine  *recommend.Engine
	Server  *server.Server

	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	// Initialize repository
	repo, err := repository.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", cfg.Database.Driver, err)
	}
	container.Repository = repo
	log.Infof("✅ Connected to %s history store", cfg.Database.Driver)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})

		// Test connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			rdb.Close()
			repo.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")
		container.redis = rdb

		redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Redis)
		if err != nil {
			container.Close()
			return nil, err
		}
		container.Queue = redisQueue
		container.Cache = cache.NewRedisSearchCache(
			rdb,
			cfg.TicketMaster.GeohashPrecision,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
		)
	} else {
		log.Info("Redis disabled, search cache off and items saved inline")
	}

	container.Client = client.NewTicketMasterClient(cfg.TicketMaster)

	svc := service.NewService(
		repo,
		container.Client,
		container.Cache,
		container.Queue,
		cfg.Redis.ConsumerGroup,
		cfg.Redis.MinIdleTime,
		cfg.Redis.MaxDeliveries,
	)
	container.Service = svc

	container.Engine = recommend.NewEngine(repo, svc,
		recommend.WithSearchConcurrency(cfg.Recommend.SearchConcurrency))

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	container.Server = server.NewServer(
		container.Engine,
		svc,
		repo,
		time.Duration(cfg.Recommend.RequestTimeout)*time.Second,
	)

	return container, nil
}

// Run serves the HTTP API and runs catalog workers until ctx is done or
// one of them fails.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              c.Config.Server.Addr(),
		Handler:           c.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Infof("🚀 HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(c.Config.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		log.Info("🛑 Shutting down HTTP server...")
		return httpServer.Shutdown(shutdownCtx)
	})

	// Run workers to process catalog tasks
	g.Go(func() error {
		return c.Service.RunWorkers(ctx, c.Config.Workers.Count)
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	var errs []error
	if c.Repository != nil {
		errs = append(errs, c.Repository.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}

	log.Info("Container shut down successfully")
	return errors.Join(errs...)
}
