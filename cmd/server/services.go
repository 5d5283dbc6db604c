package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/api"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/config"
	"github.com/zombar/promptscore/internal/metrics"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/optimizer"
	"github.com/zombar/promptscore/internal/queue"
	"github.com/zombar/promptscore/internal/tracing"
	"github.com/zombar/promptscore/pkg/logging"
)

// services is everything the server wires together
type services struct {
	optimizer *optimizer.Service
	jobs      *queue.Client
	worker    *queue.Worker
	sweeper   *cache.Sweeper
	caches    []api.StatsSource
	metrics   *metrics.BusinessMetrics
	logger    *slog.Logger
	rdb       *redis.Client
}

func newServices(cfg config.Config, m *metrics.BusinessMetrics, logger *slog.Logger) (*services, error) {
	s := &services{metrics: m, logger: logger}

	if cfg.Redis.URL != "" {
		rdb, err := cache.Connect(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		s.rdb = rdb
		logger.Info("using redis-backed caches")
	} else {
		logger.Info("using in-memory caches")
	}

	optimizations := newStore[models.Optimization](s.rdb, "promptscore:optimizations", cfg.Cache.OptimizationTTL, logger)
	questions := newStore[models.QuestionSet](s.rdb, "promptscore:questions", cfg.Cache.QuestionTTL, logger)
	jobs := newStore[models.ScoreJob](s.rdb, "promptscore:jobs", cfg.Cache.JobTTL, logger)

	for _, st := range []cacheStore{optimizations, questions, jobs} {
		s.caches = append(s.caches, st)
		m.RegisterCache("promptscore", st)
	}

	s.sweeper = cache.NewSweeper(cfg.Cache.SweepInterval, logger, optimizations, questions, jobs)
	s.sweeper.OnSweep(m.RecordSweep)

	llm, err := optimizer.NewRewriter(cfg.LLM, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.optimizer = optimizer.New(analyzer.New(), optimizer.Config{
		LLM:           llm,
		Optimizations: optimizations,
		Questions:     questions,
		Metrics:       m,
		Logger:        logger,
	})

	if cfg.QueueEnabled() {
		s.jobs = queue.NewClient(queue.ClientConfig{RedisAddr: cfg.Redis.Addr}, jobs)
		if cfg.Worker.Enabled {
			processor := queue.NewProcessor(s.optimizer, jobs, m, logger)
			s.worker = queue.NewWorker(queue.WorkerConfig{
				RedisAddr:   cfg.Redis.Addr,
				Concurrency: cfg.Worker.Concurrency,
			}, processor)
		} else if s.rdb == nil {
			logger.Warn("worker disabled with in-memory job store, job status will not update in this process")
		}
	} else {
		logger.Info("no redis address configured, background jobs disabled")
	}

	return s, nil
}

// cacheStore is a cache the server sweeps and reports on
type cacheStore interface {
	cache.Cleaner
	api.StatsSource
}

func newStore[V any](rdb *redis.Client, namespace string, ttl time.Duration, logger *slog.Logger) cache.Store[V] {
	if rdb != nil {
		return cache.NewRedis[V](rdb, namespace, ttl, logger)
	}
	return cache.NewMemory[V](namespace, ttl)
}

// handler builds the full middleware chain: tracing -> logging -> metrics -> API
func (s *services) handler(serviceName string) http.Handler {
	var jobs api.JobQueue
	if s.jobs != nil {
		jobs = s.jobs
	}

	apiHandler := api.NewHandler(api.Config{
		Optimizer: s.optimizer,
		Jobs:      jobs,
		Caches:    s.caches,
		Metrics:   s.metrics,
		Logger:    s.logger,
	})

	return tracing.HTTPMiddleware(serviceName)(
		logging.HTTPLoggingMiddleware(s.logger)(
			s.metrics.HTTPMiddleware(apiHandler),
		),
	)
}

// Close releases the queue client and Redis connection
func (s *services) Close() error {
	var errs []error
	if s.jobs != nil {
		errs = append(errs, s.jobs.Close())
	}
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	return errors.Join(errs...)
}
