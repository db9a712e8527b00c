// Package routing provides the lead routing bounded context module.
// This file defines the module that encapsulates all routing setup.
package routing

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/routing/alerts"
	"leadflow_backend/internal/routing/pools"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/internal/routing/rules"
	"leadflow_backend/internal/routing/service"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Module is the routing bounded context module.
type Module struct {
	service    *service.RoutingService
	dispatcher *alerts.Dispatcher
	redis      *goredis.Client
}

// NewModule creates and initializes the routing module with all its dependencies.
func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	cfg config.RoutingConfig,
	redisCfg config.RedisConfig,
	val *validator.Validator,
	log *logger.Logger,
) (*Module, error) {
	opt, err := goredis.ParseURL(redisCfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := goredis.NewClient(opt)

	dispatcher, err := alerts.NewDispatcher(cfg, redisCfg, log)
	if err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	engine := rules.NewEngine(val, log)
	assigner := pools.NewAssigner(pools.NewRedisStateStore(redisClient), cfg)
	svc := service.NewRoutingService(engine, assigner, repo, dispatcher, bus, log)

	return &Module{
		service:    svc,
		dispatcher: dispatcher,
		redis:      redisClient,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the routing service.
func (m *Module) Service() *service.RoutingService {
	return m.service
}

// Close releases the module's queue and redis connections.
func (m *Module) Close() error {
	if err := m.dispatcher.Close(); err != nil {
		return err
	}
	return m.redis.Close()
}
