package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vinlotto-backend/api/controllers"
	"github.com/angelmondragon/vinlotto-backend/api/routes"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type dependency interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        dependency
	Redis     dependency
	PubSub    dependency
	Consumer  runner
	Processor controllers.OrderProcessor
	Events    controllers.EventLister
	Gatherer  prometheus.Gatherer
	Listener  net.Listener
}

// Service runs the order-event consumer next to the ops HTTP surface.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       dependency
	redis    dependency
	pubsub   dependency
	consumer runner
	server   *http.Server
	listener net.Listener
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("order consumer is required")
	}
	if params.Processor == nil {
		return nil, errors.New("order processor is required")
	}

	handler := routes.NewOpsRouter(params.Config, params.Logger, routes.OpsDeps{
		Processor: params.Processor,
		Events:    params.Events,
		DB:        params.DB,
		Redis:     params.Redis,
		Gatherer:  params.Gatherer,
	})
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		consumer: params.Consumer,
		server: &http.Server{
			Addr:              ":" + params.Config.App.Port,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: params.Listener,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until the context is canceled or either the consumer or the
// HTTP server fails. A canceled context is a clean shutdown.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			s.logg.Info(s.logg.WithField(ctx, "addr", s.server.Addr), "ops server listening")
			err = s.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "worker component stopped unexpectedly", err)
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logg.Error(ctx, "ops server shutdown failed", err)
	}
	return runErr
}
