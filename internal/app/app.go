package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/config"
	"github.com/prperemyshlev/authgate/internal/handler"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra    Infrastructure
	config   *config.Config
	services *services
	router   *gin.Engine
	server   *http.Server
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	svc, err := newServices(infra, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, svc, NewHealthChecker(infra), infra.MetricsHandler(), infra.Logger())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:    infra,
		config:   cfg,
		services: svc,
		router:   router,
		server:   srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// StartWorkers launches the notification workers and the magic link
// janitor. The janitor stops with ctx; the dispatcher stops in Shutdown.
func (a *App) StartWorkers(ctx context.Context) {
	a.services.dispatcher.Start()
	go a.services.janitor.Run(ctx)
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	a.StartWorkers(ctx)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

// Shutdown stops accepting requests, drains queued notifications and then
// releases the infrastructure.
func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)

	if stopErr := a.services.dispatcher.Stop(ctx); stopErr != nil && !errors.Is(stopErr, service.ErrDispatcherStopped) {
		err = errors.Join(err, stopErr)
	}
	for _, closeFn := range a.services.closers {
		err = errors.Join(err, closeFn())
	}

	err = errors.Join(err, a.infra.Shutdown(ctx))
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
