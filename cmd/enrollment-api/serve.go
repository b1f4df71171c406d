package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/enrollment-engine/api/swagger"
	"github.com/noah-isme/enrollment-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/enrollment-engine/internal/middleware"
	"github.com/noah-isme/enrollment-engine/pkg/config"
	"github.com/noah-isme/enrollment-engine/pkg/logger"
	reqidmiddleware "github.com/noah-isme/enrollment-engine/pkg/middleware/requestid"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Start the enrollment HTTP API. The term window singleton must exist; run "migrate up" first.`,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	logr := app.logger

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	window, err := app.terms.Current(startupCtx)
	cancel()
	if err != nil {
		logr.Error("term window is not configured", zap.Error(err))
		return fmt.Errorf("term window check failed: %w", err)
	}
	logr.Info("term context loaded",
		zap.String("term", window.CurrentTerm),
		zap.Bool("enrollment_enabled", window.EnrollmentEnabled),
	)

	app.queue.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.cfg.Port),
		Handler:      newRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", app.cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	logr.Info("server exited gracefully")
	return nil
}

func newRouter(app *application) *gin.Engine {
	if app.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(app.logger))
	r.Use(internalmiddleware.Metrics(app.metrics))

	probes := handler.NewMetricsHandler(app.metrics, app.terms)
	r.GET("/health", probes.Health)
	r.GET("/ready", probes.Ready)
	if app.cfg.Metrics.Enabled {
		r.GET("/metrics", probes.Prometheus)
	}
	if app.cfg.Docs.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(app.cfg.APIPrefix), internalmiddleware.JWT(app.auth), handler.Handlers{
		Enrollments: handler.NewEnrollmentHandler(app.enrollments),
		Sections:    handler.NewSectionHandler(app.enrollments, app.ledger, app.terms),
		Terms:       handler.NewTermHandler(app.terms, app.rollover),
		Students:    handler.NewStudentHandler(app.students),
	})

	return r
}
