package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ramonsune/custodia-360-sub010/internal/server/handler"
	"github.com/ramonsune/custodia-360-sub010/internal/server/handler/admin"
	"github.com/ramonsune/custodia-360-sub010/internal/server/handler/api"
	"github.com/ramonsune/custodia-360-sub010/internal/server/handler/jobs"
)

const shutdownTimeout = 10 * time.Second

type HTTPConfig struct {
	Addr   string
	Cron   jobs.CronAuth
	Logger *zerolog.Logger
}

type AdminConfig struct {
	Addr   string
	Logger *zerolog.Logger
}

type Server struct {
	HTTP  HTTPConfig
	Admin AdminConfig

	// Services is nil when no datastore is configured; every datastore
	// endpoint then answers 500.
	Services *Services
	DB       admin.Pinger
}

func (s *Server) Router() http.Handler {
	jobHandler := &jobs.JobHandler{Logger: s.HTTP.Logger}
	apiHandler := &api.APIHandler{
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   s.HTTP.Logger,
	}
	if s.Services != nil {
		jobHandler.Guard = s.Services.Guard
		jobHandler.Dispatcher = s.Services.Dispatcher
		apiHandler.Invites = s.Services.Invites
		apiHandler.Messages = s.Services.Messages
		apiHandler.Compliance = s.Services.Compliance
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(s.accessLog)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			jobHandler.Register(r, s.HTTP.Cron)
		})
		r.Group(apiHandler.Register)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		handler.WriteError(w, http.StatusServiceUnavailable, handler.MissingDatastore)
		return
	}
	if err := s.DB.PingContext(r.Context()); err != nil {
		handler.WriteError(w, http.StatusServiceUnavailable, "datastore unreachable")
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.HTTP.Logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.HTTP.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request", middleware.GetReqID(r.Context())).
			Msg("handled request")
	})
}

func (s *Server) ServeAPI(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to init server: %w", err)
	}
	s.HTTP.Logger.Info().
		Str("address", s.HTTP.Addr).
		Msg("started server")

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.HTTP.Logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ServeAdmin(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Admin.Addr)
	if err != nil {
		return fmt.Errorf("failed to init server: %w", err)
	}
	s.Admin.Logger.Info().
		Str("address", s.Admin.Addr).
		Msg("started server")

	hs := health.NewServer()
	inst := grpc.NewServer()
	healthpb.RegisterHealthServer(inst, hs)
	reflection.Register(inst)

	reporter := &admin.HealthReporter{
		Health: hs,
		DB:     s.DB,
		Logger: s.Admin.Logger,
	}
	go reporter.Run(ctx)

	go func() {
		<-ctx.Done()
		s.Admin.Logger.Info().Msg("shutting down")
		inst.GracefulStop()
	}()

	return inst.Serve(ln)
}
