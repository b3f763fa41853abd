package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ramonsune/custodia-360-sub010/internal/server"
	"github.com/ramonsune/custodia-360-sub010/internal/server/handler/jobs"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/config"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/log"
)

func main() {
	configPath := flag.String("config", "configs/custodia.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := log.New("main")
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	logOpts := log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	logger := log.NewWithOptions("main", logOpts)
	httpLogger := log.NewWithOptions("http", logOpts)
	adminLogger := log.NewWithOptions("admin", logOpts)
	jobLogger := log.NewWithOptions("jobs", logOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server.Server{
		HTTP: server.HTTPConfig{
			Addr: cfg.HTTP.Addr,
			Cron: jobs.CronAuth{
				Header: cfg.Cron.Header,
				Secret: []byte(cfg.Cron.Secret),
			},
			Logger: &httpLogger,
		},
		Admin: server.AdminConfig{
			Addr:   cfg.Admin.Addr,
			Logger: &adminLogger,
		},
	}

	if cfg.HasDatastore() {
		db, err := infra.OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open datastore")
		}
		defer db.Close()

		sender, err := server.NewSender(cfg.Mail, &jobLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init mail sender")
		}
		srv.Services, err = server.NewServices(ctx, db, cfg, sender, &jobLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init services")
		}
		srv.DB = db
		logger.Info().
			Str("driver", cfg.Database.Driver).
			Str("mail", cfg.Mail.Provider).
			Msg("datastore ready")
	} else {
		logger.Warn().Msg("no datastore configured, job and api endpoints will fail")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ServeAPI(gctx) })
	g.Go(func() error { return srv.ServeAdmin(gctx) })
	if cfg.Scheduler.Enabled && srv.Services != nil {
		sched := &server.Scheduler{
			Services:         srv.Services,
			GuardInterval:    cfg.Scheduler.GuardInterval,
			DispatchInterval: cfg.Scheduler.DispatchInterval,
			Logger:           &jobLogger,
		}
		g.Go(func() error { return sched.Run(gctx) })
		logger.Info().
			Dur("guard_interval", cfg.Scheduler.GuardInterval).
			Dur("dispatch_interval", cfg.Scheduler.DispatchInterval).
			Msg("scheduler enabled")
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		stop()
		os.Exit(1)
	}
	logger.Info().Msg("bye")
}
