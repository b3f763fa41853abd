package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/ramonsune/custodia-360-sub010/internal/server/repository"
	"github.com/ramonsune/custodia-360-sub010/internal/server/service"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/config"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
)

// Services is everything the handlers and the scheduler call into.
type Services struct {
	Invites    *service.InviteService
	Messages   *service.MessageService
	Compliance *service.ComplianceService
	Guard      *service.GuardService
	Dispatcher *service.Dispatcher
}

// NewServices creates the repositories on db and wires the services.
func NewServices(ctx context.Context, db *bun.DB, cfg *config.Config, sender service.Sender, logger *zerolog.Logger) (*Services, error) {
	entities, err := repository.NewBunEntityRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	compliance, err := repository.NewBunComplianceRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	invites, err := repository.NewBunInviteTokenRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	subscriptions, err := repository.NewBunSubscriptionRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	jobs, err := repository.NewBunMessageJobRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	s := &Services{}
	s.Invites = &service.InviteService{
		Invites: invites,
		BaseURL: cfg.App.BaseURL,
		Window:  cfg.Onboarding.Window,
	}
	s.Messages = &service.MessageService{
		Jobs: jobs,
	}
	s.Compliance = &service.ComplianceService{
		Entities:   entities,
		Compliance: compliance,
		Invites:    s.Invites,
		TXRunner:   infra.NewBunTransactionRunner(db),
	}
	s.Guard = &service.GuardService{
		Compliance:    compliance,
		Invites:       invites,
		Subscriptions: subscriptions,
		Messages:      s.Messages,
		BaseURL:       cfg.App.BaseURL,
		CatchUpDays:   cfg.Guard.CatchUpDays,
		Logger:        logger,
	}
	s.Dispatcher = &service.Dispatcher{
		Jobs:       jobs,
		Entities:   entities,
		Sender:     sender,
		Logger:     logger,
		BatchSize:  cfg.Dispatch.BatchSize,
		StuckAfter: cfg.Dispatch.StuckAfter,
	}
	return s, nil
}

const (
	MailProviderLog      = "log"
	MailProviderSendGrid = "sendgrid"
)

func NewSender(cfg config.MailConfig, logger *zerolog.Logger) (service.Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case MailProviderLog, "":
		return &service.LogSender{Logger: logger}, nil
	case MailProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("failed to init sender: sendgrid api key is empty")
		}
		return &service.SendGridSender{
			APIKey:      cfg.SendGridAPIKey,
			FromName:    cfg.FromName,
			FromAddress: cfg.FromAddress,
		}, nil
	}
	return nil, fmt.Errorf("failed to init sender: unknown provider %q", cfg.Provider)
}
