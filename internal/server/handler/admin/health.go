package admin

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultProbeInterval = 15 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthReporter keeps the gRPC health status in line with the datastore.
// Without a datastore the service never reports SERVING.
type HealthReporter struct {
	Health   *health.Server
	DB       Pinger
	Interval time.Duration
	Logger   *zerolog.Logger
}

func (h *HealthReporter) Run(ctx context.Context) error {
	interval := h.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		st := h.Probe(ctx)
		if st != last && h.Logger != nil {
			h.Logger.Info().
				Str("status", st.String()).
				Msg("health changed")
		}
		last = st

		select {
		case <-ctx.Done():
			h.Health.Shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

// Probe pings the datastore once and publishes the result.
func (h *HealthReporter) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.DB == nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	} else {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := h.DB.PingContext(pctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.Health.SetServingStatus("", st)
	return st
}
