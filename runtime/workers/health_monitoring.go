package workers

import (
	"context"
	"log/slog"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// OverallService is the empty service name grpc health clients query by default.
const OverallService = ""

type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type Probe struct {
	Service string
	Check   func(ctx context.Context) error
}

// HealthMonitoringWorker evaluates the probes on every tick and publishes
// the result per service. The overall status is SERVING only when all pass.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	status   StatusSetter
	interval time.Duration
	timeout  time.Duration
	probes   []Probe
}

func NewHealthMonitoringWorker(log *slog.Logger, status StatusSetter, interval time.Duration, probes ...Probe) *HealthMonitoringWorker {
	timeout := interval / 2
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HealthMonitoringWorker{
		log:      log,
		status:   status,
		interval: interval,
		timeout:  timeout,
		probes:   probes,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, marking services not serving")
			w.publish(OverallService, false)
			for _, probe := range w.probes {
				w.publish(probe.Service, false)
			}
			return nil
		case <-ticker.C:
			w.evaluate(ctx)
		}
	}
}

func (w *HealthMonitoringWorker) evaluate(ctx context.Context) {
	healthy := true
	for _, probe := range w.probes {
		probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
		err := probe.Check(probeCtx)
		cancel()
		if err != nil {
			w.log.Warn("Health probe failed", "service", probe.Service, "error", err)
			healthy = false
		}
		w.publish(probe.Service, err == nil)
	}
	w.publish(OverallService, healthy)
}

func (w *HealthMonitoringWorker) publish(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	w.status.SetServingStatus(service, status)
}
