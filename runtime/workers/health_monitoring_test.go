package workers

import (
	"chat-gateway/errors"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// servingStatus reports SERVICE_UNKNOWN for services not published yet.
func servingStatus(hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return resp.Status
}

func TestHealthMonitoringWorker_PublishesProbeResults(t *testing.T) {
	req := require.New(t)
	hs := health.NewServer()
	var pipelineDown atomic.Bool

	worker := NewHealthMonitoringWorker(slog.Default(), hs, 10*time.Millisecond,
		Probe{Service: "store", Check: func(context.Context) error { return nil }},
		Probe{Service: "pipeline", Check: func(context.Context) error {
			if pipelineDown.Load() {
				return errors.ErrPipelineClosed
			}
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Then every probed service is serving while probes pass
	req.Eventually(func() bool {
		return servingStatus(hs, "pipeline") == healthpb.HealthCheckResponse_SERVING &&
			servingStatus(hs, "store") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)
	req.Equal(healthpb.HealthCheckResponse_SERVING, servingStatus(hs, OverallService))

	// When the pipeline probe starts failing
	pipelineDown.Store(true)
	req.Eventually(func() bool {
		return servingStatus(hs, OverallService) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(hs, "pipeline"))
	req.Equal(healthpb.HealthCheckResponse_SERVING, servingStatus(hs, "store"))

	// When the worker stops, nothing is served any more
	cancel()
	req.NoError(<-done)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(hs, "store"))
}
