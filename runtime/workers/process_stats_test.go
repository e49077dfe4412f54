package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestProcessStatsWorker_SetsGauges(t *testing.T) {
	req := require.New(t)
	rss := prometheus.NewGauge(prometheus.GaugeOpts{Name: "rss"})
	cpu := prometheus.NewGauge(prometheus.GaugeOpts{Name: "cpu"})
	worker := NewProcessStatsWorker(slog.Default(), 10*time.Millisecond, rss, cpu)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// When the worker samples the current process
	req.NoError(worker.Run(ctx))

	// Then the resident memory is known
	req.Greater(testutil.ToFloat64(rss), float64(0))
	req.GreaterOrEqual(testutil.ToFloat64(cpu), float64(0))
}
