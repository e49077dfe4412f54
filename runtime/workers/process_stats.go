package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker samples the gateway's own memory and cpu usage.
type ProcessStatsWorker struct {
	log      *slog.Logger
	pid      int32
	interval time.Duration
	rss      prometheus.Gauge
	cpu      prometheus.Gauge
}

func NewProcessStatsWorker(log *slog.Logger, interval time.Duration, rss, cpu prometheus.Gauge) *ProcessStatsWorker {
	return &ProcessStatsWorker{
		log:      log,
		pid:      int32(os.Getpid()),
		interval: interval,
		rss:      rss,
		cpu:      cpu,
	}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample(p)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process stats")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *ProcessStatsWorker) sample(p *process.Process) {
	memory, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Error while finding process memory usage", "err", err)
	} else {
		w.rss.Set(float64(memory.RSS))
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		return
	}
	w.cpu.Set(cpu)
}
