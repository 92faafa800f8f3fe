package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsWorker periodically logs process health (CPU, RSS) alongside the
// current session occupancy. Observability only; nothing consumes it.
type StatsWorker struct {
	log      *slog.Logger
	interval time.Duration
	// participants reports the current roster size; supplied as a
	// closure so the worker never touches session state directly.
	participants func() int
}

func NewStatsWorker(log *slog.Logger, interval time.Duration, participants func() int) *StatsWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatsWorker{log: log, interval: interval, participants: participants}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			memInfo, err := p.MemoryInfo()
			if err != nil {
				w.log.Warn("Failed to collect memory stats", "error", err)
				continue
			}
			cpuPercent, err := p.CPUPercent()
			if err != nil {
				w.log.Warn("Failed to collect CPU stats", "error", err)
				continue
			}
			w.log.Info("Session stats",
				"participants", w.participants(),
				"cpu_percent", cpuPercent,
				"rss_bytes", memInfo.RSS)
		}
	}
}
