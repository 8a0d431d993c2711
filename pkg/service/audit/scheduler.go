package audit

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs a consistency check on a fixed interval.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler. A non-positive interval disables it.
func NewScheduler(svc *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{svc: svc, interval: interval, logger: logger.With("component", "audit-scheduler")}
}

// Run checks every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduled consistency checks disabled")
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := s.svc.Check(ctx, false)
			if err != nil {
				s.logger.Error("scheduled consistency check failed", "error", err)
				continue
			}
			if report.Status != StatusHealthy {
				s.logger.Warn("ledger is not consistent", "status", report.Status, "mismatches", report.MismatchCount)
			}
		}
	}
}
