// Package rollover closes the previous month automatically at the start of a new one.
package rollover

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// Closer is the slice of the ledger service the scheduler drives.
type Closer interface {
	CloseMonth(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, error)
}

// Scheduler closes month M-1 once, on the 1st of month M at or after hour:minute UTC.
type Scheduler struct {
	closer Closer
	hour   int
	minute int
	log    *slog.Logger

	mu   sync.Mutex
	done ledger.Month
}

func NewScheduler(c Closer, hour, minute int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{closer: c, hour: hour, minute: minute, log: logger}
}

// Start runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

func (s *Scheduler) due(now time.Time) bool {
	if now.Day() != 1 {
		return false
	}
	return now.Hour() > s.hour || (now.Hour() == s.hour && now.Minute() >= s.minute)
}

// Tick closes the previous month if it is due and has not been handled yet.
// It reports whether a close was attempted.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	now = now.UTC()
	if !s.due(now) {
		return false
	}
	target := ledger.MonthOf(now).Prev()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == target {
		return false
	}

	p, err := s.closer.CloseMonth(ctx, target)
	switch {
	case err == nil:
		s.log.Info("month closed", "month", target.String(), "closing", ledger.FormatAmount(p.Closing))
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrConflict):
		s.log.Info("month rollover skipped", "month", target.String(), "reason", err.Error())
	default:
		// retried on the next tick
		s.log.Error("month rollover failed", "month", target.String(), "err", err)
		return true
	}
	s.done = target
	return true
}
