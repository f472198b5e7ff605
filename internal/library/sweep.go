package library

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NextSweep returns the first hour:minute in loc strictly after now.
func NextSweep(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// RunDailySweep signs everyone out at hour:minute local time every day until
// ctx is cancelled.
func (s *Service) RunDailySweep(ctx context.Context, hour, minute int) error {
	for {
		next := NextSweep(s.now(), hour, minute, s.loc)
		s.logger.Info("next sweep scheduled", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.SignOutAll(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}
}
