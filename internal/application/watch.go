package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/events"
)

// DefaultRefreshInterval is how often a watched view is recomputed when no
// reservation events arrive.
const DefaultRefreshInterval = 30 * time.Second

// Watch emits the availability of resource on date immediately, then again
// on every tick of interval and whenever an event arrives on triggers. It
// returns when ctx is cancelled or emit fails. A failed recomputation is
// logged and retried on the next tick; the previous view stays in place.
//
// triggers may be nil. When it is closed Watch continues on the timer alone.
func (s *AvailabilityService) Watch(ctx context.Context, resource, date string, interval time.Duration, triggers <-chan events.Event, emit func([]availability.SlotView) error) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if vErr := s.validateQuery(resource, date); vErr.HasErrors() {
		return vErr
	}

	logger := s.loggerWith(ctx, "Watch", "resource", resource, "date", date)
	logger.DebugContext(ctx, "watch started", "interval", interval)
	defer logger.DebugContext(ctx, "watch stopped")

	refresh := func() error {
		views, err := s.ListAvailability(ctx, resource, date)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WarnContext(ctx, "availability refresh failed", "error", err, "error_kind", ErrorKind(err))
			return nil
		}
		return emit(views)
	}

	if err := refresh(); err != nil {
		return stopReason(ctx, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case evt, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			if evt.Resource != resource || evt.Date != date {
				continue
			}
		}
		if err := refresh(); err != nil {
			return stopReason(ctx, err)
		}
	}
}

// stopReason treats cancellation as a normal end of the watch.
func stopReason(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
