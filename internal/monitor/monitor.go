// Package monitor runs the background tasks that watch GPIO edge events and
// publish what they see into state.Shared.
package monitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse/internal/gpio"
)

// PollTimeout bounds every wait for edge events, and therefore how long a
// monitor takes to notice cancellation.
const PollTimeout = 100 * time.Millisecond

// pollLoop waits for events until ctx is done, calling drain whenever the
// group reports readiness and idle whenever a poll times out.
func pollLoop(ctx context.Context, lines gpio.LineGroup, timeout time.Duration, drain func(context.Context) error, idle func()) error {
	if timeout <= 0 {
		timeout = PollTimeout
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ready, err := lines.Poll(timeout)
		if err != nil {
			return err
		}
		if !ready {
			if idle != nil {
				idle()
			}
			continue
		}
		if err := drain(ctx); err != nil {
			return err
		}
	}
}

// drainEvents reads every queued event, handing each to fn. It stops early
// once ctx is done so a busy line cannot hold off cancellation.
func drainEvents(ctx context.Context, lines gpio.LineGroup, fn func(gpio.Event) error) error {
	for ctx.Err() == nil {
		ev, ok, err := lines.ReadEvent()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// Runner is a monitor task.
type Runner interface {
	Run(ctx context.Context) error
}

// Supervise runs r until it returns. A failure ends only this monitor: it
// is logged with the task name and swallowed, and the values the monitor
// last published stay in the shared state.
func Supervise(ctx context.Context, name string, r Runner) error {
	if err := r.Run(ctx); err != nil {
		log.WithField("task", name).WithError(err).Error("monitor stopped, its readings are now stale")
	}
	return nil
}
