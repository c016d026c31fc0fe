// Package rotate switches the CSV log to a new file at local midnight.
package rotate

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse/internal/csvlog"
)

// Schedule fires once a day at local midnight.
const Schedule = "@midnight"

// Target is the sink being rotated.
type Target interface {
	Initialize(path string) error
}

// Rotator reinitializes a Target with the day's file name every midnight.
type Rotator struct {
	target Target
	dir    string
	loc    *time.Location
	cron   *cron.Cron

	// Now returns the current time. Tests override it.
	Now func() time.Time
	// OnRotate, if set, is called with each path the target switches to.
	OnRotate func(path string)
}

// New creates a rotator writing into dir, scheduled in loc.
func New(target Target, dir string, loc *time.Location) *Rotator {
	if loc == nil {
		loc = time.Local
	}
	return &Rotator{
		target: target,
		dir:    dir,
		loc:    loc,
		cron:   cron.New(cron.WithLocation(loc)),
		Now:    time.Now,
	}
}

// Path returns the file the log should be in at t.
func (r *Rotator) Path(t time.Time) string {
	return csvlog.FileName(r.dir, t.In(r.loc))
}

// Start opens today's file and schedules the daily rotation.
func (r *Rotator) Start() error {
	now := r.Now()
	if err := r.switchTo(r.Path(now)); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(Schedule, r.Rotate); err != nil {
		return fmt.Errorf("schedule rotation: %w", err)
	}
	r.cron.Start()
	log.Infof("rotate: writing %s, next rotation in %v", r.Path(now), TimeToMidnight(now.In(r.loc)).Round(time.Second))
	return nil
}

// Rotate switches to the file for the current date. Failures are logged and
// the previous file stays in use.
func (r *Rotator) Rotate() {
	path := r.Path(r.Now())
	if err := r.switchTo(path); err != nil {
		log.WithError(err).Errorf("rotate: cannot switch to %s", path)
		return
	}
	log.Infof("rotate: now writing %s", path)
}

func (r *Rotator) switchTo(path string) error {
	if err := r.target.Initialize(path); err != nil {
		return err
	}
	if r.OnRotate != nil {
		r.OnRotate(path)
	}
	return nil
}

// Stop cancels the schedule and waits for a running rotation to finish.
func (r *Rotator) Stop() {
	<-r.cron.Stop().Done()
}

// TimeToMidnight returns how long until the next local midnight after t, in
// t's location.
func TimeToMidnight(t time.Time) time.Duration {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Sub(t)
}
