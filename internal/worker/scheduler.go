// Package worker runs the scheduled jobs of the worker process.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"orti/internal/amqp"
	"orti/internal/core"
	"orti/internal/log"
	"orti/internal/services"
)

// Sessions is the part of the session registry the jobs need.
type Sessions interface {
	Session(ctx context.Context, year int) (*services.Session, error)
	RefreshAll(ctx context.Context) error
}

// Schedule holds the cron expressions of the jobs.
type Schedule struct {
	Reconcile string
	Rollover  string
	Location  *time.Location

	// Announce, when set, broadcasts each rollover so API replicas reload.
	Announce services.Notifier
}

// Scheduler runs the reconciliation sweep and the month rollover refresh.
type Scheduler struct {
	sessions Sessions
	announce services.Notifier
	cron     *cron.Cron
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
	logger   *log.Logger
}

func NewScheduler(sessions Sessions, schedule Schedule, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	loc := schedule.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		sessions: sessions,
		announce: schedule.Announce,
		cron:     cron.New(cron.WithLocation(loc)),
		loc:      loc,
		timeout:  5 * time.Minute,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentWorker),
	}

	if _, err := s.cron.AddFunc(schedule.Reconcile, s.runReconcile); err != nil {
		return nil, fmt.Errorf("reconcile schedule %q: %w", schedule.Reconcile, err)
	}
	if _, err := s.cron.AddFunc(schedule.Rollover, s.runRollover); err != nil {
		return nil, fmt.Errorf("rollover schedule %q: %w", schedule.Rollover, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) currentYear() int {
	return s.now().In(s.loc).Year()
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.ReconcileSweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Reconciliation sweep failed", log.FieldError, err)
	}
}

func (s *Scheduler) runRollover() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.RolloverRefresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Month rollover refresh failed", log.FieldError, err)
	}
}

// ReconcileSweep checks every category month of the current year under each
// view and logs the mismatches. It returns how many were found.
func (s *Scheduler) ReconcileSweep(ctx context.Context) (int, error) {
	year := s.currentYear()
	sess, err := s.sessions.Session(ctx, year)
	if err != nil {
		return 0, err
	}
	if _, err := sess.Reload(ctx); err != nil {
		return 0, err
	}

	found := 0
	for _, view := range core.ViewModes {
		mismatches, err := sess.ValidateYear(view)
		if err != nil {
			return found, err
		}
		for _, res := range mismatches {
			found++
			s.logger.WarnContext(ctx, "Category does not match its subcategories",
				log.FieldCategoryID, res.CategoryID,
				log.FieldYear, year,
				log.FieldMonth, res.Month,
				log.FieldView, view.String(),
				log.FieldDifference, res.Difference.StringFixed(2))
		}
	}
	s.logger.InfoContext(ctx, "Reconciliation sweep completed",
		log.FieldYear, year,
		log.FieldCount, found)
	return found, nil
}

// RolloverRefresh opens the current year, reloads every open session and
// announces the new month to the other processes.
func (s *Scheduler) RolloverRefresh(ctx context.Context) error {
	year := s.currentYear()
	sess, err := s.sessions.Session(ctx, year)
	if err != nil {
		return err
	}
	if err := s.sessions.RefreshAll(ctx); err != nil {
		return err
	}
	if s.announce != nil {
		msg := amqp.NewChangeMessage(sess.Company().ID, year, amqp.WholeYear, amqp.ReasonRollover)
		if err := s.announce.PublishChange(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Failed to announce month rollover", log.FieldError, err)
		}
	}
	s.logger.InfoContext(ctx, "Month rollover refresh completed", log.FieldYear, year)
	return nil
}
