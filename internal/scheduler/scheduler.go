// Package scheduler runs registered background jobs on fixed
// intervals or at a daily UTC wall-clock time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskFunc is one scheduled job run. The context is cancelled when
// the task is replaced or the scheduler stops.
type TaskFunc func(ctx context.Context)

type task struct {
	id     string
	cancel context.CancelFunc
}

// Scheduler owns a set of named tasks. Registering an id twice
// replaces the previous task, cancelling its runs.
type Scheduler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool

	wg  sync.WaitGroup
	now func() time.Time
}

func New(logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*task),
		now:    time.Now,
	}
}

// Every runs fn, then sleeps the full interval before the next run,
// so a slow run pushes the following one back rather than piling up.
// With immediate set the first run happens right away instead of
// after one interval.
func (s *Scheduler) Every(id string, interval time.Duration, immediate bool, fn TaskFunc) {
	ctx, ok := s.register(id)
	if !ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if !immediate {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				s.logger.Debug().Str("task", id).Msg("interval task stopped")
				return
			}
		}

		for {
			fn(ctx)

			select {
			case <-time.After(interval):
			case <-ctx.Done():
				s.logger.Debug().Str("task", id).Msg("interval task stopped")
				return
			}
		}
	}()

	s.logger.Info().Str("task", id).Dur("interval", interval).Msg("interval task registered")
}

// DailyAtUTC runs fn once a day at hour:minute UTC. The next fire
// time is recomputed after every run, so long runs do not drift the
// schedule.
func (s *Scheduler) DailyAtUTC(id string, hour, minute int, fn TaskFunc) {
	ctx, ok := s.register(id)
	if !ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			wait := time.Until(nextDailyUTC(s.now(), hour, minute))
			timer := time.NewTimer(wait)

			select {
			case <-timer.C:
				fn(ctx)
			case <-ctx.Done():
				timer.Stop()
				s.logger.Debug().Str("task", id).Msg("daily task stopped")
				return
			}
		}
	}()

	s.logger.Info().Str("task", id).Int("hour", hour).Int("minute", minute).Msg("daily task registered")
}

// register reserves id, replacing any previous task. It returns false
// when the scheduler is already stopped.
func (s *Scheduler) register(id string) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn().Str("task", id).Msg("scheduler stopped, task ignored")
		return nil, false
	}

	if old, ok := s.tasks[id]; ok {
		old.cancel()
		s.logger.Info().Str("task", id).Msg("replacing existing task")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.tasks[id] = &task{id: id, cancel: cancel}
	return ctx, true
}

// Remove cancels the task with the given id, if any.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.cancel()
		delete(s.tasks, id)
	}
}

// Stop cancels every task and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, t := range s.tasks {
		t.cancel()
	}
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// nextDailyUTC returns the first hour:minute UTC instant strictly
// after now.
func nextDailyUTC(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
