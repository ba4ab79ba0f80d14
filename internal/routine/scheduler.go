// Copyright (C) 2025  Fabian Weidner <fweidner@mailbox.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package routine schedules recurring fetch cycles. Every routine is
// supervised by its own goroutine, routines of different mailboxes run in
// parallel while cycles for the same mailbox mutually exclude.
package routine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/archive"
	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

func init() {
	viper.SetDefault("routines.restartseconds", 60)
}

var (
	// ErrMailboxBusy is returned when a run is requested for a mailbox that
	// already has a cycle in flight.
	ErrMailboxBusy = errors.New("routine: mailbox busy")

	// ErrRoutineUnknown is returned when no routine with the uuid exists.
	ErrRoutineUnknown = errors.New("routine: unknown routine")
)

// CycleRunner runs one fetch cycle for a mailbox. It is implemented by the
// archive service.
type CycleRunner interface {
	RunFetchCycle(
		ctx context.Context,
		mailboxID int64,
		crit criterion.Criterion,
		argument string,
	) archive.CycleOutcome
}

// Scheduler owns one supervision goroutine per started routine.
type Scheduler struct {
	conn       database.Conn
	routineDao database.RoutineDao
	runner     CycleRunner

	// interval computes the tick duration of a routine. Overridable to keep
	// tests fast.
	interval func(*models.RoutineEntity) time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	busy  *locks
}

// NewScheduler creates a Scheduler. Start must be called before routines can
// be scheduled.
func NewScheduler(
	conn database.Conn,
	routineDao database.RoutineDao,
	runner CycleRunner,
) *Scheduler {
	return &Scheduler{
		conn:       conn,
		routineDao: routineDao,
		runner:     runner,
		interval:   routineInterval,
		tasks:      make(map[string]context.CancelFunc),
		busy:       newLocks(),
	}
}

func routineInterval(routine *models.RoutineEntity) time.Duration {
	return routine.IntervalUnit.Duration(routine.IntervalMultiplier)
}

// Start loads all persisted routines and schedules them. Running flags left
// over from an unclean shutdown are cleared first.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	routines, err := s.routineDao.FindAll(ctx, s.conn)
	if err != nil {
		return err
	}

	for i := range routines {
		routine := routines[i]

		if routine.Running {
			if err := s.routineDao.UpdateRunning(ctx, s.conn,
				routine.ID, false); err != nil {
				return err
			}
		}

		s.schedule(&routine)
	}

	log.Info().
		Int("routines", len(routines)).
		Msg("scheduler started")

	return nil
}

// Stop cancels all routines and waits for in-flight cycles to reach their
// next message boundary.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	log.Info().Msg("scheduler stopped")
}

// CreateRoutine validates, persists and schedules a new routine. Invalid
// criterion configurations are rejected here and never reach a cycle.
func (s *Scheduler) CreateRoutine(
	ctx context.Context,
	routine *models.RoutineEntity,
) error {
	if err := criterion.Validate(routine.Criterion, routine.CriterionArg); err != nil {
		return err
	}

	if routine.UUID == "" {
		routine.UUID = uuid.NewString()
	}

	if routine.RestartSeconds <= 0 {
		routine.RestartSeconds = viper.GetInt64("routines.restartseconds")
	}

	if err := s.routineDao.Insert(ctx, s.conn, routine); err != nil {
		return err
	}

	s.schedule(routine)
	return nil
}

// DeleteRoutine stops and deletes a routine.
func (s *Scheduler) DeleteRoutine(
	ctx context.Context,
	routine *models.RoutineEntity,
) error {
	s.StopRoutine(routine.UUID)
	return s.routineDao.Delete(ctx, s.conn, routine)
}

// StartRoutine schedules an already persisted routine. Scheduling an already
// started routine is a no-op.
func (s *Scheduler) StartRoutine(routine *models.RoutineEntity) {
	s.schedule(routine)
}

// StopRoutine cancels the supervision of a routine. An in-flight cycle
// finishes its current message first.
func (s *Scheduler) StopRoutine(routineUUID string) {
	s.mu.Lock()
	cancel, ok := s.tasks[routineUUID]
	delete(s.tasks, routineUUID)
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

// TestRoutine runs a single cycle immediately. The regular schedule of the
// routine is not affected.
func (s *Scheduler) TestRoutine(
	ctx context.Context,
	routineUUID string,
) archive.CycleOutcome {
	routine, err := s.routineDao.FindByUUID(ctx, s.conn, routineUUID)
	if err != nil {
		if database.IsErrNoRows(err) {
			err = fmt.Errorf("%w: %q", ErrRoutineUnknown, routineUUID)
		}

		return archive.CycleOutcome{Err: err}
	}

	return s.runOnce(log.WithRoutine(ctx, routine.UUID), routine)
}

func (s *Scheduler) schedule(routine *models.RoutineEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	if _, exists := s.tasks[routine.UUID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.tasks[routine.UUID] = cancel

	s.wg.Add(1)

	go func(routine models.RoutineEntity) {
		defer s.wg.Done()
		s.supervise(ctx, &routine)
	}(*routine)
}

// supervise drives the schedule of one routine. The first run happens one
// full interval after scheduling, crashes are followed by a recovery sleep
// before the routine returns to its schedule.
func (s *Scheduler) supervise(ctx context.Context, routine *models.RoutineEntity) {
	ctx = log.WithRoutine(ctx, routine.UUID)

	interval := s.interval(routine)
	timer := time.NewTimer(interval)

	defer timer.Stop()

	log.DebugContext(ctx).
		Dur("interval", interval).
		Msg("scheduled routine")

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// The next tick counts from the start of this run, not its end.
		timer.Reset(interval)

		outcome := s.runOnce(ctx, routine)

		if outcome.Err != nil && !errors.Is(outcome.Err, context.Canceled) {
			log.ErrorContext(ctx).
				Err(outcome.Err).
				Msg("routine crashed, entering recovery")

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartDelay(routine)):
			}
		}
	}
}

func (s *Scheduler) restartDelay(routine *models.RoutineEntity) time.Duration {
	seconds := routine.RestartSeconds
	if seconds <= 0 {
		seconds = viper.GetInt64("routines.restartseconds")
	}

	return time.Duration(seconds) * time.Second
}

// runOnce executes one cycle under the mailbox lock and records the result
// on the routine. Mailbox and account health are handled by the runner.
func (s *Scheduler) runOnce(
	ctx context.Context,
	routine *models.RoutineEntity,
) archive.CycleOutcome {
	if !s.busy.lock(routine.MailboxID) {
		log.DebugContext(ctx).Msg("mailbox busy, skipping run")
		return archive.CycleOutcome{Err: ErrMailboxBusy}
	}

	defer s.busy.unlock(routine.MailboxID)

	if err := s.routineDao.UpdateRunning(ctx, s.conn, routine.ID, true); err != nil {
		return archive.CycleOutcome{Err: err}
	}

	defer func() {
		if err := s.routineDao.UpdateRunning(ctx, s.conn, routine.ID, false); err != nil {
			log.ErrorContext(ctx).
				Err(err).
				Msg("could not clear running flag")
		}
	}()

	outcome := s.runner.RunFetchCycle(ctx, routine.MailboxID,
		routine.Criterion, routine.CriterionArg)

	if err := s.routineDao.TouchLastRun(ctx, s.conn, routine.ID,
		time.Now().Unix()); err != nil {
		log.ErrorContext(ctx).
			Err(err).
			Msg("could not record last run")
	}

	health, lastError := models.HealthGood, ""
	if outcome.Err != nil {
		health, lastError = models.HealthBad, outcome.Err.Error()
	}

	if err := s.routineDao.UpdateHealth(ctx, s.conn, routine.ID,
		health, lastError); err != nil {
		log.ErrorContext(ctx).
			Err(err).
			Msg("could not update routine health")
	}

	return outcome
}
