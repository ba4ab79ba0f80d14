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

package routine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"

	"github.com/fweidner/postarchiv/internal/archive"
	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/models"
)

// fakeRunner counts cycle executions and can block to simulate long cycles.
type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	starts   []time.Time
	outcomes []archive.CycleOutcome
	block    chan struct{}
	delay    time.Duration
}

func (r *fakeRunner) RunFetchCycle(
	_ context.Context,
	_ int64,
	_ criterion.Criterion,
	_ string,
) archive.CycleOutcome {
	r.mu.Lock()
	r.starts = append(r.starts, time.Now())
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	if len(r.outcomes) > 0 {
		outcome := r.outcomes[0]
		r.outcomes = r.outcomes[1:]

		return outcome
	}

	return archive.CycleOutcome{Processed: 1}
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

func (r *fakeRunner) startTimes() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Time(nil), r.starts...)
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

type SchedulerTestSuite struct {
	suite.Suite

	ctx        context.Context
	conn       database.Conn
	routineDao database.RoutineDao
	runner     *fakeRunner
	scheduler  *Scheduler

	mailboxID int64
}

func (s *SchedulerTestSuite) SetupTest() {
	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")

	conn, err := database.OpenConnection()
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.conn = conn
	s.routineDao = database.NewRoutineDao()
	s.runner = &fakeRunner{}
	s.scheduler = NewScheduler(conn, s.routineDao, s.runner)

	account := models.AccountEntity{
		Name:     "test",
		Protocol: models.ProtocolIMAP,
		Host:     "mail.example.com",
		Username: "user",
		Password: "secret",
		Health:   models.HealthUnknown,
	}
	s.Require().NoError(database.NewAccountDao().Insert(s.ctx, conn, &account))

	mailbox := models.MailboxEntity{
		AccountID: account.ID,
		Name:      "INBOX",
		Kind:      models.KindInbox,
		Health:    models.HealthUnknown,
	}
	s.Require().NoError(database.NewMailboxDao().Insert(s.ctx, conn, &mailbox))

	s.mailboxID = mailbox.ID
}

func (s *SchedulerTestSuite) TearDownTest() {
	s.scheduler.Stop()
	s.Require().NoError(s.conn.Close())
}

func (s *SchedulerTestSuite) newRoutine(crit criterion.Criterion, argument string) *models.RoutineEntity {
	return &models.RoutineEntity{
		MailboxID:          s.mailboxID,
		Criterion:          crit,
		CriterionArg:       argument,
		IntervalUnit:       models.UnitHour,
		IntervalMultiplier: 1,
		Health:             models.HealthUnknown,
	}
}

func (s *SchedulerTestSuite) TestCreateRoutineValidates() {
	s.Assert().Error(s.scheduler.CreateRoutine(s.ctx,
		s.newRoutine(criterion.Criterion("BOGUS"), "")))
	s.Assert().Error(s.scheduler.CreateRoutine(s.ctx,
		s.newRoutine(criterion.Larger, "huge")))
	s.Assert().Error(s.scheduler.CreateRoutine(s.ctx,
		s.newRoutine(criterion.SentSince, "31.01.2024")))

	routine := s.newRoutine(criterion.SentSince, "2024-01-31")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	s.Assert().NotEmpty(routine.UUID)
	s.Assert().EqualValues(60, routine.RestartSeconds)
}

func (s *SchedulerTestSuite) TestFirstRunWaitsOneInterval() {
	routine := s.newRoutine(criterion.All, "")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	// The interval is an hour, so nothing may run right after creation.
	time.Sleep(50 * time.Millisecond)
	s.Assert().Zero(s.runner.callCount())
}

func (s *SchedulerTestSuite) TestScheduledRunFiresAfterInterval() {
	s.scheduler.interval = func(*models.RoutineEntity) time.Duration {
		return 10 * time.Millisecond
	}

	routine := s.newRoutine(criterion.All, "")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	s.Require().Eventually(func() bool {
		return s.runner.callCount() >= 2
	}, time.Second, 5*time.Millisecond)

	s.Require().Eventually(func() bool {
		persisted, err := s.routineDao.FindByUUID(s.ctx, s.conn, routine.UUID)

		return err == nil &&
			persisted.Health == models.HealthGood &&
			persisted.LastRunAt.Valid &&
			!persisted.Running
	}, time.Second, 5*time.Millisecond)
}

func (s *SchedulerTestSuite) TestNextTickCountsFromRunStart() {
	interval := 100 * time.Millisecond

	s.scheduler.interval = func(*models.RoutineEntity) time.Duration {
		return interval
	}
	s.runner.delay = 150 * time.Millisecond

	routine := s.newRoutine(criterion.All, "")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	s.Require().Eventually(func() bool {
		return s.runner.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	starts := s.runner.startTimes()
	s.Require().GreaterOrEqual(len(starts), 2)

	// A run longer than the interval is followed by the next one right
	// away, not a full interval after it ends.
	s.Assert().Less(starts[1].Sub(starts[0]), interval+s.runner.delay)
}

func (s *SchedulerTestSuite) TestTestRoutineRunsImmediately() {
	routine := s.newRoutine(criterion.All, "")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	outcome := s.scheduler.TestRoutine(s.ctx, routine.UUID)

	s.Require().NoError(outcome.Err)
	s.Assert().Equal(1, outcome.Processed)
	s.Assert().Equal(1, s.runner.callCount())
}

func (s *SchedulerTestSuite) TestTestRoutineUnknown() {
	outcome := s.scheduler.TestRoutine(s.ctx, "no-such-uuid")
	s.Assert().ErrorIs(outcome.Err, ErrRoutineUnknown)
}

func (s *SchedulerTestSuite) TestMailboxMutualExclusion() {
	s.runner.block = make(chan struct{})

	routine := s.newRoutine(criterion.All, "")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	done := make(chan archive.CycleOutcome, 1)

	go func() {
		done <- s.scheduler.TestRoutine(s.ctx, routine.UUID)
	}()

	// Wait for the first run to hold the mailbox lock.
	s.Require().Eventually(func() bool {
		s.scheduler.busy.mu.Lock()
		defer s.scheduler.busy.mu.Unlock()

		return s.scheduler.busy.entries[s.mailboxID]
	}, time.Second, time.Millisecond)

	concurrent := s.scheduler.TestRoutine(s.ctx, routine.UUID)
	s.Assert().ErrorIs(concurrent.Err, ErrMailboxBusy)

	close(s.runner.block)

	outcome := <-done
	s.Assert().NoError(outcome.Err)
}

func (s *SchedulerTestSuite) TestCrashRecovery() {
	s.scheduler.interval = func(*models.RoutineEntity) time.Duration {
		return 10 * time.Millisecond
	}

	s.runner.outcomes = []archive.CycleOutcome{
		{Err: context.DeadlineExceeded},
	}

	routine := s.newRoutine(criterion.All, "")
	routine.RestartSeconds = 1
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	// First run fails and is recorded as the last error.
	s.Require().Eventually(func() bool {
		persisted, err := s.routineDao.FindByUUID(s.ctx, s.conn, routine.UUID)
		return err == nil && persisted.Health == models.HealthBad
	}, time.Second, 5*time.Millisecond)

	persisted, err := s.routineDao.FindByUUID(s.ctx, s.conn, routine.UUID)
	s.Require().NoError(err)
	s.Assert().Equal(context.DeadlineExceeded.Error(), persisted.LastError)

	// After the recovery sleep the routine returns to its schedule.
	s.Require().Eventually(func() bool {
		persisted, err := s.routineDao.FindByUUID(s.ctx, s.conn, routine.UUID)
		return err == nil && persisted.Health == models.HealthGood
	}, 3*time.Second, 10*time.Millisecond)
}

func (s *SchedulerTestSuite) TestStopRoutine() {
	s.scheduler.interval = func(*models.RoutineEntity) time.Duration {
		return 10 * time.Millisecond
	}

	routine := s.newRoutine(criterion.All, "")
	s.Require().NoError(s.scheduler.CreateRoutine(s.ctx, routine))

	s.Require().Eventually(func() bool {
		return s.runner.callCount() >= 1
	}, time.Second, 5*time.Millisecond)

	s.scheduler.StopRoutine(routine.UUID)

	// No further runs once stopped.
	calls := s.runner.callCount()
	time.Sleep(50 * time.Millisecond)
	s.Assert().LessOrEqual(s.runner.callCount(), calls+1)
}