// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"habit-wars/utils"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler fires the settlement jobs on their calendar. Every job runs in
// singleton mode, so a slow run is never re-entered.
type Scheduler struct {
	sched      gocron.Scheduler
	settlement *SettlementService
	ctx        context.Context
}

func NewScheduler(settlement *SettlementService, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, settlement: settlement, ctx: context.Background()}

	definitions := []struct {
		name string
		def  gocron.JobDefinition
	}{
		// 00:05 daily: break streaks missed yesterday
		{JobDailyStreaks, gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0)))},
		// Monday 01:00: milestone sweep
		{JobWeeklyMilestones, gocron.WeeklyJob(1, gocron.NewWeekdays(time.Monday), gocron.NewAtTimes(gocron.NewAtTime(1, 0, 0)))},
		// 1st of the month 02:00: settle finished challenges
		{JobMonthlyChallenges, gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(1), gocron.NewAtTimes(gocron.NewAtTime(2, 0, 0)))},
		// hourly: move stale pending wars to expired
		{JobExpireWars, gocron.DurationJob(time.Hour)},
	}

	for _, d := range definitions {
		name := d.name
		if _, err := sched.NewJob(
			d.def,
			gocron.NewTask(func() {
				_ = s.settlement.RunJob(s.ctx, name)
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("register job %s: %w", name, err)
		}
	}

	return s, nil
}

// Start begins firing jobs. ctx is handed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.sched.Start()
	for _, job := range s.sched.Jobs() {
		next, _ := job.NextRun()
		utils.Logger.Info("job_scheduled", zap.String("job", job.Name()), zap.Time("next_run", next))
	}
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
