package worker

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"ashkicharm/backend/internal/domain"
)

const rolloverTimeout = 30 * time.Second

// RolloverFunc opens the income week containing now.
type RolloverFunc func(ctx context.Context, now time.Time) (*domain.WorkerIncome, error)

// Scheduler runs the weekly income rollover every Monday at 00:00 in the
// shop's timezone.
type Scheduler struct {
	scheduler *gocron.Scheduler
	location  *time.Location
	rollover  RolloverFunc
	now       func() time.Time
}

func New(location *time.Location, rollover RolloverFunc) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	scheduler := gocron.NewScheduler(location)
	scheduler.WaitForScheduleAll()
	return &Scheduler{
		scheduler: scheduler,
		location:  location,
		rollover:  rollover,
		now:       time.Now,
	}
}

// Start runs the rollover once so a server started mid-week has its current
// row, then schedules the weekly job in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.run(ctx)

	_, err := s.scheduler.Every(1).Monday().At("00:00").Do(func() {
		s.run(ctx)
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	log.Info().Str("timezone", s.location.String()).Msg("income rollover scheduled for Mondays 00:00")
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, rolloverTimeout)
	defer cancel()

	now := s.now().In(s.location)
	row, err := s.rollover(runCtx, now)
	if err != nil {
		log.Error().Err(err).Msg("income rollover failed")
		return
	}
	log.Info().
		Time("week_start", row.WeekStart).
		Str("income", row.Income.String()).
		Msg("income week rolled over")
}
