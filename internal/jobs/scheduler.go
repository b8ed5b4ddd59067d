package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled background work
type Job interface {
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on cron expressions
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a UTC-based job scheduler
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create job scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Register validates the cron expression and schedules the job
func (s *Scheduler) Register(name, cronExpr string, job Job) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", cronExpr, name, err)
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := job.Run(ctx); err != nil {
				log.Printf("⚠️ [SCHEDULER] Job %s failed: %v", name, err)
			}
		}),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	log.Printf("✅ [SCHEDULER] Registered job %s (%s)", name, cronExpr)
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Println("🚀 [SCHEDULER] Job scheduler started")
}

// Stop shuts the scheduler down, waiting for running jobs
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
