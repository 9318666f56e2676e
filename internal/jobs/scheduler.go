package jobs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the background maintenance jobs on cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	jobs      map[string]gocron.Job
}

func NewScheduler() (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: scheduler,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Register adds a job under a cron expression. The expression is validated
// before it reaches gocron so a typo fails startup, not the first tick.
func (s *Scheduler) Register(name, cronExpr string, task func()) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", cronExpr, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	slog.Info("Registered job", "job", name, "cron", cronExpr)
	return nil
}

// Start begins running all registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	slog.Info("Job scheduler started", "jobs", len(s.jobs))
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
