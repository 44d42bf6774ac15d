package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/internal/metrics"
	"github.com/vulnwarden/api/pkg/logger"
)

// Job is one schedulable unit of pipeline work.
type Job interface {
	Run(ctx context.Context) error
}

// Scheduler drives the sync pipeline on cron schedules. Each job carries
// an in-flight guard so a slow run is skipped rather than overlapped.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.JobsConfig
	logger *logger.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg config.JobsConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		cfg:    cfg,
		logger: log.With("component", "scheduler"),
	}
}

// Register adds a job under the given name and schedule. Disabled jobs
// are logged and skipped.
func (s *Scheduler) Register(name string, jc config.JobConfig, job Job) error {
	if !jc.Enabled {
		s.logger.Info("job disabled", "job", name)
		return nil
	}

	var running atomic.Bool
	_, err := s.cron.AddFunc(jc.Cron, func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Warn("previous run still in flight, skipping", "job", name)
			metrics.JobRunsTotal.WithLabelValues(name, "skipped").Inc()
			return
		}
		defer running.Store(false)

		s.runJob(name, job)
	})
	if err != nil {
		return err
	}

	s.logger.Info("job registered", "job", name, "cron", jc.Cron)
	return nil
}

func (s *Scheduler) runJob(name string, job Job) {
	start := time.Now()
	err := job.Run(context.Background())
	metrics.JobRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("job run failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	metrics.JobRunsTotal.WithLabelValues(name, "ok").Inc()
	s.logger.Debug("job run complete", "job", name, "duration", time.Since(start))
}

// RunNow triggers one job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string, job Job) {
	go s.runJob(name, job)
}

// Start begins schedule evaluation.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for in-flight runs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
