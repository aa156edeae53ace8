package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler manages recurring digest jobs with robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	entries  map[string]cron.EntryID // job name -> entry ID
	executor *Executor
	logger   zerolog.Logger
	mu       sync.RWMutex
	running  bool

	// ctx is cancelled by Stop so in-flight retries give up
	ctx    context.Context
	cancel context.CancelFunc

	// Track active executions for graceful shutdown
	wg sync.WaitGroup

	// Track currently executing jobs to prevent overlapping executions
	executing sync.Map // job name -> time.Time (start time)
}

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	// Location for time zone handling
	Location *time.Location
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewScheduler creates a new scheduler.
func NewScheduler(executor *Executor, logger zerolog.Logger, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = &SchedulerConfig{}
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	// seconds field and timezone support
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(config.Location),
		cron.WithLogger(cronLogger{log: logger}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]*Job),
		entries:  make(map[string]cron.EntryID),
		executor: executor,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddJob validates job and registers it.
func (s *Scheduler) AddJob(job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}

	j := job
	entryID, err := s.cron.AddFunc(normalizeSchedule(j.Schedule), func() {
		s.executeJob(&j, time.Now())
	})
	if err != nil {
		return &InvalidScheduleError{Schedule: j.Schedule, Message: err.Error()}
	}

	s.jobs[j.Name] = &j
	s.entries[j.Name] = entryID
	s.logger.Info().Str("job", j.Name).Str("schedule", j.Schedule).Dur("span", j.Span).Dur("lag", j.Lag).Msg("job added")
	return nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.cron.Remove(entryID)
	delete(s.entries, name)
	delete(s.jobs, name)

	s.logger.Info().Str("job", name).Msg("job removed")
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("registered_jobs", len(s.entries)).Msg("scheduler started")
}

// Stop stops the scheduler, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return
	}
	ctx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow executes a job immediately as if it fired at now.
func (s *Scheduler) RunNow(ctx context.Context, name string, now time.Time) (*ExecuteResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	if _, running := s.executing.LoadOrStore(name, time.Now()); running {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer s.executing.Delete(name)

	s.wg.Add(1)
	defer s.wg.Done()

	result := s.executor.Execute(ctx, job, now)
	return result, result.Error
}

// NextRun returns the next scheduled run time for a job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryID, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Jobs returns the registered jobs sorted by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// executeJob wraps job execution with tracking. A firing that arrives
// while the previous one is still running is skipped.
func (s *Scheduler) executeJob(job *Job, fired time.Time) {
	if prev, loaded := s.executing.LoadOrStore(job.Name, fired); loaded {
		s.logger.Warn().
			Str("job", job.Name).
			Time("previous_start", prev.(time.Time)).
			Msg("skipping overlapping execution, previous run still active")
		return
	}
	defer s.executing.Delete(job.Name)

	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Info().Str("job", job.Name).Time("fired", fired).Msg("executing scheduled digest")

	result := s.executor.Execute(s.ctx, job, fired)
	if result.Error != nil {
		s.logger.Error().
			Err(result.Error).
			Str("job", job.Name).
			Int("retries", result.Retries).
			Msg("scheduled digest failed")
		return
	}

	ev := s.logger.Info().Str("job", job.Name).Dur("took", result.Duration)
	if result.Result != nil {
		ev = ev.Str("run_id", result.Result.RunID).Str("status", result.Result.Status)
	}
	ev.Msg("scheduled digest completed")
}
