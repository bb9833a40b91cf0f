// Package schedule runs the refresh pipeline on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSpec runs at 00:00 and 12:00.
const DefaultSpec = "0 0 */12 * * *"

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one pipeline refresh.
type Job func(ctx context.Context) error

// Scheduler triggers a job on a six-field cron spec. Overlapping runs are skipped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     Job
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	lastErr error
	runs    int
}

// New validates spec and creates a scheduler.
func New(spec string, job Job) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	s := &Scheduler{spec: spec, job: job, timeout: time.Hour, logger: zerolog.Nop()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// WithTimeout bounds each run.
func (s *Scheduler) WithTimeout(d time.Duration) *Scheduler {
	s.timeout = d
	return s
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(l zerolog.Logger) *Scheduler {
	s.logger = l
	return s
}

// Start schedules the job. With runNow it also runs once immediately.
func (s *Scheduler) Start(runNow bool) error {
	logger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	if runNow {
		go s.run()
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Msg("refresh scheduled")
	return nil
}

// Stop cancels any in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunNow runs the job synchronously.
func (s *Scheduler) RunNow() error {
	s.run()
	return s.LastError()
}

// LastError returns the error of the most recent run.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Runs returns how many runs have completed.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.job(ctx)

	s.mu.Lock()
	s.lastErr = err
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled refresh failed")
		return
	}
	s.logger.Info().Dur("duration", time.Since(start)).Msg("scheduled refresh complete")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
