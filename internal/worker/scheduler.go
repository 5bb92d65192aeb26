package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restock-service/internal/service"
	"restock-service/internal/util"

	"go.uber.org/zap"
)

// ErrSweepLocked is returned when another instance currently holds the sweep lock
var ErrSweepLocked = errors.New("sweep is already running elsewhere")

// Sweep is one periodic batch job
type Sweep interface {
	Name() string
	Run(ctx context.Context) (service.SweepResult, error)
}

// Locker provides a distributed lock. AcquireLock returns an empty token when
// the lock is taken.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// ScheduleConfig holds configuration for a sweep scheduler
type ScheduleConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (c ScheduleConfig) withDefaults() ScheduleConfig {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 9 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.StartupDelay < 0 {
		c.StartupDelay = 0
	}
	return c
}

// Scheduler runs a sweep on a fixed interval. A failed run is retried up to
// MaxAttempts times with a linear backoff; the next tick always starts fresh.
type Scheduler struct {
	sweep     Sweep
	locker    Locker
	config    ScheduleConfig
	logger    *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	runMu     sync.Mutex
}

// NewScheduler creates a new scheduler. locker may be nil for single instance
// deployments.
func NewScheduler(sweep Sweep, locker Locker, config ScheduleConfig) *Scheduler {
	return &Scheduler{
		sweep:  sweep,
		locker: locker,
		config: config.withDefaults(),
		logger: util.ComponentLogger("scheduler").With(zap.String("sweep", sweep.Name())),
		stopCh: make(chan struct{}),
	}
}

// Name returns the name of the scheduled sweep
func (s *Scheduler) Name() string {
	return s.sweep.Name()
}

// Start begins the schedule
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("startup_delay", s.config.StartupDelay))

	go func() {
		select {
		case <-time.After(s.config.StartupDelay):
			s.tick()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stopCh:
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.runWithRetry(ctx); err != nil && !errors.Is(err, ErrSweepLocked) {
		s.logger.Error("Sweep failed", zap.Error(err))
	}
}

// Stop stops the scheduler. An in-flight run is cancelled.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate run and waits for its result
func (s *Scheduler) RunNow(ctx context.Context) (service.SweepResult, error) {
	return s.runWithRetry(ctx)
}

func (s *Scheduler) runWithRetry(ctx context.Context) (service.SweepResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var (
		result service.SweepResult
		err    error
	)
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		result, err = s.runOnce(ctx)
		if err == nil || errors.Is(err, ErrSweepLocked) {
			break
		}
		if attempt == s.config.MaxAttempts {
			break
		}

		backoff := s.config.RetryBackoff * time.Duration(attempt)
		s.logger.Warn("Sweep attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	switch {
	case err == nil:
		util.SweepRunsTotal.WithLabelValues(s.sweep.Name(), "success").Inc()
	case errors.Is(err, ErrSweepLocked):
		util.SweepRunsTotal.WithLabelValues(s.sweep.Name(), "locked").Inc()
	default:
		util.SweepRunsTotal.WithLabelValues(s.sweep.Name(), "failure").Inc()
	}
	return result, err
}

func (s *Scheduler) runOnce(ctx context.Context) (service.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if s.locker != nil {
		key := "sweep:" + s.sweep.Name()
		token, err := s.locker.AcquireLock(ctx, key, s.config.Timeout)
		if err != nil {
			return service.SweepResult{}, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if token == "" {
			s.logger.Info("Sweep lock held by another instance, skipping run")
			return service.SweepResult{Sweep: s.sweep.Name()}, ErrSweepLocked
		}
		defer func() {
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if err := s.locker.ReleaseLock(releaseCtx, key, token); err != nil {
				s.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	return s.sweep.Run(ctx)
}
