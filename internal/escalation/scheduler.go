package escalation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/observability"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
)

// Handler re-validates a fired check against the live appeal and acts on it.
// fired is false when the appeal moved on and the check became a no-op.
type Handler interface {
	Escalate(ctx context.Context, appealID int64, expectedOwner string, expectedVersion int64) (fired bool, err error)
	AlertDelegationIdle(ctx context.Context, appealID int64, expectedOwner string, armedAt time.Time) (fired bool, err error)
}

// RunResult summarizes one polling pass.
type RunResult struct {
	Leased  int
	Fired   int
	Skipped int
	Retried int
	Failed  int
}

// Scheduler polls the durable check table and runs due checks.
type Scheduler struct {
	checks   repository.CheckStore
	handler  Handler
	cfg      config.EscalationConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewScheduler builds a scheduler. now may be nil.
func NewScheduler(checks repository.CheckStore, handler Handler, cfg config.EscalationConfig, logger *zap.Logger, metrics *observability.Metrics, now func() time.Time) *Scheduler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Minute
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &Scheduler{
		checks:   checks,
		handler:  handler,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled or Stop is called.
// The first pass runs immediately so checks that came due while the process
// was down fire on startup.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("starting escalation scheduler",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("max_attempts", s.cfg.MaxAttempts))

	observability.SafeGo(s.logger, "escalation-scheduler", func() {
		defer close(s.done)
		s.poll(ctx)

		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("escalation scheduler stopped due to context cancellation")
				return
			case <-s.stopChan:
				s.logger.Info("escalation scheduler stopped")
				return
			case <-ticker.C:
				s.poll(ctx)
			}
		}
	})
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	// drain full batches so a backlog after downtime clears in one tick
	for {
		result, err := s.RunDue(ctx)
		if err != nil {
			s.logger.Error("escalation pass failed", zap.Error(err))
			return
		}
		if result.Leased > 0 {
			s.logger.Info("escalation pass",
				zap.Int("leased", result.Leased),
				zap.Int("fired", result.Fired),
				zap.Int("skipped", result.Skipped),
				zap.Int("retried", result.Retried),
				zap.Int("failed", result.Failed))
		}
		if result.Leased < s.cfg.BatchSize || ctx.Err() != nil {
			return
		}
	}
}

// RunDue leases the due checks and runs each one in its own goroutine,
// returning once all of them settled.
func (s *Scheduler) RunDue(ctx context.Context) (RunResult, error) {
	now := s.now()
	due, err := s.checks.LeaseDueChecks(ctx, now, s.cfg.BatchSize, s.cfg.Lease)
	if err != nil {
		return RunResult{}, err
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = RunResult{Leased: len(due)}
	)
	for _, check := range due {
		wg.Add(1)
		go func(check domain.EscalationCheck) {
			defer wg.Done()
			outcome := s.runCheck(ctx, check)
			s.metrics.RecordCheck(string(check.Kind), outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeFired:
				result.Fired++
			case outcomeSkipped:
				result.Skipped++
			case outcomeRetried:
				result.Retried++
			case outcomeFailed:
				result.Failed++
			}
		}(check)
	}
	wg.Wait()
	return result, nil
}

const (
	outcomeFired   = "fired"
	outcomeSkipped = "skipped"
	outcomeRetried = "retried"
	outcomeFailed  = "failed"
)

func (s *Scheduler) runCheck(ctx context.Context, check domain.EscalationCheck) (outcome string) {
	log := s.logger.With(
		zap.String("check_id", check.ID),
		zap.String("kind", string(check.Kind)),
		zap.Int64("appeal_id", check.AppealID),
		zap.Int("attempt", check.Attempts))

	defer func() {
		if r := recover(); r != nil {
			log.Error("escalation check panicked", zap.Any("panic", r))
			outcome = s.retryOrFail(ctx, log, check, "panic during check")
		}
	}()

	var (
		fired bool
		err   error
	)
	switch check.Kind {
	case domain.CheckOverdue:
		fired, err = s.handler.Escalate(ctx, check.AppealID, check.ExpectedOwner, check.ExpectedVersion)
	case domain.CheckDelegateIdle:
		fired, err = s.handler.AlertDelegationIdle(ctx, check.AppealID, check.ExpectedOwner, check.ArmedAt)
	default:
		log.Error("unknown escalation check kind")
		if failErr := s.checks.FailCheck(ctx, check.ID, s.now(), "unknown check kind"); failErr != nil {
			log.Error("mark check failed", zap.Error(failErr))
		}
		return outcomeFailed
	}
	if err != nil {
		log.Warn("escalation check errored", zap.Error(err))
		return s.retryOrFail(ctx, log, check, err.Error())
	}

	if completeErr := s.checks.CompleteCheck(ctx, check.ID, s.now()); completeErr != nil {
		// the lease expires and the check runs again; handlers are idempotent
		log.Error("mark check done", zap.Error(completeErr))
	}
	if fired {
		log.Info("escalation check fired")
		return outcomeFired
	}
	log.Debug("escalation check superseded")
	return outcomeSkipped
}

func (s *Scheduler) retryOrFail(ctx context.Context, log *zap.Logger, check domain.EscalationCheck, cause string) string {
	now := s.now()
	if check.Attempts >= s.cfg.MaxAttempts {
		log.Error("escalation check exhausted retries", zap.String("cause", cause))
		if err := s.checks.FailCheck(ctx, check.ID, now, cause); err != nil {
			log.Error("mark check failed", zap.Error(err))
		}
		return outcomeFailed
	}
	next := now.Add(s.cfg.RetryDelay * time.Duration(check.Attempts))
	if err := s.checks.RetryCheck(ctx, check.ID, next, cause); err != nil {
		log.Error("reschedule check", zap.Error(err))
	}
	return outcomeRetried
}
