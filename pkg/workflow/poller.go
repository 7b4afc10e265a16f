package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flows/pkg/lock"
	"github.com/dukex/flows/pkg/metrics"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/otelhelper"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPageSize = 10
	DefaultLease    = 5 * time.Minute
	DefaultSchedule = "@every 1m"

	pollLockKey = "poller"
)

// RunExecutor advances one claimed run. *Executor is the production implementation.
type RunExecutor interface {
	Execute(ctx context.Context, run *models.WorkflowRun) error
}

// Stats summarizes one ProcessDue call.
type Stats struct {
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Poller claims due runs in bounded batches and hands them to a RunExecutor.
type Poller struct {
	logger   *slog.Logger
	runs     persistence.RunRepository
	executor RunExecutor

	owner    string
	pageSize int
	leaseFor time.Duration
	schedule string
	locker   lock.Locker
	metrics  *metrics.Collector
	tracer   trace.Tracer
	clock    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

type PollerOption func(*Poller)

func WithPageSize(size int) PollerOption {
	return func(p *Poller) {
		if size > 0 {
			p.pageSize = size
		}
	}
}

// WithLeaseDuration sets how long a claimed run stays invisible to other pollers.
func WithLeaseDuration(lease time.Duration) PollerOption {
	return func(p *Poller) {
		if lease > 0 {
			p.leaseFor = lease
		}
	}
}

// WithSchedule sets the cron spec used by Start.
func WithSchedule(spec string) PollerOption {
	return func(p *Poller) {
		if spec != "" {
			p.schedule = spec
		}
	}
}

// WithLocker serializes scheduled passes across processes.
func WithLocker(locker lock.Locker) PollerOption {
	return func(p *Poller) { p.locker = locker }
}

// WithOwner names the poller in run leases.
func WithOwner(owner string) PollerOption {
	return func(p *Poller) {
		if owner != "" {
			p.owner = owner
		}
	}
}

func WithPollerMetrics(collector *metrics.Collector) PollerOption {
	return func(p *Poller) { p.metrics = collector }
}

func WithPollerTracer(tracer trace.Tracer) PollerOption {
	return func(p *Poller) { p.tracer = tracer }
}

func WithPollerClock(clock func() time.Time) PollerOption {
	return func(p *Poller) { p.clock = clock }
}

func NewPoller(logger *slog.Logger, runs persistence.RunRepository, executor RunExecutor, opts ...PollerOption) *Poller {
	p := &Poller{
		runs:     runs,
		executor: executor,
		owner:    "poller-" + uuid.NewString(),
		pageSize: DefaultPageSize,
		leaseFor: DefaultLease,
		schedule: DefaultSchedule,
		locker:   lock.NewLocal(),
		tracer:   otelhelper.NoopTracer(),
		clock:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = logger.With("module", "poller", "poller_id", p.owner)

	return p
}

// ProcessDue advances every due run. Each batch claims one run more than the page size to
// learn whether another batch is needed; the extra run is released. Runs handled earlier
// in the same call are never claimed again, so a run that keeps failing is retried on the
// next call rather than in a loop.
func (p *Poller) ProcessDue(ctx context.Context) (Stats, error) {
	var (
		stats   Stats
		errs    []error
		handled []string
	)

	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "poller.process_due",
		attribute.String(otelhelper.PollerIDKey, p.owner),
	)
	defer span.End()

	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}

		runs, err := p.runs.ClaimDue(ctx, persistence.ClaimOptions{
			Now:        p.clock(),
			Limit:      p.pageSize + 1,
			Owner:      p.owner,
			LeaseFor:   p.leaseFor,
			ExcludeIDs: handled,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to claim due runs: %w", err))

			break
		}

		if len(runs) == 0 {
			break
		}

		more := len(runs) > p.pageSize
		if more {
			p.releaseAll(ctx, runs[p.pageSize:])
			runs = runs[:p.pageSize]
		}

		stats.Batches++

		p.logger.DebugContext(ctx, "Processing batch", "size", len(runs), "more", more)

		for i, run := range runs {
			if err := ctx.Err(); err != nil {
				p.releaseAll(ctx, runs[i:])
				errs = append(errs, err)

				break
			}

			handled = append(handled, run.ID)

			// The claim and the execution may straddle a clock tick or a concurrent update.
			if run.RunCurrentActionAt.After(p.clock()) {
				p.releaseAll(ctx, []*models.WorkflowRun{run})
				stats.Skipped++

				continue
			}

			stats.Processed++

			err := p.executor.Execute(ctx, run)
			if err != nil {
				stats.Failed++

				p.logger.ErrorContext(ctx, "Run execution failed", "run_id", run.ID, "error", err)
				errs = append(errs, err)
			}
		}

		if !more || ctx.Err() != nil {
			break
		}
	}

	span.SetAttributes(attribute.Int(otelhelper.BatchSizeKey, stats.Processed))

	if p.metrics != nil {
		p.metrics.ObservePass(stats.Batches, stats.Processed+stats.Skipped, stats.Skipped, stats.Failed, time.Since(started))
	}

	err := errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	p.logger.InfoContext(ctx, "Poll pass finished",
		"batches", stats.Batches,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	return stats, err
}

func (p *Poller) releaseAll(ctx context.Context, runs []*models.WorkflowRun) {
	// Releasing must survive a cancelled pass context.
	ctx = context.WithoutCancel(ctx)

	for _, run := range runs {
		err := p.runs.Release(ctx, run.ID, p.owner)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to release run", "run_id", run.ID, "error", err)
		}
	}
}

// Tick runs one pass while holding the poller lock. It returns lock.ErrNotAcquired when
// another process is polling.
func (p *Poller) Tick(ctx context.Context) (Stats, error) {
	release, err := p.locker.Acquire(ctx, pollLockKey, p.leaseFor)
	if err != nil {
		return Stats{}, err
	}

	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.ErrorContext(ctx, "Failed to release poller lock", "error", err)
		}
	}()

	return p.ProcessDue(ctx)
}

// Start schedules Tick on the configured cron spec until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return errors.New("poller already started")
	}

	cronLog := cronLogger{logger: p.logger}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLog),
		cron.Recover(cronLog),
	))

	_, err := c.AddFunc(p.schedule, func() {
		_, err := p.Tick(ctx)

		switch {
		case errors.Is(err, lock.ErrNotAcquired):
			p.logger.DebugContext(ctx, "Another poller holds the lock, skipping tick")
		case err != nil:
			p.logger.ErrorContext(ctx, "Poll pass finished with errors", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid poller schedule %q: %w", p.schedule, err)
	}

	p.cron = c
	c.Start()

	p.logger.InfoContext(ctx, "Poller started", "schedule", p.schedule, "page_size", p.pageSize)

	return nil
}

// Stop stops scheduling and waits for a running pass to finish.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		p.logger.InfoContext(ctx, "Poller stopped")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Poller stop timed out")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
