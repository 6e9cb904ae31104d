package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/provtrack/pkg/eventbus"
	"github.com/dukex/provtrack/pkg/events"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval         = time.Second
	MinPollInterval             = 100 * time.Millisecond
	DefaultMaxConsecutiveErrors = 5
	DefaultOutageTolerance      = 2 * time.Minute
	DefaultMaxBackoff           = 30 * time.Second
)

var (
	// ErrMalformedStatus is returned when the execution service reports a status outside the lifecycle.
	ErrMalformedStatus = errors.New("malformed execution status")

	// ErrRemoteUnavailable is returned when polls keep failing for longer than the outage tolerance.
	ErrRemoteUnavailable = errors.New("execution service unavailable")
)

// Config tunes polling. An execution is marked failed only after at least
// MaxConsecutiveErrors failed polls spanning at least OutageTolerance. Failed
// polls back off exponentially up to MaxBackoff.
type Config struct {
	PollInterval         time.Duration
	MaxConsecutiveErrors int
	OutageTolerance      time.Duration
	MaxBackoff           time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:         DefaultPollInterval,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		OutageTolerance:      DefaultOutageTolerance,
		MaxBackoff:           DefaultMaxBackoff,
	}
}

// Monitor polls the execution service for one execution at a time and persists
// what it observes.
type Monitor struct {
	executions persistence.ExecutionRepository
	remote     reana.ExecutionService
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger

	interval        time.Duration
	maxErrors       int
	outageTolerance time.Duration
	maxBackoff      time.Duration
	now             func() time.Time
	newID           func() string
}

// NewMonitor creates a monitor. publisher may be nil.
func NewMonitor(
	executions persistence.ExecutionRepository,
	remote reana.ExecutionService,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	config Config,
) *Monitor {
	interval := config.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	interval = max(interval, MinPollInterval)

	maxErrors := config.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxConsecutiveErrors
	}

	tolerance := config.OutageTolerance
	if tolerance < 0 {
		tolerance = 0
	}

	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	maxBackoff = max(maxBackoff, interval)

	return &Monitor{
		executions:      executions,
		remote:          remote,
		publisher:       publisher,
		tracer:          tracer,
		logger:          logger.With("module", "monitor"),
		interval:        interval,
		maxErrors:       maxErrors,
		outageTolerance: tolerance,
		maxBackoff:      maxBackoff,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
	}
}

// run is the state of one monitoring loop.
type run struct {
	execution *models.Execution
	tracker   *Tracker
	open      *models.ExecutionStep
	logger    *slog.Logger
}

// Run polls until the execution reaches a terminal status, ctx is cancelled, or
// the execution service misbehaves. In the last case the execution is marked failed.
// A cancelled run leaves the execution unfinished so it can be resumed.
func (m *Monitor) Run(ctx context.Context, execution *models.Execution) error {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "monitor.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.RemoteIDKey, execution.RemoteID),
	)
	defer span.End()

	err := m.run(ctx, execution)
	if err != nil && !errors.Is(err, context.Canceled) {
		otelhelper.SetError(span, err)

		return err
	}

	otelhelper.SetOK(span)

	return err
}

func (m *Monitor) run(ctx context.Context, execution *models.Execution) error {
	r, err := m.resume(ctx, execution)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "monitoring execution", "status", execution.Status, "step", r.tracker.Current())

	limiter := rate.NewLimiter(rate.Every(m.interval), 1)
	retry := m.newBackoff()
	failures := 0

	var outageStart time.Time

	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("failed to wait for next poll: %w", err)
		}

		observed, err := m.remote.Status(ctx, execution.RemoteID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			now := m.now()
			if failures == 0 {
				outageStart = now
			}

			failures++
			outage := now.Sub(outageStart)
			r.logger.WarnContext(ctx, "failed to poll execution status", "attempt", failures, "outage", outage, "error", err)

			if failures >= m.maxErrors && outage >= m.outageTolerance {
				return m.abort(ctx, r, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err))
			}

			if err := sleep(ctx, retry.NextBackOff()); err != nil {
				return err
			}

			continue
		}

		failures = 0
		retry.Reset()

		if !observed.Status.IsValid() {
			return m.abort(ctx, r, fmt.Errorf("%w: %q", ErrMalformedStatus, observed.RawStatus))
		}

		if err := m.apply(ctx, r, r.tracker.Observe(observed.Status, observed.CurrentStep, m.now())); err != nil {
			return err
		}

		if observed.Status.IsTerminal() {
			return m.finish(ctx, r, observed)
		}

		if observed.Status != execution.Status {
			if err := m.executions.UpdateStatus(ctx, execution.ID, observed.Status); err != nil {
				return fmt.Errorf("failed to update execution status: %w", err)
			}

			r.logger.InfoContext(ctx, "execution status changed", "from", execution.Status, "to", observed.Status)
			execution.Status = observed.Status
		}
	}
}

func (m *Monitor) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.interval
	b.MaxInterval = m.maxBackoff
	b.Reset()

	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resume seeds the tracker with the step left open by a previous run.
func (m *Monitor) resume(ctx context.Context, execution *models.Execution) (*run, error) {
	steps, err := m.executions.Steps(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution steps: %w", err)
	}

	r := &run{
		execution: execution,
		tracker:   NewTracker(),
		logger:    m.logger.With("execution_id", execution.ID, "remote_id", execution.RemoteID),
	}

	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].IsOpen() {
			r.open = steps[i]
			r.tracker = ResumeTracker(steps[i].Name)

			break
		}
	}

	return r, nil
}

// finish performs the final status fetch and closes the run with it. When the
// final fetch fails the earlier terminal observation is used.
func (m *Monitor) finish(ctx context.Context, r *run, terminal *reana.Status) error {
	final := terminal

	latest, err := m.remote.Status(ctx, r.execution.RemoteID)
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "final status fetch failed, using last observation", "error", err)
	case !latest.Status.IsTerminal():
		r.logger.WarnContext(ctx, "final status fetch is not terminal, using last observation", "status", latest.RawStatus)
	default:
		final = latest
	}

	now := m.now()

	if err := m.apply(ctx, r, r.tracker.Observe(final.Status, final.CurrentStep, now)); err != nil {
		return err
	}

	return m.apply(ctx, r, r.tracker.Finish(final.Status, now))
}

// abort marks the execution failed with whatever was observed so far.
func (m *Monitor) abort(ctx context.Context, r *run, cause error) error {
	r.logger.ErrorContext(ctx, "stopping monitor, marking execution failed", "error", cause)

	if err := m.apply(ctx, r, r.tracker.Finish(models.ExecutionStatusFailed, m.now())); err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

func (m *Monitor) apply(ctx context.Context, r *run, transitions []Transition) error {
	for _, transition := range transitions {
		var err error

		switch transition.Kind {
		case TransitionOpenStep:
			err = m.openStep(ctx, r, transition)
		case TransitionCloseStep:
			err = m.closeStep(ctx, r, transition)
		case TransitionTerminal:
			err = m.terminate(ctx, r, transition)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (m *Monitor) openStep(ctx context.Context, r *run, transition Transition) error {
	step := &models.ExecutionStep{
		ID:          m.newID(),
		ExecutionID: r.execution.ID,
		Name:        transition.Step,
		Status:      models.StepStatusRunning,
		StartTime:   transition.At,
	}

	if err := m.executions.OpenStep(ctx, step); err != nil {
		return fmt.Errorf("failed to open step %s: %w", step.Name, err)
	}

	r.open = step
	r.logger.InfoContext(ctx, "step started", "step", step.Name)

	m.publish(ctx, r.execution.ID, events.ExecutionStepStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStepStartedEvent, r.execution.ID),
		StepID:    step.ID,
		StepName:  step.Name,
	})

	return nil
}

func (m *Monitor) closeStep(ctx context.Context, r *run, transition Transition) error {
	step := r.open
	if step == nil || step.Name != transition.Step {
		return fmt.Errorf("%w: no open step named %s", persistence.ErrStepNotFound, transition.Step)
	}

	end := transition.At
	step.Status = transition.StepStatus
	step.EndTime = &end

	err := m.executions.CloseStep(ctx, step)
	if err != nil && !errors.Is(err, persistence.ErrStepAlreadyClosed) {
		return fmt.Errorf("failed to close step %s: %w", step.Name, err)
	}

	r.open = nil

	if err != nil {
		r.logger.WarnContext(ctx, "step was already closed", "step", step.Name)

		return nil
	}

	r.logger.InfoContext(ctx, "step finished", "step", step.Name, "status", step.Status)

	m.publish(ctx, r.execution.ID, events.ExecutionStepFinished{
		BaseEvent: events.NewBaseEvent(events.ExecutionStepFinishedEvent, r.execution.ID),
		StepID:    step.ID,
		StepName:  step.Name,
		Status:    string(step.Status),
	})

	return nil
}

func (m *Monitor) terminate(ctx context.Context, r *run, transition Transition) error {
	err := m.executions.Finish(ctx, r.execution.ID, transition.Status, transition.At)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionFinished) {
			r.logger.WarnContext(ctx, "execution was already finished")

			return nil
		}

		return fmt.Errorf("failed to finish execution: %w", err)
	}

	end := transition.At
	r.execution.Status = transition.Status
	r.execution.EndTime = &end

	r.logger.InfoContext(ctx, "execution finished", "status", transition.Status)

	m.publish(ctx, r.execution.ID, events.ExecutionFinished{
		BaseEvent: events.NewBaseEvent(events.ExecutionFinishedEvent, r.execution.ID),
		Status:    string(transition.Status),
		Duration:  end.Sub(r.execution.StartTime),
	})

	return nil
}

func (m *Monitor) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish event", "execution_id", key, "event_type", event.GetType(), "error", err)
	}
}
