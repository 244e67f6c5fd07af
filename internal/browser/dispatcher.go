package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoBrowser is returned when no browser driver is configured.
var ErrNoBrowser = errors.New("browser automation not configured")

// Options tune a single run.
type Options struct {
	Screenshots bool
	MaxSteps    int
}

// Dispatcher runs navigation plans against a Driver.
type Dispatcher struct {
	driver Driver
	delay  time.Duration
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher that waits delay after each step for the
// page to settle. driver may be nil, in which case every run fails with
// ErrNoBrowser.
func NewDispatcher(driver Driver, delay time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{driver: driver, delay: delay, logger: logger}
}

// Run plans task by keyword and executes it, recording progress in t.
func (d *Dispatcher) Run(ctx context.Context, t *Tracker, task string, opts Options) (string, error) {
	return d.Execute(ctx, t, task, PlanFor(task), opts)
}

// Execute runs plan, recording progress in t. A new run resets t. On failure
// t is left in the error state and the error is returned.
func (d *Dispatcher) Execute(ctx context.Context, t *Tracker, task string, plan Plan, opts Options) (string, error) {
	steps := plan.Steps
	if opts.MaxSteps > 0 && len(steps) > opts.MaxSteps {
		steps = steps[:opts.MaxSteps]
	}
	t.start(task, len(steps))

	if d.driver == nil {
		t.finish(ErrNoBrowser)
		return "", ErrNoBrowser
	}

	log := d.logger.With("task", task, "plan", plan.Kind)
	log.Info("browser automation started", "steps", len(steps))
	start := time.Now()

	var current string
	for i, step := range steps {
		t.step(i+1, step.Status, step.URL)
		if step.URL != "" {
			page, err := d.driver.Open(ctx, step.URL)
			if err != nil {
				err = fmt.Errorf("step %d (%s): %w", i+1, step.Status, err)
				t.finish(err)
				log.Error("browser automation failed", "error", err)
				return "", err
			}
			current = page.URL
			t.step(i+1, step.Status, page.URL)
			log.Debug("page loaded", "url", page.URL, "title", page.Title)
		}

		if opts.Screenshots && current != "" {
			img, err := d.driver.Screenshot(ctx, current)
			if err != nil {
				log.Warn("screenshot capture failed", "url", current, "error", err)
			} else {
				t.addScreenshot(img)
			}
		}

		if err := d.settle(ctx); err != nil {
			t.finish(err)
			return "", err
		}
	}

	t.finish(nil)
	log.Info("browser automation completed", "duration", time.Since(start))
	return plan.Result, nil
}

func (d *Dispatcher) settle(ctx context.Context) error {
	if d.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
