// Package admission bounds how many runs of the same job may be in
// progress at once, and cancels runs made redundant by newer ones.
//
// The registry offers listings, not a queue, so the order of waiting
// runs is re-derived from scratch on every poll: runs are ranked by
// their registry-assigned number, and the lowest maxConcurrency of
// those in progress may proceed.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
	"github.com/cicoord/cicoord/pkg/runs"
)

// Gate admits runs of one job, at most maxConcurrency at a time.
type Gate struct {
	registry       runs.Registry
	maxConcurrency int
	budget         PollBudget
	logger         log.Logger

	sleep func(context.Context, time.Duration) error
}

func NewGate(registry runs.Registry, maxConcurrency int, budget PollBudget, logger log.Logger) (*Gate, error) {
	if maxConcurrency < 1 {
		return nil, fmt.Errorf("maximum concurrency must be at least 1, got %d", maxConcurrency)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Gate{
		registry:       registry,
		maxConcurrency: maxConcurrency,
		budget:         budget.withDefaults(),
		logger:         logger,
		sleep:          sleep,
	}, nil
}

// Poll lists the runs in progress and decides on the current run. A
// registry error yields a Failed step along with the error.
func (g *Gate) Poll(ctx context.Context, current runs.Run) (Step, error) {
	inProgress, err := g.registry.ListRuns(ctx, current.JobID, runs.Filter{Status: runs.StatusInProgress})
	if err != nil {
		return Step{State: Failed, Rank: -1}, errors.Wrap(err, "listing runs in progress")
	}
	numbers := make([]int, len(inProgress))
	for i, run := range inProgress {
		numbers[i] = run.Number
	}
	return Decide(numbers, current.Number, g.maxConcurrency, g.budget), nil
}

// AwaitSlot blocks until current is admitted. There is no timeout: a
// queued run waits as long as it takes for the runs ahead of it to
// finish. It returns early only on a registry error or when ctx is
// done.
func (g *Gate) AwaitSlot(ctx context.Context, current runs.Run) (err error) {
	logger := log.With(g.logger, "run", current, "max_concurrency", g.maxConcurrency)
	start := time.Now()
	defer func() {
		waitDuration.With(cimetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(start).Seconds())
	}()

	for {
		step, err := g.Poll(ctx, current)
		polls.With("state", step.State.String()).Add(1)
		switch step.State {
		case Failed:
			if err == nil {
				err = fmt.Errorf("cannot admit run %s with maximum concurrency %d", current, g.maxConcurrency)
			}
			logger.Log("decision", "failed", "err", err)
			return err
		case Admitted:
			rankGauge.Set(float64(step.Rank))
			logger.Log("decision", "admitted", "rank", step.Rank, "in_progress", step.InProgress)
			return nil
		}

		if step.Rank < 0 {
			logger.Log("warning", "current run not present in in-progress list; retrying", "next_poll", step.Wait)
		} else {
			rankGauge.Set(float64(step.Rank))
			logger.Log("decision", "waiting", "rank", step.Rank, "in_progress", step.InProgress,
				"waiting_for", fmt.Sprintf("%d run(s) to complete", step.Blocking), "next_poll", step.Wait)
		}
		if err := g.sleep(ctx, step.Wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
