package admission

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
	"github.com/cicoord/cicoord/pkg/runs"
)

// Supersede cancels every run of current's job, on current's branch,
// that is in progress and older (lower-numbered) than current: the
// latest submission on a branch wins. Runs that turn out to have
// stopped already are not an error. It returns the numbers of the
// runs it asked the registry to cancel.
func Supersede(ctx context.Context, registry runs.Registry, current runs.Run, logger log.Logger) ([]int, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "run", current, "branch", current.Branch)

	inProgress, err := registry.ListRuns(ctx, current.JobID, runs.Filter{
		Status: runs.StatusInProgress,
		Branch: current.Branch,
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing runs in progress on branch")
	}

	var cancelled []int
	for _, run := range inProgress {
		// Registries filter on a best-effort basis; check again.
		if run.Branch != current.Branch || run.Number >= current.Number {
			continue
		}
		result, err := registry.CancelRun(ctx, run.ID)
		if err != nil {
			return cancelled, errors.Wrapf(err, "cancelling run %s", run)
		}
		superseded.With(cimetrics.LabelOutcome, result.String()).Add(1)
		logger.Log("info", "superseded run", "superseded", run, "result", result)
		if result == runs.Cancelled {
			cancelled = append(cancelled, run.Number)
		}
	}
	return cancelled, nil
}
