package admission

import (
	"fmt"
	"strings"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
	"github.com/cicoord/cicoord/pkg/runs"
)

// DefaultAllowedEvents are the triggering events gating is known to
// make sense for.
var DefaultAllowedEvents = []string{"pull_request"}

// CheckCurrent verifies that run can be gated: it must itself be in
// progress (otherwise it would never appear in the listings it is
// ranked against), and triggered by one of allowedEvents, if any are
// given.
func CheckCurrent(run runs.Run, allowedEvents []string) error {
	if run.Status != runs.StatusInProgress {
		return &cierrors.Error{
			Type: cierrors.User,
			Err:  fmt.Errorf("run %d (%s) is %s, not %s", run.ID, run, run.Status, runs.StatusInProgress),
			Help: `The run to be gated is not in progress

Admission is decided by ranking the current run among all runs of the
same job that are in progress. Gate a run from a step inside the run
itself, so that it is in progress while it waits.
`,
		}
	}
	if len(allowedEvents) == 0 {
		return nil
	}
	for _, e := range allowedEvents {
		if e == run.Event {
			return nil
		}
	}
	return &cierrors.Error{
		Type: cierrors.User,
		Err:  fmt.Errorf("run %s was triggered by %q; only %s supported", run, run.Event, strings.Join(allowedEvents, ", ")),
		Help: `The run was triggered by an event that is not gated

Only runs triggered by the events given with --allowed-events are
gated. Add the event to --allowed-events if runs triggered by it should
also be queued and superseded.
`,
	}
}
