package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
	"github.com/cicoord/cicoord/pkg/runs"
)

func TestCheckCurrent(t *testing.T) {
	run := inProgress(50, 5, "a")
	assert.NoError(t, CheckCurrent(run, DefaultAllowedEvents))
	assert.NoError(t, CheckCurrent(run, nil), "no events given means any event")

	push := run
	push.Event = "push"
	err := CheckCurrent(push, DefaultAllowedEvents)
	assert.True(t, cierrors.IsUser(err))
	assert.NoError(t, CheckCurrent(push, []string{"pull_request", "push"}))

	queued := run
	queued.Status = runs.StatusQueued
	err = CheckCurrent(queued, DefaultAllowedEvents)
	assert.True(t, cierrors.IsUser(err))
	assert.Contains(t, err.Error(), "queued")
}
