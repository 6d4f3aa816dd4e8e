package kvstore

import (
	"context"
	"testing"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
)

// checkStore exercises the contract every backend must honour.
func checkStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, ".lockfile")
	assert.Equal(t, ErrNotFound, err, "absent key must read as ErrNotFound")

	require.NoError(t, s.Put(ctx, ".lockfile", []byte(`{"process_id":"a"}`)))
	got, err := s.Get(ctx, ".lockfile")
	require.NoError(t, err)
	assert.Equal(t, `{"process_id":"a"}`, string(got))

	require.NoError(t, s.Put(ctx, ".lockfile", []byte(`{"process_id":"b"}`)))
	got, err = s.Get(ctx, ".lockfile")
	require.NoError(t, err)
	assert.Equal(t, `{"process_id":"b"}`, string(got), "put must overwrite")

	require.NoError(t, s.Delete(ctx, ".lockfile"))
	_, err = s.Get(ctx, ".lockfile")
	assert.Equal(t, ErrNotFound, err)

	assert.NoError(t, s.Delete(ctx, ".lockfile"), "deleting an absent key is not an error")
	assert.NotEmpty(t, s.String())
}

func TestMemory(t *testing.T) {
	checkStore(t, NewMemory())
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	value := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", value))
	value[0] = 'x'
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Get(ctx, "k")
	assert.Equal(t, context.Canceled, err)
}

func TestInstrumentedStore(t *testing.T) {
	checkStore(t, NewInstrumentedStore(NewMemory(), "memory-test"))

	families, err := stdprometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	counts := map[string]uint64{}
	for _, family := range families {
		if family.GetName() != "cicoord_store_request_duration_seconds" {
			continue
		}
		for _, m := range family.GetMetric() {
			if label(m, cimetrics.LabelBackend) == "memory-test" {
				counts[label(m, cimetrics.LabelMethod)] += m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.NotZero(t, counts[MethodGet])
	assert.NotZero(t, counts[MethodPut])
	assert.NotZero(t, counts[MethodDelete])
}

func label(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
