package kvstore

// Monitoring middleware for stores

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
)

const (
	MethodGet    = "get"
	MethodPut    = "put"
	MethodDelete = "delete"
)

var (
	requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "store",
		Name:      "request_duration_seconds",
		Help:      "Duration of key-value store requests, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{cimetrics.LabelBackend, cimetrics.LabelMethod, cimetrics.LabelSuccess})
)

type instrumentedStore struct {
	next    Store
	backend string
}

// NewInstrumentedStore records the duration and outcome of every
// request made to next. An absent key counts as a success.
func NewInstrumentedStore(next Store, backend string) Store {
	return &instrumentedStore{
		next:    next,
		backend: backend,
	}
}

func (m *instrumentedStore) observe(method string, start time.Time, err error) {
	requestDuration.With(
		cimetrics.LabelBackend, m.backend,
		cimetrics.LabelMethod, method,
		cimetrics.LabelSuccess, strconv.FormatBool(err == nil || err == ErrNotFound),
	).Observe(time.Since(start).Seconds())
}

func (m *instrumentedStore) Get(ctx context.Context, key string) (res []byte, err error) {
	start := time.Now()
	res, err = m.next.Get(ctx, key)
	m.observe(MethodGet, start, err)
	return
}

func (m *instrumentedStore) Put(ctx context.Context, key string, value []byte) (err error) {
	start := time.Now()
	err = m.next.Put(ctx, key, value)
	m.observe(MethodPut, start, err)
	return
}

func (m *instrumentedStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	err = m.next.Delete(ctx, key)
	m.observe(MethodDelete, start, err)
	return
}

func (m *instrumentedStore) String() string {
	return m.next.String()
}
