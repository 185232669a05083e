package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/udaykiran1867/tce-project1/internal/inventory"
	jobmetrics "github.com/udaykiran1867/tce-project1/internal/jobs"
)

var reportTime = time.Date(2026, time.March, 14, 1, 15, 0, 0, time.UTC)

type fakeLedger struct {
	checks  int
	repairs int
	drift   []inventory.Drift
	err     error
}

func (f *fakeLedger) CheckLedger(context.Context) ([]inventory.Drift, error) {
	f.checks++
	return f.drift, f.err
}

func (f *fakeLedger) RepairLedger(context.Context) ([]inventory.Drift, error) {
	f.repairs++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]inventory.Drift, len(f.drift))
	for i, d := range f.drift {
		d.Repaired = true
		out[i] = d
	}
	return out, nil
}

type fakeWarmer struct {
	calls int
	err   error
}

func (f *fakeWarmer) Warm(context.Context) error {
	f.calls++
	return f.err
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func driftTask(t *testing.T, repair bool) *asynq.Task {
	t.Helper()
	task, err := NewDriftCheckTask(DriftCheckPayload{Repair: repair, RequestedBy: "ops"})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerDriftCheck, task.Type())
	return task
}

func TestDriftCheckReportsDrift(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledger := &fakeLedger{drift: []inventory.Drift{{ProductID: 4, Master: 10, Stored: 7, Replayed: 6}}}
	job := NewDriftCheckJob(ledger, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), driftTask(t, false)))
	require.Equal(t, 1, ledger.checks)
	require.Equal(t, 0, ledger.repairs)
	require.Equal(t, float64(1), metricValue(t, reg, "inventory_ledger_drift_products", nil))
	require.Equal(t, float64(1), metricValue(t, reg, "inventory_jobs_total", map[string]string{"job": TaskLedgerDriftCheck, "status": "success"}))
}

func TestDriftCheckRepairCountsRepairs(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledger := &fakeLedger{drift: []inventory.Drift{{ProductID: 1}, {ProductID: 2}}}
	job := NewDriftCheckJob(ledger, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), driftTask(t, true)))
	require.Equal(t, 1, ledger.repairs)
	require.Equal(t, float64(2), metricValue(t, reg, "inventory_ledger_repairs_total", nil))
	require.Equal(t, float64(0), metricValue(t, reg, "inventory_ledger_drift_products", nil))
}

func TestDriftCheckFailureIsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledger := &fakeLedger{err: errors.New("db down")}
	job := NewDriftCheckJob(ledger, nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), driftTask(t, false))
	require.EqualError(t, err, "db down")
	require.Equal(t, float64(1), metricValue(t, reg, "inventory_jobs_failures_total", map[string]string{"job": TaskLedgerDriftCheck}))
}

func TestDriftCheckSkipsRetryOnBadPayload(t *testing.T) {
	job := NewDriftCheckJob(&fakeLedger{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerDriftCheck, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDriftPayloadCarriesRequester(t *testing.T) {
	var payload DriftCheckPayload
	require.NoError(t, json.Unmarshal(driftTask(t, true).Payload(), &payload))
	require.True(t, payload.Repair)
	require.Equal(t, "ops", payload.RequestedBy)
}

func TestReportsWarmup(t *testing.T) {
	reg := prometheus.NewRegistry()
	warmer := &fakeWarmer{}
	job := NewReportsWarmupJob(warmer, nil, jobmetrics.NewMetrics(reg))
	task, err := NewReportsWarmupTask(reportTime)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, warmer.calls)

	warmer.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, float64(1), metricValue(t, reg, "inventory_jobs_total", map[string]string{"job": TaskReportsWarmup, "status": "failure"}))
}

func TestJobsHealth(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Archived: 1}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":0,"failed":1}`, rr.Body.String())

	rr = serve(NewHandler(fakeInspector{err: errors.New("dial redis")}, nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotContains(t, rr.Body.String(), "dial redis")

	rr = serve(NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

type fakePruner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (f *fakePruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.removed, f.err
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	reg := prometheus.NewRegistry()
	pruner := &fakePruner{removed: 3}
	job := NewIdempotencyCleanupJob(pruner, 24*time.Hour, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 24*time.Hour, pruner.olderThan)
	require.Equal(t, float64(1), metricValue(t, reg, "inventory_jobs_total", map[string]string{"job": TaskIdempotencyCleanup, "status": "success"}))

	defaulted := NewIdempotencyCleanupJob(pruner, 0, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, defaulted.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, DefaultIdempotencyRetention, pruner.olderThan)
}

func TestIdempotencyCleanupFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewIdempotencyCleanupJob(&fakePruner{err: errors.New("db down")}, time.Hour, nil, jobmetrics.NewMetrics(reg))

	require.EqualError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()), "db down")
	require.Equal(t, float64(1), metricValue(t, reg, "inventory_jobs_failures_total", map[string]string{"job": TaskIdempotencyCleanup}))
}
