package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/streamflix/partwise/internal/api/v1"
	httperr "github.com/streamflix/partwise/internal/core/errors"
	"github.com/streamflix/partwise/internal/core/storage"
	"github.com/streamflix/partwise/internal/provision"
)

type fakeAggregates struct {
	rows []storage.AggregateRow
	err  error
}

func (f *fakeAggregates) Rebuild(context.Context, int) (storage.RefreshStats, error) {
	return storage.RefreshStats{}, nil
}

func (f *fakeAggregates) QueryDays(context.Context, time.Time, time.Time) ([]storage.AggregateRow, error) {
	return f.rows, f.err
}

type fakeEvents struct {
	events   []*v1.ViewingEvent
	err      error
	gotFrom  time.Time
	gotTo    time.Time
	gotCtry  string
	gotLimit int
}

func (f *fakeEvents) SaveEvent(context.Context, *v1.ViewingEvent) error { return nil }

func (f *fakeEvents) QueryEvents(_ context.Context, from, to time.Time, country string, limit int) ([]*v1.ViewingEvent, error) {
	f.gotFrom, f.gotTo, f.gotCtry, f.gotLimit = from, to, country, limit
	return f.events, f.err
}

type fakeMeta struct {
	names      []string
	err        error
	gotPattern string
}

func (f *fakeMeta) PartitionExists(context.Context, string) (bool, error) { return false, nil }

func (f *fakeMeta) IndexExists(context.Context, string, string) (bool, error) { return true, nil }

func (f *fakeMeta) ListPartitions(_ context.Context, pattern string) ([]string, error) {
	f.gotPattern = pattern
	return f.names, f.err
}

type fakeHorizon struct {
	outcomes []provision.HorizonOutcome
	err      error
}

func (f *fakeHorizon) EnsureHorizon(context.Context, time.Time, time.Time, int) ([]provision.HorizonOutcome, error) {
	return f.outcomes, f.err
}

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func TestHandleDailyAggregates_Success(t *testing.T) {
	agg := &fakeAggregates{rows: []storage.AggregateRow{
		{Day: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), DistinctUserCount: 120},
		{Day: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), DistinctUserCount: 98},
	}}
	svc := NewService(agg, &fakeEvents{}, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/aggregates/daily?from=2024-03-01&to=2024-03-07", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var body DailyAggregateResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Days, 2)
	require.EqualValues(t, 120, body.Days[0].DistinctUserCount)
}

func TestHandleDailyAggregates_MissingParams(t *testing.T) {
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/aggregates/daily?from=2024-03-01", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidQueryError, errResp.ErrorType)
}

func TestHandleDailyAggregates_ReversedRange(t *testing.T) {
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/aggregates/daily?from=2024-03-07&to=2024-03-01", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleQueryEvents_CountryAndLimitForwarded(t *testing.T) {
	events := &fakeEvents{events: []*v1.ViewingEvent{{EventID: 1, UserID: 7, ContentID: 9, CountryCode: "us"}}}
	svc := NewService(&fakeAggregates{}, events, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/events?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z&country=us&limit=50", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "us", events.gotCtry)
	require.Equal(t, 50, events.gotLimit)

	var body EventsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
}

func TestHandleQueryEvents_DefaultLimit(t *testing.T) {
	events := &fakeEvents{}
	svc := NewService(&fakeAggregates{}, events, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/events?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, defaultEventLimit, events.gotLimit)
}

func TestHandleQueryEvents_BadCountry(t *testing.T) {
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/events?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z&country=usa", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleListPartitions(t *testing.T) {
	meta := &fakeMeta{names: []string{
		"viewing_events_2024_03",
		"viewing_events_2024_03_p0",
		"viewing_events_2024_03_p1",
	}}
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, meta, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/partitions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "viewing_events_%", meta.gotPattern)

	var body PartitionsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, 3, body.Count)
	require.Equal(t, "viewing_events", body.BaseTable)
}

func TestHandleListPartitions_StorageError(t *testing.T) {
	meta := &fakeMeta{err: errors.New("connection refused")}
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, meta, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/partitions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestHandleEnsurePartitions_AllSucceed(t *testing.T) {
	target := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	horizon := &fakeHorizon{outcomes: []provision.HorizonOutcome{
		{Target: target, Result: provision.Result{PartitionName: "viewing_events_2024_03", Created: true}},
	}}
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, &fakeMeta{}, horizon, "viewing_events", 4)
	r := newRouter(svc)

	body, _ := json.Marshal(EnsureRequest{From: target, To: target.AddDate(0, 1, 0)})
	req := httptest.NewRequest(http.MethodPost, "/v1/partitions/ensure", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var out EnsureResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, 1, out.Months)
	require.Equal(t, 0, out.Failed)
	require.True(t, out.Outcomes[0].Created)
}

func TestHandleEnsurePartitions_PartialFailureIs207(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)
	horizon := &fakeHorizon{
		outcomes: []provision.HorizonOutcome{
			{Target: jan, Result: provision.Result{PartitionName: "viewing_events_2024_01", Created: true}},
			{Target: feb, Result: provision.Result{PartitionName: "viewing_events_2024_02"}, Err: errors.New("leaf creation failed")},
		},
		err: errors.New("viewing_events_2024_02: leaf creation failed"),
	}
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, &fakeMeta{}, horizon, "viewing_events", 4)
	r := newRouter(svc)

	body, _ := json.Marshal(EnsureRequest{From: jan, To: feb})
	req := httptest.NewRequest(http.MethodPost, "/v1/partitions/ensure", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusMultiStatus, resp.Code)
	var out EnsureResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, 2, out.Months)
	require.Equal(t, 1, out.Failed)
	require.Contains(t, out.Outcomes[1].Error, "leaf creation failed")
}

func TestHandleEnsurePartitions_ReversedRange(t *testing.T) {
	svc := NewService(&fakeAggregates{}, &fakeEvents{}, &fakeMeta{}, &fakeHorizon{}, "viewing_events", 4)
	r := newRouter(svc)

	body, _ := json.Marshal(EnsureRequest{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/partitions/ensure", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}
