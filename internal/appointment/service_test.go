package appointment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-gateway/internal/identity"
	"github.com/hackgods/clinic-appointment-gateway/internal/transport"
)

const listBody = `[
	{"_id":"a-1","patientId":{"_id":"p-1","firstName":"Ada","lastName":"Lovelace"},"startTime":"2025-01-01T10:00:00Z"},
	{"_id":"a-2","patientName":"Grace Hopper","startTime":"2025-01-01T11:00:00Z"}
]`

func newTestService(ft *fakeTransport, clock *fakeClock, opts ...Option) *Service {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(ft, staticClinic("c-1"), opts...)
}

func TestListAppointments_CachesIdenticalRequests(t *testing.T) {
	ft := newFakeTransport(func(call) (*transport.Response, error) { return ok(listBody) })
	clock := newFakeClock()
	svc := newTestService(ft, clock)
	ctx := context.Background()
	params := QueryParams{ParamStartDate: "2025-01-01"}

	first, err := svc.ListAppointments(ctx, params)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Ada Lovelace", first[0].PatientName)

	second, err := svc.ListAppointments(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.callCount(), "second identical call must hit the cache")
	assert.Equal(t, first[1].ID, second[1].ID)

	clock.Advance(DefaultCacheTTL - time.Second)
	_, err = svc.ListAppointments(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.callCount())

	clock.Advance(time.Second)
	_, err = svc.ListAppointments(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 2, ft.callCount(), "an entry aged five minutes is stale")
}

func TestListAppointments_CacheKeySensitivity(t *testing.T) {
	ft := newFakeTransport(func(call) (*transport.Response, error) { return ok(listBody) })
	svc := newTestService(ft, newFakeClock())
	ctx := context.Background()

	p1 := QueryParams{ParamStatus: "scheduled"}
	p2 := QueryParams{ParamStatus: "cancelled"}

	_, err := svc.ListAppointments(ctx, p1)
	require.NoError(t, err)
	_, err = svc.ListAppointments(ctx, p2)
	require.NoError(t, err)
	assert.Equal(t, 2, ft.callCount(), "different parameters must not share a cached result")

	_, err = svc.ListAppointments(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, 3, ft.callCount(), "the single slot now holds p2")

	_, err = svc.ListAppointments(ctx, QueryParams{ParamStatus: "scheduled", ParamLimit: ""})
	require.NoError(t, err)
	assert.Equal(t, 3, ft.callCount(), "empty values do not change the cache key")
}

func TestListAppointments_ClinicChangeMisses(t *testing.T) {
	ft := newFakeTransport(func(call) (*transport.Response, error) { return ok(`[]`) })
	svc := newTestService(ft, newFakeClock())
	ctx := context.Background()

	_, _ = svc.ListAppointments(ctx, QueryParams{ParamClinicID: "c-1"})
	_, _ = svc.ListAppointments(ctx, QueryParams{ParamClinicID: "c-2"})
	assert.Equal(t, 2, ft.callCount())
}

func TestListAppointments_NotFoundIsCachedEmptyResult(t *testing.T) {
	ft := newFakeTransport(func(call) (*transport.Response, error) {
		return nil, httpError(http.StatusNotFound, `{"message":"no appointments"}`)
	})
	svc := newTestService(ft, newFakeClock())
	ctx := context.Background()

	got, err := svc.ListAppointments(ctx, QueryParams{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = svc.ListAppointments(ctx, QueryParams{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, ft.callCount())

	entry := svc.cache.Snapshot()
	require.NotNil(t, entry)
	assert.Equal(t, "c-1", entry.ClinicID)
	assert.Equal(t, QueryParams{ParamClinicID: "c-1"}, entry.Params)
}

func TestListAppointments_ResolvesClinicFromIdentityStore(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore()
	require.NoError(t, store.Set(ctx, identity.KeyClinicData, `{broken`))
	require.NoError(t, store.Set(ctx, identity.KeyUserData, `{"clinicId":{"_id":"c-user"}}`))
	require.NoError(t, store.Set(ctx, identity.KeyDefaultClinicID, "c-default"))

	ft := newFakeTransport(nil)
	svc := NewService(ft, NewStoreClinicResolver(store, nil))

	assert.Equal(t, "c-user", svc.ResolveClinicID(ctx))

	_, err := svc.ListAppointments(ctx, QueryParams{ParamLimit: "10"})
	require.NoError(t, err)
	assert.Equal(t, "c-user", ft.lastCall().query.Get(ParamClinicID))
	assert.Equal(t, "10", ft.lastCall().query.Get(ParamLimit))
}

func TestListAppointments_ExplicitClinicWins(t *testing.T) {
	ft := newFakeTransport(nil)
	svc := newTestService(ft, newFakeClock())

	_, err := svc.ListAppointments(context.Background(), QueryParams{ParamClinicID: "c-explicit"})
	require.NoError(t, err)
	assert.Equal(t, "c-explicit", ft.lastCall().query.Get(ParamClinicID))
}

func TestListAppointments_WithoutClinicStillCallsTransport(t *testing.T) {
	ft := newFakeTransport(nil)
	svc := NewService(ft, NewClinicResolver(nil))

	got, err := svc.ListAppointments(context.Background(), QueryParams{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, ft.callCount())
	assert.Empty(t, ft.lastCall().query.Get(ParamClinicID))
}

func TestListAppointments_WrappedBodies(t *testing.T) {
	for _, body := range []string{
		`{"appointments":[{"_id":"a-1"}]}`,
		`{"data":[{"_id":"a-1"}]}`,
		`[{"_id":"a-1"}]`,
	} {
		ft := newFakeTransport(func(call) (*transport.Response, error) { return ok(body) })
		svc := newTestService(ft, newFakeClock())
		got, err := svc.ListAppointments(context.Background(), QueryParams{})
		require.NoError(t, err, body)
		require.Len(t, got, 1, body)
		assert.Equal(t, "a-1", got[0].ID)
	}
}

func TestListAppointments_MalformedBody(t *testing.T) {
	ft := newFakeTransport(func(call) (*transport.Response, error) { return ok(`{"total":3}`) })
	svc := newTestService(ft, newFakeClock())

	_, err := svc.ListAppointments(context.Background(), QueryParams{})
	se, isSE := AsServiceError(err)
	require.True(t, isSE)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Nil(t, svc.cache.Snapshot(), "failures never populate the cache")
}

func TestListAppointments_ErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
		details string
	}{
		{"forbidden", httpError(403, `{"message":"not your clinic"}`), 403, MsgPermissionDenied, "not your clinic"},
		{"unauthorized", httpError(401, ``), 401, MsgAuthRequired, "request failed with status code 401"},
		{"server error with body", httpError(500, `{"message":"db down","details":"timeout"}`), 500, "db down", "timeout"},
		{"server error without body", httpError(502, `<html>`), 502, "request failed with status code 502", "request failed with status code 502"},
		{"bad request with error field", httpError(400, `{"error":"bad date"}`), 400, "request failed with status code 400", "bad date"},
		{"conflict on list is generic", httpError(409, `{"message":"busy"}`), 409, "busy", "busy"},
		{"network", &transport.Error{Method: "GET", URL: "http://x", Err: errors.New("connection refused")}, 0, MsgNetworkError, "connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := newFakeTransport(func(call) (*transport.Response, error) { return nil, tc.err })
			svc := newTestService(ft, newFakeClock())

			got, err := svc.ListAppointments(context.Background(), QueryParams{})
			assert.Nil(t, got)
			se, isSE := AsServiceError(err)
			require.True(t, isSE)
			assert.True(t, se.IsError)
			assert.Equal(t, tc.status, se.StatusCode)
			assert.Equal(t, tc.message, se.Message)
			assert.Equal(t, tc.details, se.Details)
		})
	}
}

func TestGetAppointmentByID_InvalidIdentifiers(t *testing.T) {
	ft := newFakeTransport(nil)
	svc := newTestService(ft, newFakeClock())

	for _, id := range []string{"", "  ", "new", "undefined", "null"} {
		_, err := svc.GetAppointmentByID(context.Background(), id)
		se, isSE := AsServiceError(err)
		require.True(t, isSE, id)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.Equal(t, MsgInvalidIdentifier, se.Message)
	}
	assert.Zero(t, ft.callCount())
}

func TestGetAppointmentByID(t *testing.T) {
	ft := newFakeTransport(func(c call) (*transport.Response, error) {
		return ok(`{"data":{"_id":"a-7","doctor":{"name":"Dr Grey","specialization":"Surgery"},"endTime":"2025-01-01T10:30:00Z"}}`)
	})
	svc := newTestService(ft, newFakeClock())

	got, err := svc.GetAppointmentByID(context.Background(), "a-7")
	require.NoError(t, err)
	assert.Equal(t, "appointments/a-7", ft.lastCall().path)
	assert.Equal(t, "a-7", got.ID)
	assert.Equal(t, "Dr Grey", got.DoctorName)
	assert.Equal(t, "Surgery", got.Specialization)
	assert.Nil(t, got.StartTime)
	require.NotNil(t, got.EndTime)
	assert.Nil(t, svc.cache.Snapshot(), "single reads are not cached")
}

func TestGetAppointmentByID_NotFoundIsAnError(t *testing.T) {
	ft := newFakeTransport(func(call) (*transport.Response, error) {
		return nil, httpError(404, `{"message":"gone"}`)
	})
	svc := newTestService(ft, newFakeClock())

	_, err := svc.GetAppointmentByID(context.Background(), "a-404")
	se, isSE := AsServiceError(err)
	require.True(t, isSE)
	assert.Equal(t, 404, se.StatusCode)
	assert.Equal(t, MsgNotFound, se.Message)
	assert.Equal(t, "gone", se.Details)
}

// Racing list calls with different parameters each replace the single slot;
// whichever transport call resolves last owns the cache.
func TestListAppointments_LastWriteWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ft := newFakeTransport(func(c call) (*transport.Response, error) {
		if c.query.Get(ParamStatus) == "slow" {
			close(started)
			<-release
			return ok(`[{"_id":"slow"}]`)
		}
		return ok(`[{"_id":"fast"}]`)
	})
	svc := newTestService(ft, newFakeClock())
	ctx := context.Background()

	slow := QueryParams{ParamStatus: "slow"}
	fast := QueryParams{ParamStatus: "fast"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = svc.ListAppointments(ctx, slow)
	}()

	<-started
	_, err := svc.ListAppointments(ctx, fast)
	require.NoError(t, err)
	assert.Equal(t, "fast", svc.cache.Snapshot().Data[0].ID)

	close(release)
	wg.Wait()

	entry := svc.cache.Snapshot()
	require.NotNil(t, entry)
	assert.Equal(t, "slow", entry.Data[0].ID)
	assert.Equal(t, "slow", entry.Params[ParamStatus])

	_, _ = svc.ListAppointments(ctx, fast)
	assert.Equal(t, 3, ft.callCount(), "the fast result was evicted by the slow one")
}

func TestListAppointments_WriteDuringFetchIsNotCached(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var gets int
	var mu sync.Mutex
	ft := newFakeTransport(func(c call) (*transport.Response, error) {
		if c.method == http.MethodPost {
			return ok(`{"_id":"a-1"}`)
		}
		mu.Lock()
		gets++
		first := gets == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
			return ok(`[]`)
		}
		return ok(`[{"_id":"a-1"}]`)
	})
	svc := newTestService(ft, newFakeClock())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err := svc.ListAppointments(ctx, QueryParams{})
		assert.NoError(t, err)
		assert.Empty(t, got)
	}()

	<-started
	_, err := svc.CreateAppointment(ctx, validDraft())
	require.NoError(t, err)

	close(release)
	wg.Wait()

	assert.Nil(t, svc.cache.Snapshot(), "a list fetched before the create must not be cached")

	got, err := svc.ListAppointments(ctx, QueryParams{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-1", got[0].ID)
	assert.Equal(t, 3, ft.callCount())
}

// Identical requests in flight at the same time are not coalesced. This is a
// known gap: both miss the cache and both reach the clinic API.
func TestListAppointments_NoInFlightDeduplication(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	gate := make(chan struct{})
	ft := newFakeTransport(func(call) (*transport.Response, error) {
		arrived.Done()
		<-gate
		return ok(`[]`)
	})
	svc := newTestService(ft, newFakeClock())

	var done sync.WaitGroup
	for i := 0; i < 2; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			_, _ = svc.ListAppointments(context.Background(), QueryParams{ParamStatus: "same"})
		}()
	}

	arrived.Wait()
	close(gate)
	done.Wait()
	assert.Equal(t, 2, ft.callCount())
}

func TestInvalidate(t *testing.T) {
	ft := newFakeTransport(nil)
	svc := newTestService(ft, newFakeClock())
	ctx := context.Background()

	_, _ = svc.ListAppointments(ctx, QueryParams{})
	svc.Invalidate()
	_, _ = svc.ListAppointments(ctx, QueryParams{})
	assert.Equal(t, 2, ft.callCount())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ft := newFakeTransport(func(c call) (*transport.Response, error) {
		if c.method == "GET" && c.path != appointmentsPath {
			return nil, httpError(500, ``)
		}
		return ok(`[]`)
	})
	svc := newTestService(ft, newFakeClock(), WithMetrics(m))
	ctx := context.Background()

	_, _ = svc.ListAppointments(ctx, QueryParams{})
	_, _ = svc.ListAppointments(ctx, QueryParams{})
	_, _ = svc.GetAppointmentByID(ctx, "a-1")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportCalls.WithLabelValues("list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportCalls.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.serviceErrors.WithLabelValues("get", "5xx")))

	var nilMetrics *Metrics
	nilMetrics.ObserveCache(true)
}
