package meraki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokaycavdar/go-nightguard/pkg/baseline"
	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

var _ baseline.EventSource = (*NetworkSource)(nil)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorded struct {
	mu      sync.Mutex
	queries []url.Values
}

func (r *recorded) add(q url.Values) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
}

func raw(ts, mac string) models.RawEvent {
	return models.RawEvent{OccurredAt: ts, Type: "association", ClientMac: mac, SSID: "Corp"}
}

func writePage(t *testing.T, w http.ResponseWriter, events []models.RawEvent) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(eventsPage{Events: events}))
}

func TestNetworkEventsPagesBackwards(t *testing.T) {
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/N_1/events", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		rec.add(q)

		switch q.Get("endingBefore") {
		case "2024-03-10T23:59:59.999Z":
			writePage(t, w, []models.RawEvent{
				raw("2024-03-10T22:00:00.000Z", "AA:AA"),
				raw("2024-03-10T21:00:00.000Z", "BB:BB"),
			})
		case "2024-03-10T21:00:00.000Z":
			writePage(t, w, []models.RawEvent{
				raw("2024-03-10T19:00:00.000Z", "CC:CC"),
				raw("2024-03-10T17:00:00.000Z", "DD:DD"),
			})
		default:
			t.Errorf("unexpected cursor %q", q.Get("endingBefore"))
			writePage(t, w, nil)
		}
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL), WithPerPage(2), WithLogger(quiet()))
	start := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 23, 59, 59, 999_000_000, time.UTC)

	events, err := c.NetworkEvents(context.Background(), "N_1", start, end)
	require.NoError(t, err)

	require.Len(t, events, 3, "17:00 is outside the window")
	assert.Equal(t, "CC:CC", events[2].ClientMac)

	require.Len(t, rec.queries, 2, "short filtered page stops paging")
	assert.Equal(t, "wireless", rec.queries[0].Get("productType"))
	assert.Equal(t, "2", rec.queries[0].Get("perPage"))
	assert.Empty(t, rec.queries[0].Get("startingAfter"))
}

func TestNetworkEventsOpenEndedUsesStartingAfter(t *testing.T) {
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rec.add(q)
		if q.Get("startingAfter") == "2024-03-10T00:00:00.000Z" {
			writePage(t, w, []models.RawEvent{
				raw("2024-03-10T01:00:00.000Z", "AA:AA"),
				raw("2024-03-10T02:00:00.000Z", "AA:AA"),
			})
			return
		}
		writePage(t, w, []models.RawEvent{})
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPerPage(2), WithLogger(quiet()))
	events, err := c.NetworkEvents(context.Background(), "N_1", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)

	assert.Len(t, events, 2)
	require.Len(t, rec.queries, 2)
	assert.Equal(t, "2024-03-10T02:00:00.000Z", rec.queries[1].Get("startingAfter"))
	assert.Empty(t, rec.queries[1].Get("endingBefore"))
}

func TestNetworkEventsStopsWhenCursorStalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writePage(t, w, []models.RawEvent{
			raw("2024-03-10T20:00:00.000Z", "AA:AA"),
		})
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPerPage(1), WithLogger(quiet()))
	start := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC).Add(time.Minute)

	events, err := c.NetworkEvents(context.Background(), "N_1", start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, events, 2, "repeated boundary events are left to the normalizer")
}

func TestRetriesOnRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"N_1","organizationId":"O_1","name":"HQ","productTypes":["wireless"]}`)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithLogger(quiet()))
	n, err := c.Network(context.Background(), "N_1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "HQ", n.Name)
	assert.Equal(t, []string{"wireless"}, n.ProductTypes)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":["Network not found"]}`)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithMaxRetries(0), WithLogger(quiet()))
	_, err := c.Source("missing").Events(context.Background(),
		time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 6, 0, 0, 0, time.UTC))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "/networks/missing/events", apiErr.Path)
	assert.Contains(t, apiErr.Body, "Network not found")
}

func TestRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithMaxRetries(2), WithLogger(quiet()))
	_, err := c.Organizations(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestRecentEventsAndNetworks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/networks/N_1/events":
			assert.Equal(t, "10", r.URL.Query().Get("perPage"))
			writePage(t, w, []models.RawEvent{raw("2024-03-10T20:00:00.000Z", "AA:AA")})
		case "/organizations/O_1/networks":
			fmt.Fprint(w, `[{"id":"N_1","name":"HQ"},{"id":"N_2","name":"Branch"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithLogger(quiet()))

	recent, err := c.RecentEvents(context.Background(), "N_1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	nets, err := c.OrganizationNetworks(context.Background(), "O_1")
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, "Branch", nets[1].Name)
}

func TestSelectNetworkSkipsSilentNetworks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/organizations/O_1/networks":
			fmt.Fprint(w, `[
				{"id":"N_CAM","name":"Cameras","productTypes":["camera"]},
				{"id":"N_1","name":"HQ","productTypes":["wireless"]},
				{"id":"N_2","name":"Branch","productTypes":["appliance","wireless"]}
			]`)
		case "/networks/N_1/events":
			writePage(t, w, nil)
		case "/networks/N_2/events":
			assert.Equal(t, "3", r.URL.Query().Get("perPage"))
			writePage(t, w, []models.RawEvent{raw("2024-03-10T20:00:00.000Z", "AA:AA")})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithLogger(quiet()))

	n, err := c.SelectNetwork(context.Background(), "O_1")
	require.NoError(t, err)
	assert.Equal(t, "N_2", n.ID)

	active, err := c.Active(context.Background(), "N_1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSelectNetworkNoneActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/organizations/O_1/networks":
			fmt.Fprint(w, `[{"id":"N_1","name":"HQ","productTypes":["wireless"]}]`)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithLogger(quiet()), WithMaxRetries(0))

	_, err := c.SelectNetwork(context.Background(), "O_1")
	assert.ErrorIs(t, err, ErrNoActiveNetwork)
}

func TestRetryAfterParsing(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, time.Second, retryAfter(""))
	assert.Equal(t, time.Second, retryAfter("soon"))
}
