package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

func newServer(t *testing.T, search http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/places/search", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		search(w, r)
	})
	mux.HandleFunc("/v1/places/p1/availability", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("time") == "09:00" {
			fmt.Fprint(w, `{"status":"CLOSED","confidence":0.9}`)
			return
		}
		fmt.Fprint(w, `{"status":"open","confidence":0.95}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "key", time.Second, 8)
	require.NoError(t, err)
	return c, &calls
}

const livraria = `{"results":[{"place_id":"p1","name":"Livraria Lello","formatted_address":"R. das Carmelitas 144, Porto","lat":41.1469,"lng":-8.6149,"rating":4.6,"user_ratings_total":999,"types":["book_store"],"business_status":"OPERATIONAL"}]}`

func TestValidateFindsAndCaches(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "Porto", r.URL.Query().Get("city"))
		fmt.Fprint(w, livraria)
	})
	cand := domain.DiscoveryCandidate{Name: "Livraria Lello", Address: "Rua das Carmelitas"}

	got, err := c.Validate(context.Background(), cand, "Porto", domain.SchedulingContext{})
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, 1.0, got.Confidence)
	require.NotNil(t, got.Place)
	assert.Equal(t, "p1", got.Place.PlaceID)
	require.NotNil(t, got.Place.Location)
	assert.InDelta(t, 0.92, got.Place.QualityScore, 0.01)

	_, err = c.Validate(context.Background(), domain.DiscoveryCandidate{Name: "livraria  LELLO"}, "porto", domain.SchedulingContext{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.CacheLen())
}

func TestValidateRetriesServerErrors(t *testing.T) {
	var n atomic.Int32
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, livraria)
	})
	got, err := c.Validate(context.Background(), domain.DiscoveryCandidate{Name: "Livraria Lello"}, "Porto", domain.SchedulingContext{})
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, int32(2), calls.Load())
}

func TestValidateCredentialsAreConfigurationErrors(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.Validate(context.Background(), domain.DiscoveryCandidate{Name: "X"}, "Porto", domain.SchedulingContext{})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, c.CacheLen())
}

func TestCheckAvailability(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
	place := domain.Place{PlaceID: "p1"}

	a, err := c.CheckAvailability(context.Background(), place, domain.SchedulingContext{Date: "2026-05-04", Time: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityClosed, a.Status)

	a, err = c.CheckAvailability(context.Background(), place, domain.SchedulingContext{Date: "2026-05-04", Time: "14:00"})
	require.NoError(t, err)
	assert.True(t, a.Open())

	a, err = c.CheckAvailability(context.Background(), domain.Place{}, domain.SchedulingContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityUnknown, a.Status)
}

func TestMatch(t *testing.T) {
	nf := Match("Anything", nil)
	assert.False(t, nf.Valid)
	assert.Equal(t, domain.FailureNotFound, nf.Kind)

	weak := Match("Blue Door Jazz Club", []SearchResult{{Name: "Red Lion Pub"}})
	assert.Equal(t, domain.FailureNotFound, weak.Kind)

	amb := Match("Central Cafe", []SearchResult{{Name: "Central Cafe Downtown"}, {Name: "Central Cafe Uptown"}})
	assert.False(t, amb.Valid)
	assert.Equal(t, domain.FailureAmbiguous, amb.Kind)

	closed := Match("Old Cinema", []SearchResult{{Name: "Old Cinema", BusinessStatus: "CLOSED_PERMANENTLY"}})
	assert.False(t, closed.Valid)
	assert.Equal(t, domain.FailureClosed, closed.Kind)

	best := Match("Torre dos Clerigos", []SearchResult{{Name: "Clerigos Church"}, {PlaceID: "t", Name: "Torre dos Clérigos"}, {Name: "Torre dos Clerigos"}})
	assert.True(t, best.Valid)
	assert.Equal(t, "Torre dos Clerigos", best.Place.Name)
}

func TestQualityScore(t *testing.T) {
	assert.Zero(t, QualityScore(0, 1000))
	assert.InDelta(t, 1.0, QualityScore(5, 5000), 1e-9)
	assert.Less(t, QualityScore(5, 3), QualityScore(4, 2000))
}
