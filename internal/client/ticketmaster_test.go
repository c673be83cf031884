package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"eventrec/recommender/internal/config"
	"eventrec/recommender/internal/domain"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventsFixture = `{
  "_embedded": {
    "events": [
      {
        "id": "ev1",
        "name": "Jazz Night",
        "url": "https://example.com/ev1",
        "distance": 12.5,
        "images": [{"url": ""}, {"url": "https://img.example.com/ev1.jpg"}],
        "classifications": [
          {"segment": {"name": "Music"}},
          {"segment": {"name": "Music"}},
          {"genre": {"name": "Jazz"}}
        ],
        "_embedded": {
          "venues": [
            {"address": {}},
            {
              "address": {"line1": "1 Main St", "line2": "Suite 2"},
              "city": {"name": "Mountain View"}
            }
          ]
        }
      },
      {
        "id": "ev2",
        "name": "Gallery Opening",
        "rating": 4.5,
        "distance": 99,
        "classifications": [{"segment": {"name": "Arts & Theatre"}}],
        "_embedded": {
          "venues": [
            {"location": {"latitude": "37.38", "longitude": "-122.08"}}
          ]
        }
      }
    ]
  }
}`

func testConfig(baseURL string) config.TicketMasterConfig {
	return config.TicketMasterConfig{
		BaseURL:              baseURL,
		APIKey:               "test-key",
		Radius:               50,
		GeohashPrecision:     4,
		Timeout:              5,
		MaxRetries:           0,
		MaxRequestsPerSecond: 1000,
		BreakerFailures:      2,
		BreakerTimeout:       60,
	}
}

func TestSearchParsesEvents(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsFixture))
	}))
	defer srv.Close()

	c := NewTicketMasterClient(testConfig(srv.URL))
	items, err := c.Search(context.Background(), 37.38, -122.08, "music")
	require.NoError(t, err)

	assert.Equal(t, "test-key", query["apikey"])
	assert.Equal(t, "music", query["keyword"])
	assert.Equal(t, "50", query["radius"])
	assert.Equal(t, "miles", query["unit"])
	assert.Len(t, query["geoPoint"], 4)

	require.Len(t, items, 2)

	jazz := items[0]
	assert.Equal(t, "ev1", jazz.ID)
	assert.Equal(t, "Jazz Night", jazz.Name)
	assert.Equal(t, "https://img.example.com/ev1.jpg", jazz.ImageURL)
	assert.Equal(t, "1 Main St\nSuite 2\nMountain View", jazz.Address)
	assert.Equal(t, []string{"Music"}, jazz.Categories.Sorted())
	assert.Equal(t, 12.5, jazz.Distance)
	assert.False(t, jazz.HasLocation())

	gallery := items[1]
	assert.Equal(t, 4.5, gallery.Rating)
	assert.True(t, gallery.HasLocation())
	assert.InDelta(t, 0, gallery.Distance, 1e-9)
	assert.Equal(t, "", gallery.Address)
}

func TestSearchWithoutEmbeddedIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page": {"totalElements": 0}}`))
	}))
	defer srv.Close()

	items, err := NewTicketMasterClient(testConfig(srv.URL)).Search(context.Background(), 0, 0, "art")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestSearchQuotaExceededOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewTicketMasterClient(testConfig(srv.URL))

	_, err := c.Search(context.Background(), 0, 0, "music")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	_, err = c.Search(context.Background(), 0, 0, "music")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = c.Search(context.Background(), 0, 0, "music")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewTicketMasterClient(testConfig(srv.URL)).Search(context.Background(), 0, 0, "music")
	assert.ErrorContains(t, err, "HTTP error: 401")
}

func TestParseEventsRecomputesDistanceFromVenue(t *testing.T) {
	body := []byte(`{"_embedded": {"events": [{
		"id": "e", "distance": 1,
		"_embedded": {"venues": [{"location": {"latitude": "0", "longitude": "90"}}]}
	}]}}`)

	items, err := parseEvents(body, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, domain.Distance(0, 0, 0, 90), items[0].Distance, 1e-9)
}

func TestParseEventsRejectsMalformedBody(t *testing.T) {
	_, err := parseEvents([]byte(`{"_embedded": [`), 0, 0)
	assert.Error(t, err)
}
