package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"eventrec/recommender/internal/config"
	"eventrec/recommender/internal/domain"
	"eventrec/recommender/internal/metrics"

	"github.com/mmcloughlin/geohash"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const searchPath = "/discovery/v2/events.json"

// ErrQuotaExceeded is returned when the Discovery API rejects a request with 429.
var ErrQuotaExceeded = errors.New("ticketmaster quota exceeded")

type TicketMasterClient interface {
	// Search returns events around (lat, lon) matching keyword. Distances are
	// in miles from the given point.
	Search(ctx context.Context, lat, lon float64, keyword string) ([]domain.Item, error)
}

type ticketMasterClient struct {
	rl         ratelimit.Limiter
	config     config.TicketMasterConfig
	httpClient *resty.Client
	breaker    *gobreaker.CircuitBreaker[[]domain.Item]
}

func NewTicketMasterClient(cfg config.TicketMasterConfig) TicketMasterClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]domain.Item](gobreaker.Settings{
		Name:        "ticketmaster",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.BreakerTimeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// cancelled callers say nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warnf("🚫 Circuit breaker %s opened, requests disabled for %ds", name, cfg.BreakerTimeout)
			} else {
				log.Infof("✅ Circuit breaker %s changed from %s to %s", name, from, to)
			}
		},
	})

	return &ticketMasterClient{
		rl:         ratelimit.New(rps),
		config:     cfg,
		httpClient: client,
		breaker:    breaker,
	}
}

func (c *ticketMasterClient) Search(ctx context.Context, lat, lon float64, keyword string) ([]domain.Item, error) {
	items, err := c.breaker.Execute(func() ([]domain.Item, error) {
		return c.search(ctx, lat, lon, keyword)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.UpstreamRequestsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}
	return items, nil
}

func (c *ticketMasterClient) search(ctx context.Context, lat, lon float64, keyword string) ([]domain.Item, error) {
	c.rl.Take()

	params := map[string]string{
		"apikey":   c.config.APIKey,
		"geoPoint": geohash.EncodeWithPrecision(lat, lon, c.precision()),
		"keyword":  keyword,
		"radius":   strconv.Itoa(c.config.Radius),
		"unit":     "miles",
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(searchPath)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()

	if resp.StatusCode() == http.StatusTooManyRequests {
		log.Warnf("🚫 Rate limit exceeded for keyword %q", keyword)
		return nil, ErrQuotaExceeded
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	items, err := parseEvents([]byte(resp.String()), lat, lon)
	if err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}

	log.Debugf("Fetched %d events for keyword %q", len(items), keyword)
	return items, nil
}

func (c *ticketMasterClient) precision() uint {
	if c.config.GeohashPrecision == 0 {
		return 4
	}
	return c.config.GeohashPrecision
}
