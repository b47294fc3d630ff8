// Package places validates candidates against an HTTP place-search service
// and caches lookups per process.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/validation"
)

const (
	defaultCacheSize  = 512
	minMatchScore     = 0.5
	ambiguityMargin   = 0.1
	permanentlyClosed = "CLOSED_PERMANENTLY"
)

// Ensure Client implements validation.PlaceValidator interface.
var _ validation.PlaceValidator = (*Client)(nil)

// SearchResult is one hit of the place search API.
type SearchResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Address          string   `json:"formatted_address"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	Types            []string `json:"types"`
	BusinessStatus   string   `json:"business_status"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

type availabilityResponse struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

// Client is the place-search client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *lru.Cache[string, domain.PlaceLookup]
	tries      uint
}

// NewClient creates a new place-search client with an LRU lookup cache.
func NewClient(baseURL, apiKey string, timeout time.Duration, cacheSize int) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, domain.PlaceLookup](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create place cache: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		tries:      2,
	}, nil
}

// Validate looks the candidate up by name and city.
func (c *Client) Validate(ctx context.Context, cand domain.DiscoveryCandidate, city string, sched domain.SchedulingContext) (domain.PlaceLookup, error) {
	key := domain.NormalizeName(cand.Name) + "|" + strings.ToLower(city)
	if hit, ok := c.cache.Get(key); ok {
		return hit, nil
	}

	q := url.Values{}
	q.Set("query", cand.Name)
	q.Set("city", city)
	if cand.Address != "" {
		q.Set("address", cand.Address)
	}
	var resp searchResponse
	if err := c.get(ctx, "/v1/places/search?"+q.Encode(), &resp); err != nil {
		return domain.PlaceLookup{}, err
	}

	lookup := Match(cand.Name, resp.Results)
	c.cache.Add(key, lookup)
	return lookup, nil
}

// CheckAvailability asks whether place is open at the scheduled time.
func (c *Client) CheckAvailability(ctx context.Context, place domain.Place, sched domain.SchedulingContext) (domain.Availability, error) {
	if place.PlaceID == "" {
		return domain.Availability{Status: domain.AvailabilityUnknown}, nil
	}
	q := url.Values{}
	q.Set("date", sched.Date)
	q.Set("time", sched.Time)
	var resp availabilityResponse
	if err := c.get(ctx, "/v1/places/"+url.PathEscape(place.PlaceID)+"/availability?"+q.Encode(), &resp); err != nil {
		return domain.Availability{}, err
	}
	status := domain.AvailabilityStatus(strings.ToLower(resp.Status))
	switch status {
	case domain.AvailabilityOpen, domain.AvailabilityClosed:
	default:
		status = domain.AvailabilityUnknown
	}
	return domain.Availability{Status: status, Confidence: resp.Confidence}, nil
}

// CacheLen reports the number of cached lookups.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("places API error [%d]: %s", e.code, e.body)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: places API rejected credentials [%d]", domain.ErrConfiguration, resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return struct{}{}, &statusError{code: resp.StatusCode, body: string(body)}
		case resp.StatusCode != http.StatusOK:
			return struct{}{}, backoff.Permanent(&statusError{code: resp.StatusCode, body: string(body)})
		}
		if err := json.Unmarshal(body, out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(c.tries))
	return err
}

// Match picks the search result that best fits name. Results that are
// permanently closed, missing, or too close to call are reported invalid.
func Match(name string, results []SearchResult) domain.PlaceLookup {
	if len(results) == 0 {
		return domain.PlaceLookup{Reason: "place not found", Kind: domain.FailureNotFound}
	}

	best, second := -1, -1
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = similarity(name, r.Name)
		switch {
		case best < 0 || scores[i] > scores[best]:
			second, best = best, i
		case second < 0 || scores[i] > scores[second]:
			second = i
		}
	}

	top := results[best]
	conf := scores[best]
	if conf < minMatchScore {
		return domain.PlaceLookup{Confidence: conf, Reason: fmt.Sprintf("no match for %q", name), Kind: domain.FailureNotFound}
	}
	if second >= 0 && conf-scores[second] < ambiguityMargin && !strings.EqualFold(top.Name, results[second].Name) {
		return domain.PlaceLookup{
			Confidence: conf,
			Reason:     fmt.Sprintf("ambiguous: %q and %q both match", top.Name, results[second].Name),
			Kind:       domain.FailureAmbiguous,
		}
	}

	place := toPlace(top)
	if strings.EqualFold(top.BusinessStatus, permanentlyClosed) {
		return domain.PlaceLookup{Confidence: conf, Place: &place, Reason: "permanently closed", Kind: domain.FailureClosed}
	}
	return domain.PlaceLookup{Valid: true, Confidence: conf, Place: &place}
}

func toPlace(r SearchResult) domain.Place {
	p := domain.Place{
		PlaceID:      r.PlaceID,
		Name:         r.Name,
		Address:      r.Address,
		Rating:       r.Rating,
		PriceLevel:   r.PriceLevel,
		Types:        r.Types,
		QualityScore: QualityScore(r.Rating, r.UserRatingsTotal),
	}
	if r.Lat != 0 || r.Lng != 0 {
		p.Location = &domain.Coordinates{Lat: r.Lat, Lng: r.Lng}
	}
	return p
}

// QualityScore blends rating with review volume into [0, 1]. A thousand
// reviews count as full confidence in the rating.
func QualityScore(rating float64, reviews int) float64 {
	if rating <= 0 {
		return 0
	}
	volume := math.Min(1, math.Log10(float64(reviews)+1)/3)
	return math.Min(1, rating/5*volume)
}

// similarity is the Jaccard index of the name token sets.
func similarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(ta)+len(tb)-inter)
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}) {
		out[f] = true
	}
	return out
}
