package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/sparqlgate/errors"
	"github.com/c360/sparqlgate/metric"
	"github.com/c360/sparqlgate/pkg/cache"
	"github.com/c360/sparqlgate/pkg/retry"
)

const (
	// DefaultAPIURL is the Wikidata action API endpoint.
	DefaultAPIURL = "https://www.wikidata.org/w/api.php"

	// Result count clamp for searches.
	minResults = 1
	maxResults = 20

	// batchSize is the wbgetentities ID limit per request.
	batchSize = 50

	// charsPerToken approximates the text volume a token budget allows.
	charsPerToken = 4

	defaultUserAgent = "sparqlgate/1.0"
	requestTimeout   = 10 * time.Second
)

// Match is one search hit.
type Match struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Client looks up entities and properties against a Wikidata-style
// action API.
type Client struct {
	apiURL     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   retry.Config
	metrics    *metric.Metrics
	log        *slog.Logger

	entities   cache.Cache[[]Match]
	properties cache.Cache[[]Match]
	schema     cache.Cache[string]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header. Wikimedia rejects generic
// agents, so production deployments should set a contactable one.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit overrides the default one-request-per-second limiter.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry overrides the retry policy for API calls.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// WithMetrics records lookup counts by kind and status.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithCaches installs the lookup caches. Any nil cache disables caching
// for that pool.
func WithCaches(entities, properties cache.Cache[[]Match], schema cache.Cache[string]) Option {
	return func(c *Client) {
		c.entities = entities
		c.properties = properties
		c.schema = schema
	}
}

// New creates a Client. apiURL empty means DefaultAPIURL.
func New(apiURL string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		apiURL:     apiURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		retryCfg:   retry.Remote(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchEntities resolves a name to candidate entity IDs. k is clamped
// to [1, 20].
func (c *Client) SearchEntities(ctx context.Context, query string, k int) ([]Match, error) {
	return c.search(ctx, "item", c.entities, query, k)
}

// SearchProperties resolves a name to candidate property IDs. k is
// clamped to [1, 20].
func (c *Client) SearchProperties(ctx context.Context, query string, k int) ([]Match, error) {
	return c.search(ctx, "property", c.properties, query, k)
}

func (c *Client) search(ctx context.Context, kind string, pool cache.Cache[[]Match], query string, k int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.WrapInvalid(errors.ErrQueryEmpty, "grounding", "search", "validate search text")
	}
	k = clampK(k)

	key := cache.MakeKey(kind, strings.ToLower(query), fmt.Sprintf("%d", k))
	if pool != nil {
		if hits, ok := pool.Get(key); ok {
			c.observe(kind, "cache")
			return hits, nil
		}
	}

	matches, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]Match, error) {
		return c.searchOnce(ctx, kind, query, k)
	})
	if err != nil {
		c.observe(kind, "error")
		return nil, err
	}
	c.observe(kind, "ok")

	if pool != nil {
		if _, err := pool.Set(key, matches); err != nil {
			c.log.Warn("grounding cache store failed", "kind", kind, "error", err)
		}
	}
	return matches, nil
}

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
}

func (c *Client) searchOnce(ctx context.Context, kind, query string, k int) ([]Match, error) {
	params := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {query},
		"language": {"en"},
		"type":     {kind},
		"limit":    {fmt.Sprintf("%d", k)},
		"format":   {"json"},
	}

	var parsed searchResponse
	if err := c.getJSON(ctx, params, &parsed); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(parsed.Search))
	for _, s := range parsed.Search {
		matches = append(matches, Match{ID: s.ID, Label: s.Label, Description: s.Description})
	}
	return matches, nil
}

// SchemaContext fetches labels, descriptions, property datatypes and
// entity instance-of types for the given IDs and renders them as one
// line per ID, truncated to roughly tokenBudget tokens. IDs are
// fetched in batches of 50 per API limits.
func (c *Client) SchemaContext(ctx context.Context, ids []string, tokenBudget int) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	if tokenBudget <= 0 {
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "grounding", "SchemaContext", "validate token budget")
	}

	key := cache.MakeKey("schema", strings.Join(ids, ","), fmt.Sprintf("%d", tokenBudget))
	if c.schema != nil {
		if text, ok := c.schema.Get(key); ok {
			c.observe("schema", "cache")
			return text, nil
		}
	}

	var lines []string
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]string, error) {
			return c.describeOnce(ctx, ids[start:end])
		})
		if err != nil {
			c.observe("schema", "error")
			return "", err
		}
		lines = append(lines, batch...)
	}
	c.observe("schema", "ok")

	text := truncate(strings.Join(lines, "\n"), tokenBudget*charsPerToken)
	if c.schema != nil {
		if _, err := c.schema.Set(key, text); err != nil {
			c.log.Warn("schema cache store failed", "error", err)
		}
	}
	return text, nil
}

type entityClaim struct {
	Mainsnak struct {
		Datavalue struct {
			Value struct {
				ID string `json:"id"`
			} `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

type entitiesResponse struct {
	Entities map[string]struct {
		Labels map[string]struct {
			Value string `json:"value"`
		} `json:"labels"`
		Descriptions map[string]struct {
			Value string `json:"value"`
		} `json:"descriptions"`
		Datatype string                   `json:"datatype"`
		Claims   map[string][]entityClaim `json:"claims"`
	} `json:"entities"`
}

// maxTypeIDs bounds how many instance-of types a schema line carries.
const maxTypeIDs = 3

func (c *Client) describeOnce(ctx context.Context, ids []string) ([]string, error) {
	params := url.Values{
		"action":    {"wbgetentities"},
		"ids":       {strings.Join(ids, "|")},
		"props":     {"labels|descriptions|datatype|claims"},
		"languages": {"en"},
		"format":    {"json"},
	}

	var parsed entitiesResponse
	if err := c.getJSON(ctx, params, &parsed); err != nil {
		return nil, err
	}

	// Preserve request order; the API returns a map.
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		ent, ok := parsed.Entities[id]
		if !ok {
			continue
		}
		line := id
		if l, ok := ent.Labels["en"]; ok {
			line += ": " + l.Value
		}
		if ent.Datatype != "" {
			line += " (datatype: " + ent.Datatype + ")"
		}
		if d, ok := ent.Descriptions["en"]; ok {
			line += " - " + d.Value
		}
		if types := instanceOfTypes(ent.Claims); len(types) > 0 {
			line += " [instance of: " + strings.Join(types, ", ") + "]"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// instanceOfTypes pulls the first few P31 target IDs from an entity's
// claims for quick typing context.
func instanceOfTypes(claims map[string][]entityClaim) []string {
	var out []string
	for _, claim := range claims["P31"] {
		if id := claim.Mainsnak.Datavalue.Value.ID; id != "" {
			out = append(out, id)
		}
		if len(out) == maxTypeIDs {
			break
		}
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.NonRetryable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "grounding", "getJSON", "call action API")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return errors.WrapTransient(err, "grounding", "getJSON", "read response")
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.WrapTransient(
			fmt.Errorf("%w: status %d", errors.ErrEndpointError, resp.StatusCode),
			"grounding", "getJSON", "call action API")
	}
	if resp.StatusCode >= 400 {
		return retry.NonRetryable(fmt.Errorf("action API returned %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return retry.NonRetryable(
			errors.WrapInvalid(errors.ErrMalformedResponse, "grounding", "getJSON", "decode response"))
	}
	return nil
}

func (c *Client) observe(kind, status string) {
	if c.metrics != nil {
		c.metrics.GroundingLookups.WithLabelValues(kind, status).Inc()
	}
}

func clampK(k int) int {
	switch {
	case k < minResults:
		return minResults
	case k > maxResults:
		return maxResults
	}
	return k
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
