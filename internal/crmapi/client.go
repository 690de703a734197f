// internal/crmapi/client.go
//
// HTTP client for the CRM backend.
//
// Context
// -------
// The backend exposes four calls per entity:
//
//	POST /api/{entity}                        → 201 Record | 400 | 409
//	PUT  /api/{entity}/{id}                   → 200 Record | 400 | 404 | 409
//	GET  /api/{entity}/{id}                   → 200 Record | 404
//	GET  /api/{entity}/exists?field=&value=   → 200 {"exists":bool} | 404
//
// The client turns each response into a decoded value or an *Error (see
// error.go).  Uniqueness lookups are throttled by a token bucket and
// identical in-flight lookups share one request, so a burst of form sessions
// checking the same address costs a single round trip.
//
// Notes
// -----
// • The transport is a pooled go-cleanhttp client; no global state.
// • Oxford commas, two spaces after periods.

package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yanizio/adept-crm/internal/metrics"
	"github.com/yanizio/adept-crm/internal/verify"
)

// Record is a stored CRM entity as returned by the backend.
type Record struct {
	ID        string         `json:"id"`
	Entity    string         `json:"entity"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Options tunes a Client.  Zero fields take defaults.
type Options struct {
	Timeout         time.Duration // per request, default 10s
	ChecksPerSecond float64       // exists rate, default 5
	Burst           int           // exists burst, default 5
	HTTPClient      *http.Client  // default pooled cleanhttp client
	Logger          *zap.SugaredLogger
}

// Client talks to one backend.  Safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	sf      singleflight.Group
	timeout time.Duration
	log     *zap.SugaredLogger
}

// New parses baseURL and returns a Client.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("crmapi: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("crmapi: base url %q must be absolute", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ChecksPerSecond <= 0 {
		opts.ChecksPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
		hc.Timeout = opts.Timeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		base:    u,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(opts.ChecksPerSecond), opts.Burst),
		timeout: opts.Timeout,
		log:     opts.Logger,
	}, nil
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Create stores a new entity.
func (c *Client) Create(ctx context.Context, entity string, payload map[string]any) (Record, error) {
	var rec Record
	err := c.do(ctx, "create", entity, http.MethodPost, c.path(entity), nil, payload, &rec)
	return rec, err
}

// Update replaces the entity identified by id.
func (c *Client) Update(ctx context.Context, entity, id string, payload map[string]any) (Record, error) {
	var rec Record
	err := c.do(ctx, "update", entity, http.MethodPut, c.path(entity, id), nil, payload, &rec)
	return rec, err
}

// Get fetches one record, typically to pre-fill an edit form.
func (c *Client) Get(ctx context.Context, entity, id string) (Record, error) {
	var rec Record
	err := c.do(ctx, "get", entity, http.MethodGet, c.path(entity, id), nil, nil, &rec)
	return rec, err
}

// Exists asks whether value is already used for field.  A 404 is returned as
// an *Error of KindNotFound; callers decide what it means.
//
// The shared request outlives any single caller's ctx and is bounded by the
// client timeout instead; each caller still stops waiting when its own ctx
// ends.
func (c *Client) Exists(ctx context.Context, entity, field, value string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, &Error{Op: "exists", Entity: entity, Kind: KindTransport, Err: err}
	}

	key := entity + "\x00" + field + "\x00" + strings.ToLower(strings.TrimSpace(value))
	ch := c.sf.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var body struct {
			Exists *bool `json:"exists"`
		}
		q := url.Values{"field": {field}, "value": {value}}
		if err := c.do(sctx, "exists", entity, http.MethodGet, c.path(entity, "exists"), q, nil, &body); err != nil {
			return false, err
		}
		if body.Exists == nil {
			return false, &Error{Op: "exists", Entity: entity, Status: http.StatusOK, Kind: KindMalformed,
				Message: "response lacks 'exists'"}
		}
		return *body.Exists, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, &Error{Op: "exists", Entity: entity, Kind: KindTransport, Err: ctx.Err()}
	}
}

// Lookup adapts the client to verify.Lookup for one entity.
func (c *Client) Lookup(entity string) verify.Lookup {
	return verify.LookupFunc(func(ctx context.Context, field, value string) (bool, error) {
		return c.Exists(ctx, entity, field, value)
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (c *Client) path(parts ...string) string {
	esc := make([]string, len(parts))
	for i, p := range parts {
		esc[i] = url.PathEscape(p)
	}
	return "/api/" + strings.Join(esc, "/")
}

func (c *Client) do(ctx context.Context, op, entity, method, path string, q url.Values, in, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Entity: entity, Kind: KindMalformed, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Op: op, Entity: entity, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(entity, op, "transport").Inc()
		c.log.Warnw("crm api request failed", "op", op, "entity", entity, "error", err)
		return &Error{Op: op, Entity: entity, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()
	metrics.APIRequestsTotal.WithLabelValues(entity, op, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Entity: entity, Status: resp.StatusCode, Kind: KindTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ae := &Error{Op: op, Entity: entity, Status: resp.StatusCode, Kind: kindForStatus(resp.StatusCode)}
		var eb ErrorBody
		if len(raw) > 0 && json.Unmarshal(raw, &eb) == nil {
			ae.Message = eb.Message
			ae.Fields = eb.Fields
		}
		if ae.Message == "" {
			ae.Message = http.StatusText(resp.StatusCode)
		}
		c.log.Debugw("crm api error response", "op", op, "entity", entity,
			"status", resp.StatusCode, "message", ae.Message)
		return ae
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Entity: entity, Status: resp.StatusCode, Kind: KindMalformed, Err: err}
	}
	return nil
}
