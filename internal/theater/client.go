package theater

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

const (
	defaultMinInterval = 500 * time.Millisecond
	defaultTimeout     = 10 * time.Second
)

// Client polls the external theater backend for stage state and cue
// sheets. Requests are spaced at least MinInterval apart regardless of
// how often callers ask; the backend is shared with the house systems
// and does not tolerate tight polling loops.
type Client struct {
	baseURL     string
	http        *http.Client
	clock       clockwork.Clock
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: defaultTimeout},
		clock:       clockwork.NewRealClock(),
		minInterval: defaultMinInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StageState is the theater backend's current stage snapshot.
type StageState struct {
	Act     int    `json:"act"`
	Scene   string `json:"scene"`
	Running bool   `json:"running"`
	House   string `json:"house"`
}

// Cue is one entry in the backend's cue sheet.
type Cue struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Fired  bool   `json:"fired"`
	Number int    `json:"number"`
}

// StageState fetches the current stage snapshot.
func (c *Client) StageState(ctx context.Context) (*StageState, error) {
	var state StageState
	if err := c.get(ctx, "/api/stage/state", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// CueSheet fetches the active cue sheet.
func (c *Client) CueSheet(ctx context.Context) ([]Cue, error) {
	var sheet struct {
		Cues []Cue `json:"cues"`
	}
	if err := c.get(ctx, "/api/cues", &sheet); err != nil {
		return nil, err
	}
	return sheet.Cues, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.throttle(ctx); err != nil {
		return cerr.Errorf(cerr.Canceled, err, "theater poll cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to build theater request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return cerr.Errorf(cerr.Unavailable, err, "theater backend unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return cerr.Errorf(cerr.NotFound, nil, "theater backend has no %s", path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return cerr.Errorf(cerr.ResourceExhausted, nil, "theater backend throttled the client")
	case resp.StatusCode >= 500:
		return cerr.Errorf(cerr.Unavailable, nil, "theater backend returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return cerr.Errorf(cerr.Internal, nil, "unexpected theater response %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to decode theater response for %s", path)
	}
	return nil
}

// throttle blocks until the minimum interval since the previous request
// has elapsed. Concurrent callers serialize here.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	wait := c.minInterval - now.Sub(c.last)
	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(wait):
		}
	}
	c.last = c.clock.Now()
	return nil
}
