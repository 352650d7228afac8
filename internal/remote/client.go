package remote

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "fleetdash/internal/metrics"
    "fleetdash/internal/model"
    "fleetdash/internal/reconcile"
)

// ErrKind categorizes a failed remote call.
type ErrKind string

const (
    KindClient  ErrKind = "client"  // 4xx
    KindServer  ErrKind = "server"  // 5xx
    KindNetwork ErrKind = "network" // connection failure or timeout
)

// CallError is returned by every failed transport call. The client performs
// no retries; the playback driver decides retry/abort policy.
type CallError struct {
    Op     string
    Kind   ErrKind
    Status int
    Err    error
}

func (e *CallError) Error() string {
    if e.Status > 0 {
        return fmt.Sprintf("remote %s: %s error (status %d)", e.Op, e.Kind, e.Status)
    }
    return fmt.Sprintf("remote %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Client wraps the simulation/operations service with typed calls. Every
// request is bounded by the configured timeout so a hung connection cannot
// leave playback stuck running.
type Client struct {
    base string
    http *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
    return &Client{
        base: strings.TrimRight(base, "/"),
        http: &http.Client{Timeout: timeout},
    }
}

// StartRun creates a fresh run for the given scenario configuration.
func (c *Client) StartRun(ctx context.Context, cfg model.RunConfig) (string, error) {
    var out struct {
        RunID string `json:"runId"`
    }
    if err := c.doJSON(ctx, "startRun", http.MethodPost, "/api/simulation/start", cfg, &out); err != nil {
        return "", err
    }
    return out.RunID, nil
}

// Run hands continuous stepping to the server.
func (c *Client) Run(ctx context.Context, runID string) error {
    return c.doJSON(ctx, "run", http.MethodPost, "/api/simulation/"+runID+"/run", nil, nil)
}

func (c *Client) Pause(ctx context.Context, runID string) error {
    return c.doJSON(ctx, "pause", http.MethodPost, "/api/simulation/"+runID+"/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context, runID string) error {
    return c.doJSON(ctx, "resume", http.MethodPost, "/api/simulation/"+runID+"/resume", nil, nil)
}

func (c *Client) Reset(ctx context.Context, runID string) error {
    return c.doJSON(ctx, "reset", http.MethodPost, "/api/simulation/"+runID+"/reset", nil, nil)
}

// Step advances the run by one tick and returns the resulting snapshot.
func (c *Client) Step(ctx context.Context, runID string) (reconcile.RawSnapshot, error) {
    var out reconcile.RawSnapshot
    err := c.doJSON(ctx, "step", http.MethodPost, "/api/simulation/"+runID+"/step", nil, &out)
    return out, err
}

// Snapshot fetches the full current state without advancing time.
func (c *Client) Snapshot(ctx context.Context, runID string) (reconcile.RawSnapshot, error) {
    var out reconcile.RawSnapshot
    err := c.doJSON(ctx, "snapshot", http.MethodGet, "/api/simulation/"+runID+"/snapshot", nil, &out)
    return out, err
}

// SetSpeed changes the server-side stepping rate multiplier.
func (c *Client) SetSpeed(ctx context.Context, runID string, factor float64) error {
    body := map[string]float64{"factor": factor}
    return c.doJSON(ctx, "setSpeed", http.MethodPost, "/api/simulation/"+runID+"/speed", body, nil)
}

// InjectBreakdown reports a vehicle incident. An empty runID targets the
// live operations endpoint instead of a simulation run.
func (c *Client) InjectBreakdown(ctx context.Context, runID string, bd model.Breakdown) (model.Breakdown, error) {
    path := "/api/operations/breakdowns"
    if runID != "" {
        path = "/api/simulation/" + runID + "/breakdowns"
    }
    var out model.Breakdown
    if err := c.doJSON(ctx, "breakdown", http.MethodPost, path, bd, &out); err != nil {
        return model.Breakdown{}, err
    }
    if out.VehicleID == "" {
        out = bd
    }
    return out, nil
}

// ActiveRun returns the id of the live operational run, or "" when none.
func (c *Client) ActiveRun(ctx context.Context) (string, error) {
    var out struct {
        RunID string `json:"runId"`
    }
    err := c.doJSON(ctx, "activeRun", http.MethodGet, "/api/operations/active", nil, &out)
    if err != nil {
        var ce *CallError
        if errors.As(err, &ce) && ce.Status == http.StatusNotFound {
            return "", nil
        }
        return "", err
    }
    return out.RunID, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
    var rd io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil {
            return &CallError{Op: op, Kind: KindClient, Err: err}
        }
        rd = bytes.NewReader(b)
    }
    req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
    if err != nil {
        return &CallError{Op: op, Kind: KindClient, Err: err}
    }
    if body != nil {
        req.Header.Set("Content-Type", "application/json")
    }
    resp, err := c.http.Do(req)
    if err != nil {
        metrics.TransportErrors.WithLabelValues(op, string(KindNetwork)).Inc()
        return &CallError{Op: op, Kind: KindNetwork, Err: err}
    }
    defer func() { _ = resp.Body.Close() }()
    if resp.StatusCode >= 400 {
        kind := KindClient
        if resp.StatusCode >= 500 {
            kind = KindServer
        }
        metrics.TransportErrors.WithLabelValues(op, string(kind)).Inc()
        return &CallError{Op: op, Kind: kind, Status: resp.StatusCode}
    }
    if out != nil {
        if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
            metrics.TransportErrors.WithLabelValues(op, string(KindServer)).Inc()
            return &CallError{Op: op, Kind: KindServer, Err: err}
        }
    }
    return nil
}
