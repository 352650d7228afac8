package playback

import (
    "context"
    "encoding/json"

    "fleetdash/internal/model"
    "fleetdash/internal/remote"
    "fleetdash/internal/state"
)

// Strategy drives state updates while a mode is running. The driver defines
// the correctness rules once against this interface — single-flight updates,
// in-order reconciliation, halt on transport error — so the polling and
// push-event transports cannot diverge in behavior.
type Strategy interface {
    // Run blocks until ctx is cancelled. Implementations deliver updates
    // through d.applySnapshot and report failures through d.halt.
    Run(ctx context.Context, d *Driver)
}

// PollStrategy issues step calls on a fixed cadence. The loop is sequential,
// so at most one step call per mode is ever in flight and responses are
// reconciled in issue order; a fixed-delay limiter (not a fire-and-forget
// ticker) keeps a slow response from stacking calls behind it.
type PollStrategy struct{}

func (PollStrategy) Run(ctx context.Context, d *Driver) {
    for {
        if err := d.limiter.Wait(ctx); err != nil {
            return // cancelled
        }
        runID := d.store.Slice(d.mode).RunID
        if runID == "" {
            return
        }
        raw, err := d.step(ctx, runID)
        if ctx.Err() != nil {
            return // torn down while the call was in flight; drop the result
        }
        if err != nil {
            d.halt(err)
            return
        }
        if d.applySnapshot(raw) {
            d.finish(state.ModalCompleted, "scenario horizon reached")
            return
        }
        if d.store.Status(d.mode) != model.StatusRunning {
            return
        }
    }
}

// EventStrategy applies server-initiated updates from a push-event topic
// instead of polling. Entity events trigger a snapshot refresh so the
// reconciliation path stays identical to polling.
type EventStrategy struct {
    Source remote.Source
}

func (s *EventStrategy) Run(ctx context.Context, d *Driver) {
    runID := d.store.Slice(d.mode).RunID
    if runID == "" {
        return
    }
    ch := s.Source.Subscribe(runID)
    defer s.Source.Unsubscribe(runID, ch)
    for {
        select {
        case <-ctx.Done():
            return
        case evt, ok := <-ch:
            if !ok {
                return
            }
            if !s.handle(ctx, d, runID, evt) {
                return
            }
        }
    }
}

func (s *EventStrategy) handle(ctx context.Context, d *Driver, runID string, evt remote.Event) bool {
    switch evt.Type {
    case "collapsed":
        msg := "logistic collapse"
        var pl struct {
            Message string `json:"message"`
        }
        if len(evt.Payload) > 0 {
            if err := json.Unmarshal(evt.Payload, &pl); err == nil && pl.Message != "" {
                msg = pl.Message
            }
        }
        d.finish(state.ModalCollapsed, msg)
        return false
    case "started":
        return s.refresh(ctx, d, runID)
    case "tank-updated", "truck-updated", "order-updated", "order-created",
        "route-assigned", "position-updated", "blockage-started", "blockage-ended":
        return s.refresh(ctx, d, runID)
    default:
        // unknown event types are ignored; the next snapshot covers them
        return true
    }
}

func (s *EventStrategy) refresh(ctx context.Context, d *Driver, runID string) bool {
    raw, err := d.tr.Snapshot(ctx, runID)
    if ctx.Err() != nil {
        return false
    }
    if err != nil {
        d.halt(err)
        return false
    }
    if d.applySnapshot(raw) {
        d.finish(state.ModalCompleted, "scenario horizon reached")
        return false
    }
    return true
}
