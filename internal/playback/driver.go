package playback

import (
    "context"
    "fmt"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "fleetdash/internal/history"
    "fleetdash/internal/metrics"
    "fleetdash/internal/model"
    "fleetdash/internal/reconcile"
    "fleetdash/internal/state"
)

// Transport is the remote service surface the driver needs. remote.Client
// satisfies it; tests substitute a fake.
type Transport interface {
    StartRun(ctx context.Context, cfg model.RunConfig) (string, error)
    Run(ctx context.Context, runID string) error
    Pause(ctx context.Context, runID string) error
    Resume(ctx context.Context, runID string) error
    Reset(ctx context.Context, runID string) error
    Step(ctx context.Context, runID string) (reconcile.RawSnapshot, error)
    Snapshot(ctx context.Context, runID string) (reconcile.RawSnapshot, error)
    SetSpeed(ctx context.Context, runID string, factor float64) error
    InjectBreakdown(ctx context.Context, runID string, bd model.Breakdown) (model.Breakdown, error)
    ActiveRun(ctx context.Context) (string, error)
}

// Options configures a Driver.
type Options struct {
    // Interval is the poll-strategy step cadence. Default 500ms.
    Interval time.Duration
    // Strategy drives updates while running. Default is the polling strategy.
    Strategy Strategy
    // History receives end-of-run reports. Optional.
    History history.Store
}

// Driver owns the playback state machine for one mode. Transitions are
// serialized under d.mu, so two transport commands for the same mode can
// never interleave; the update loop itself runs outside the lock and is
// torn down through loopCancel before a new one is established.
type Driver struct {
    mode     model.Mode
    store    *state.Store
    tr       Transport
    hist     history.Store
    strat    Strategy
    interval time.Duration
    limiter  *rate.Limiter

    mu         sync.Mutex
    loopCancel context.CancelFunc
}

func New(mode model.Mode, st *state.Store, tr Transport, opts Options) *Driver {
    if opts.Interval <= 0 {
        opts.Interval = 500 * time.Millisecond
    }
    d := &Driver{
        mode:     mode,
        store:    st,
        tr:       tr,
        hist:     opts.History,
        interval: opts.Interval,
        limiter:  rate.NewLimiter(rate.Every(opts.Interval), 1),
    }
    d.strat = opts.Strategy
    if d.strat == nil {
        d.strat = &PollStrategy{}
    }
    return d
}

// Start performs the idle→running transition: obtain a fresh run and its
// first snapshot, hand continuous stepping to the server, then begin the
// local update loop.
func (d *Driver) Start(ctx context.Context, cfg model.RunConfig) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if st := d.store.Status(d.mode); st != model.StatusIdle {
        return fmt.Errorf("playback is %s, stop it first", st)
    }
    d.store.SetLoading(d.mode, true)
    defer d.store.SetLoading(d.mode, false)

    runID, err := d.tr.StartRun(ctx, cfg)
    if err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    d.store.SetRun(d.mode, runID, cfg)
    raw, err := d.tr.Snapshot(ctx, runID)
    if err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    d.store.UpdateFromSnapshot(d.mode, raw)
    if err := d.tr.Run(ctx, runID); err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    d.store.SetStatus(d.mode, model.StatusRunning)
    d.startLoopLocked()
    return nil
}

// AttachActive joins an already-active run (operational mode at startup).
// The run attaches paused; the user decides when to watch it live.
func (d *Driver) AttachActive(ctx context.Context) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.store.Status(d.mode) != model.StatusIdle {
        return nil
    }
    runID, err := d.tr.ActiveRun(ctx)
    if err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    if runID == "" {
        return nil
    }
    d.store.SetRun(d.mode, runID, model.RunConfig{})
    raw, err := d.tr.Snapshot(ctx, runID)
    if err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    d.store.UpdateFromSnapshot(d.mode, raw)
    d.store.SetStatus(d.mode, model.StatusPaused)
    return nil
}

// Pause performs running→paused. The local loop is torn down before the
// remote call so no step can land after the transition.
func (d *Driver) Pause(ctx context.Context) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.store.Status(d.mode) != model.StatusRunning {
        return nil
    }
    d.stopLoopLocked()
    d.store.SetStatus(d.mode, model.StatusPaused)
    if err := d.tr.Pause(ctx, d.runIDLocked()); err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    return nil
}

// Resume performs paused→running via the remote resume call (not a fresh
// run) and restarts the update loop.
func (d *Driver) Resume(ctx context.Context) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.store.Status(d.mode) != model.StatusPaused {
        return nil
    }
    if err := d.tr.Resume(ctx, d.runIDLocked()); err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    d.store.SetStatus(d.mode, model.StatusRunning)
    d.startLoopLocked()
    return nil
}

// Stop resets the remote run and clears this mode's slice back to idle.
func (d *Driver) Stop(ctx context.Context) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.store.Status(d.mode) == model.StatusIdle {
        return nil
    }
    d.stopLoopLocked()
    runID := d.runIDLocked()
    var resetErr error
    if runID != "" {
        resetErr = d.tr.Reset(ctx, runID)
    }
    d.store.Reset(d.mode)
    if resetErr != nil {
        d.store.SetError(d.mode, resetErr.Error())
    }
    return resetErr
}

// StepForward advances exactly one tick. It is a no-op while running: the
// loop owns stepping then and the two must never interleave.
func (d *Driver) StepForward(ctx context.Context) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.store.Status(d.mode) == model.StatusRunning {
        return nil
    }
    runID := d.runIDLocked()
    if runID == "" {
        return fmt.Errorf("no active run")
    }
    raw, err := d.step(ctx, runID)
    if err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    if d.applySnapshot(raw) {
        d.finishLocked(state.ModalCompleted, "scenario horizon reached")
    }
    return nil
}

// SetSpeed adjusts the server stepping rate and the local poll cadence.
func (d *Driver) SetSpeed(ctx context.Context, factor float64) error {
    if factor <= 0 {
        return fmt.Errorf("speed factor must be positive")
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    runID := d.runIDLocked()
    if runID == "" {
        return fmt.Errorf("no active run")
    }
    if err := d.tr.SetSpeed(ctx, runID, factor); err != nil {
        d.store.SetError(d.mode, err.Error())
        return err
    }
    d.limiter.SetLimit(rate.Every(time.Duration(float64(d.interval) / factor)))
    return nil
}

// InjectBreakdown derives the shift turn from the current simulated time of
// day, posts the incident, and appends it optimistically. The next
// authoritative snapshot supersedes the optimistic entry.
func (d *Driver) InjectBreakdown(ctx context.Context, vehicleID string, incident model.IncidentType) (model.Breakdown, error) {
    sl := d.store.Slice(d.mode)
    if sl.RunID == "" && d.mode == model.ModeSimulation {
        return model.Breakdown{}, fmt.Errorf("no active run")
    }
    bd := model.Breakdown{
        VehicleID:  vehicleID,
        Incident:   incident,
        Turn:       model.TurnForMinute(sl.CurrentTimeMin),
        SimTimeMin: sl.CurrentTimeMin,
    }
    out, err := d.tr.InjectBreakdown(ctx, sl.RunID, bd)
    if err != nil {
        d.store.SetError(d.mode, err.Error())
        return model.Breakdown{}, err
    }
    return d.store.AppendPendingBreakdown(d.mode, out), nil
}

// Close tears down the update loop, e.g. on process shutdown.
func (d *Driver) Close() {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.stopLoopLocked()
}

func (d *Driver) runIDLocked() string {
    return d.store.Slice(d.mode).RunID
}

// startLoopLocked cancels any existing loop before establishing a new one,
// so the interval loop and a restarted loop can never run concurrently.
func (d *Driver) startLoopLocked() {
    d.stopLoopLocked()
    ctx, cancel := context.WithCancel(context.Background())
    d.loopCancel = cancel
    go d.strat.Run(ctx, d)
}

func (d *Driver) stopLoopLocked() {
    if d.loopCancel != nil {
        d.loopCancel()
        d.loopCancel = nil
    }
}

// step issues one remote step call and records its metrics.
func (d *Driver) step(ctx context.Context, runID string) (reconcile.RawSnapshot, error) {
    start := time.Now()
    raw, err := d.tr.Step(ctx, runID)
    metrics.StepLatency.WithLabelValues(string(d.mode)).Observe(time.Since(start).Seconds())
    outcome := "ok"
    if err != nil {
        outcome = "error"
    }
    metrics.StepCalls.WithLabelValues(string(d.mode), outcome).Inc()
    return raw, err
}

// applySnapshot reconciles a snapshot into the store and reports whether
// the scenario horizon has been reached.
func (d *Driver) applySnapshot(raw reconcile.RawSnapshot) bool {
    d.store.UpdateFromSnapshot(d.mode, raw)
    sl := d.store.Slice(d.mode)
    dur := sl.Config.DurationMin()
    return dur > 0 && sl.CurrentTimeMin >= dur
}

// halt is the loop error policy: the loop is torn down, the error surfaces
// on the slice, and status lands on paused so the UI reflects that playback
// stopped. Playback never re-enters running on its own.
func (d *Driver) halt(err error) {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.stopLoopLocked()
    if d.store.Status(d.mode) == model.StatusRunning {
        d.store.SetStatus(d.mode, model.StatusPaused)
    }
    d.store.SetError(d.mode, err.Error())
}

// finish ends the run, raises the end-of-run modal and saves the report.
func (d *Driver) finish(kind state.ModalKind, message string) {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.finishLocked(kind, message)
}

func (d *Driver) finishLocked(kind state.ModalKind, message string) {
    d.stopLoopLocked()
    sl := d.store.Slice(d.mode)
    report := buildReport(d.mode, sl, kind)
    d.store.SetStatus(d.mode, model.StatusIdle)
    d.store.OpenEndModal(kind, message, &report)
    if d.hist != nil {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        if _, err := d.hist.SaveReport(ctx, report); err != nil {
            d.store.SetError(d.mode, "save report: "+err.Error())
        }
    }
}

func buildReport(mode model.Mode, sl state.ModeSlice, kind state.ModalKind) model.RunReport {
    r := model.RunReport{
        Mode:       mode,
        Scenario:   sl.Config.Scenario,
        StartDate:  sl.Config.StartDate,
        EndedAtMin: sl.CurrentTimeMin,
        Outcome:    string(kind),
    }
    r.TotalOrders = len(sl.Orders)
    for _, o := range sl.Orders {
        if o.Delivered {
            r.DeliveredOrders++
            r.DeliveredIDs = append(r.DeliveredIDs, o.ID)
        }
        if o.Discarded {
            r.DiscardedOrders++
        }
    }
    return r
}
