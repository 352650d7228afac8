package state

import (
    "sync"

    "github.com/google/uuid"

    "fleetdash/internal/metrics"
    "fleetdash/internal/model"
    "fleetdash/internal/reconcile"
)

// Store is the single process-wide state container. It holds one fully
// independent slice per mode plus UI selection/modal state. All mutation
// goes through the methods below; readers get copies and can subscribe to
// change notifications. Snapshot application is atomic: a watcher never
// observes time advanced without the matching entity collections.

// ModeSlice is the complete state of one operating mode.
type ModeSlice struct {
    RunID          string            `json:"runId,omitempty"`
    Config         model.RunConfig   `json:"config"`
    Status         model.PlaybackStatus `json:"status"`
    CurrentTimeMin int               `json:"currentTimeMin"`
    Loading        bool              `json:"loading"`
    ErrMsg         string            `json:"error,omitempty"`

    Trucks     []model.Truck     `json:"trucks"`
    Orders     []model.Order     `json:"orders"`
    Tanks      []model.Tank      `json:"tanks"`
    Blockages  []model.Blockage  `json:"blockages"`
    Breakdowns []model.Breakdown `json:"breakdowns"`

    // Version increments on every mutation of this slice.
    Version uint64 `json:"version"`
}

// ModalKind distinguishes the end-of-run report variants.
type ModalKind string

const (
    ModalCompleted ModalKind = "completed"
    ModalCollapsed ModalKind = "collapsed"
)

// Modal is the end-of-run report dialog state.
type Modal struct {
    Open    bool             `json:"open"`
    Kind    ModalKind        `json:"kind,omitempty"`
    Message string           `json:"message,omitempty"`
    Report  *model.RunReport `json:"report,omitempty"`
}

// Selection holds the mutually exclusive entity selection.
type Selection struct {
    OrderID string `json:"orderId,omitempty"`
    TruckID string `json:"truckId,omitempty"`
}

type Store struct {
    mu       sync.Mutex
    slices   map[model.Mode]*ModeSlice
    sel      Selection
    modal    Modal
    watchers map[chan struct{}]struct{}
}

func New() *Store {
    return &Store{
        slices: map[model.Mode]*ModeSlice{
            model.ModeSimulation:  newSlice(),
            model.ModeOperational: newSlice(),
        },
        watchers: map[chan struct{}]struct{}{},
    }
}

func newSlice() *ModeSlice {
    return &ModeSlice{
        Status:     model.StatusIdle,
        Trucks:     []model.Truck{},
        Orders:     []model.Order{},
        Tanks:      []model.Tank{},
        Blockages:  []model.Blockage{},
        Breakdowns: []model.Breakdown{},
    }
}

// Watch returns a coalescing change-notification channel. The channel is
// buffered; a slow reader misses intermediate notifications, never blocks
// a writer.
func (s *Store) Watch() chan struct{} {
    ch := make(chan struct{}, 1)
    s.mu.Lock()
    s.watchers[ch] = struct{}{}
    s.mu.Unlock()
    return ch
}

func (s *Store) Unwatch(ch chan struct{}) {
    s.mu.Lock()
    delete(s.watchers, ch)
    s.mu.Unlock()
    close(ch)
}

// notifyLocked must be called with s.mu held.
func (s *Store) notifyLocked() {
    for ch := range s.watchers {
        select { case ch <- struct{}{}: default: }
    }
}

// Slice returns a deep copy of the mode's state.
func (s *Store) Slice(mode model.Mode) ModeSlice {
    s.mu.Lock()
    defer s.mu.Unlock()
    return copySlice(s.slices[mode])
}

// Status returns the mode's playback status.
func (s *Store) Status(mode model.Mode) model.PlaybackStatus {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.slices[mode].Status
}

// SetRun records the transport identity and scenario config for a mode.
func (s *Store) SetRun(mode model.Mode, runID string, cfg model.RunConfig) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sl := s.slices[mode]
    sl.RunID = runID
    sl.Config = cfg
    sl.ErrMsg = ""
    s.bump(sl)
}

// SetStatus moves the mode's playback status.
func (s *Store) SetStatus(mode model.Mode, st model.PlaybackStatus) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sl := s.slices[mode]
    sl.Status = st
    metrics.PlaybackStatus.WithLabelValues(string(mode)).Set(statusGauge(st))
    s.bump(sl)
}

func statusGauge(st model.PlaybackStatus) float64 {
    switch st {
    case model.StatusRunning:
        return 1
    case model.StatusPaused:
        return 2
    default:
        return 0
    }
}

func (s *Store) SetLoading(mode model.Mode, loading bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sl := s.slices[mode]
    sl.Loading = loading
    s.bump(sl)
}

func (s *Store) SetError(mode model.Mode, msg string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sl := s.slices[mode]
    sl.ErrMsg = msg
    s.bump(sl)
}

// UpdateFromSnapshot normalizes the raw payload and replaces the slice's
// entity collections and current time in one step. Optimistic pending
// breakdowns are dropped whenever the payload carries an authoritative
// breakdown list; if the payload omits the field, the local append-only
// list is preserved.
func (s *Store) UpdateFromSnapshot(mode model.Mode, raw reconcile.RawSnapshot) {
    snap := reconcile.Normalize(raw)
    s.mu.Lock()
    defer s.mu.Unlock()
    sl := s.slices[mode]
    sl.CurrentTimeMin = snap.CurrentTimeMinutes
    sl.Trucks = snap.Trucks
    sl.Orders = snap.Orders
    sl.Tanks = snap.Tanks
    sl.Blockages = snap.Blockages
    if raw.HasBreakdowns() {
        sl.Breakdowns = snap.Breakdowns
    }
    metrics.Reconciliations.WithLabelValues(string(mode)).Inc()
    s.bump(sl)
}

// AppendPendingBreakdown adds an optimistic breakdown entry tagged so the
// next authoritative snapshot supersedes it.
func (s *Store) AppendPendingBreakdown(mode model.Mode, bd model.Breakdown) model.Breakdown {
    bd.PendingTag = uuid.New().String()
    s.mu.Lock()
    defer s.mu.Unlock()
    sl := s.slices[mode]
    sl.Breakdowns = append(sl.Breakdowns, bd)
    s.bump(sl)
    return bd
}

// Reset clears a mode's entities and time and returns it to idle. The other
// mode is untouched.
func (s *Store) Reset(mode model.Mode) {
    s.mu.Lock()
    defer s.mu.Unlock()
    old := s.slices[mode]
    sl := newSlice()
    sl.Version = old.Version
    s.slices[mode] = sl
    metrics.PlaybackStatus.WithLabelValues(string(mode)).Set(0)
    s.bump(sl)
}

// SelectOrder selects an order, clearing any truck selection.
func (s *Store) SelectOrder(id string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.sel = Selection{OrderID: id}
    s.notifyLocked()
}

// SelectTruck selects a truck, clearing any order selection.
func (s *Store) SelectTruck(id string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.sel = Selection{TruckID: id}
    s.notifyLocked()
}

func (s *Store) ClearSelection() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.sel = Selection{}
    s.notifyLocked()
}

func (s *Store) Selection() Selection {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.sel
}

// OpenEndModal raises the end-of-run report dialog.
func (s *Store) OpenEndModal(kind ModalKind, message string, report *model.RunReport) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.modal = Modal{Open: true, Kind: kind, Message: message, Report: report}
    s.notifyLocked()
}

func (s *Store) CloseModal() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.modal = Modal{}
    s.notifyLocked()
}

func (s *Store) Modal() Modal {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.modal
}

func (s *Store) bump(sl *ModeSlice) {
    sl.Version++
    s.notifyLocked()
}

func copySlice(sl *ModeSlice) ModeSlice {
    out := *sl
    out.Trucks = append([]model.Truck{}, sl.Trucks...)
    for i := range out.Trucks {
        out.Trucks[i].AssignedOrderIDs = append([]string(nil), sl.Trucks[i].AssignedOrderIDs...)
        out.Trucks[i].Route = append([]model.GridPoint(nil), sl.Trucks[i].Route...)
    }
    out.Orders = append([]model.Order{}, sl.Orders...)
    out.Tanks = append([]model.Tank{}, sl.Tanks...)
    out.Blockages = append([]model.Blockage{}, sl.Blockages...)
    for i := range out.Blockages {
        out.Blockages[i].Points = append([]model.GridPoint(nil), sl.Blockages[i].Points...)
    }
    out.Breakdowns = append([]model.Breakdown{}, sl.Breakdowns...)
    return out
}
