package mapview

import (
    "fleetdash/internal/grid"
    "fleetdash/internal/model"
    "fleetdash/internal/state"
)

// Build projects a mode slice through the viewport into a render frame.
// It is a pure function of its inputs: active-blockage filtering is
// recomputed from the slice's current time on every call, never cached.

// Pixel is a point in viewport pixel space.
type Pixel struct {
    X float64 `json:"x"`
    Y float64 `json:"y"`
}

type PlacedTruck struct {
    ID     string            `json:"id"`
    Status model.TruckStatus `json:"status"`
    At     Pixel             `json:"at"`
}

type PlacedTank struct {
    ID    string          `json:"id"`
    Name  string          `json:"name"`
    Level model.TankLevel `json:"level"`
    At    Pixel           `json:"at"`
}

type PlacedOrder struct {
    ID         string `json:"id"`
    InDelivery bool   `json:"inDelivery"`
    Scheduled  bool   `json:"scheduled"`
    At         Pixel  `json:"at"`
}

type Polyline struct {
    ID     string  `json:"id"`
    Points []Pixel `json:"points"`
}

// Frame is everything the dashboard needs to draw the map.
type Frame struct {
    CellPx    int         `json:"cellPx"`
    Cols      int         `json:"cols"`
    Rows      int         `json:"rows"`
    Viewport  grid.Viewport `json:"viewport"`
    Trucks    []PlacedTruck `json:"trucks"`
    Tanks     []PlacedTank  `json:"tanks"`
    Orders    []PlacedOrder `json:"orders"`
    Blockages []Polyline    `json:"blockages"`
    Routes    []Polyline    `json:"routes"`
}

func Build(sl state.ModeSlice, vp grid.Viewport, eng *grid.Engine) Frame {
    cell := eng.CellSize(vp.ZoomPercent)
    f := Frame{
        CellPx:    cell,
        Cols:      eng.Cols,
        Rows:      eng.Rows,
        Viewport:  vp,
        Trucks:    make([]PlacedTruck, 0, len(sl.Trucks)),
        Tanks:     make([]PlacedTank, 0, len(sl.Tanks)),
        Orders:    []PlacedOrder{},
        Blockages: []Polyline{},
        Routes:    []Polyline{},
    }
    for _, t := range sl.Trucks {
        f.Trucks = append(f.Trucks, PlacedTruck{ID: t.ID, Status: t.Status, At: center(t.Position, cell)})
        if len(t.Route) > 1 {
            f.Routes = append(f.Routes, Polyline{ID: t.ID, Points: pixels(t.Route, cell)})
        }
    }
    for _, tk := range sl.Tanks {
        f.Tanks = append(f.Tanks, PlacedTank{ID: tk.ID, Name: tk.Name, Level: tk.Level(), At: center(tk.Position, cell)})
    }
    for _, o := range sl.Orders {
        if !o.Pending() {
            continue // delivered/discarded orders leave the map
        }
        f.Orders = append(f.Orders, PlacedOrder{ID: o.ID, InDelivery: o.InDelivery, Scheduled: o.Scheduled, At: center(o.Position, cell)})
    }
    for _, b := range sl.Blockages {
        if !b.ActiveAt(sl.CurrentTimeMin) {
            continue
        }
        f.Blockages = append(f.Blockages, Polyline{ID: b.ID, Points: pixels(b.Points, cell)})
    }
    return f
}

func center(p model.GridPoint, cell int) Pixel {
    half := float64(cell) / 2
    return Pixel{X: float64(p.X*cell) + half, Y: float64(p.Y*cell) + half}
}

func pixels(pts []model.GridPoint, cell int) []Pixel {
    out := make([]Pixel, 0, len(pts))
    for _, p := range pts {
        out = append(out, center(p, cell))
    }
    return out
}

// HitKind tags what a pointer landed on.
type HitKind string

const (
    HitTruck HitKind = "truck"
    HitTank  HitKind = "tank"
    HitOrder HitKind = "order"
)

type Hit struct {
    Kind HitKind `json:"kind"`
    ID   string  `json:"id"`
}

// HitTest resolves a click in frame-local pixel space to the topmost entity.
// Trucks win over tanks, tanks over orders; the first hit swallows the click
// so a background pan gesture is never started by the same pointer-down.
// The second return is false when only the background was hit.
func HitTest(f Frame, px, py float64) (Hit, bool) {
    r := float64(f.CellPx) / 2
    if r <= 0 {
        return Hit{}, false
    }
    for _, t := range f.Trucks {
        if within(t.At, px, py, r) {
            return Hit{Kind: HitTruck, ID: t.ID}, true
        }
    }
    for _, tk := range f.Tanks {
        if within(tk.At, px, py, r) {
            return Hit{Kind: HitTank, ID: tk.ID}, true
        }
    }
    for _, o := range f.Orders {
        if within(o.At, px, py, r) {
            return Hit{Kind: HitOrder, ID: o.ID}, true
        }
    }
    return Hit{}, false
}

func within(at Pixel, px, py, r float64) bool {
    dx := at.X - px
    dy := at.Y - py
    return dx*dx+dy*dy <= r*r
}
