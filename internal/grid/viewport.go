package grid

import (
    "math"
    "sync"
    "time"

    "fleetdash/internal/config"
)

// Offset is a pan translation in pixels.
type Offset struct {
    X float64 `json:"x"`
    Y float64 `json:"y"`
}

// Size is a container rectangle in pixels.
type Size struct {
    W float64 `json:"w"`
    H float64 `json:"h"`
}

// Viewport is the pan/zoom transform applied to the grid before rendering.
type Viewport struct {
    ZoomPercent int    `json:"zoomPercent"`
    Pan         Offset `json:"pan"`
}

// Engine holds the grid geometry and zoom envelope. All methods are pure.
type Engine struct {
    Cols         int
    Rows         int
    BaseCellSize int
    MinZoom      int
    MaxZoom      int
    ZoomStep     int
}

func NewEngine(gc config.GridConfig) *Engine {
    return &Engine{
        Cols:         gc.Cols,
        Rows:         gc.Rows,
        BaseCellSize: gc.CellSize,
        MinZoom:      gc.MinZoom,
        MaxZoom:      gc.MaxZoom,
        ZoomStep:     gc.ZoomStep,
    }
}

// CellSize converts a zoom percentage into a cell size in pixels.
func (e *Engine) CellSize(zoomPercent int) int {
    return int(math.Round(float64(e.BaseCellSize) * float64(zoomPercent) / 100))
}

// ContentSize is the rendered grid size in pixels at the given zoom.
func (e *Engine) ContentSize(zoomPercent int) Size {
    cell := float64(e.CellSize(zoomPercent))
    return Size{W: cell * float64(e.Cols), H: cell * float64(e.Rows)}
}

// ClampZoom bounds a zoom percentage to the configured envelope.
func (e *Engine) ClampZoom(z int) int {
    if z < e.MinZoom { return e.MinZoom }
    if z > e.MaxZoom { return e.MaxZoom }
    return z
}

// ClampPan bounds a pan offset so the grid cannot be dragged fully out of
// view. A nil container means the view is not mounted yet; the offset is
// returned unchanged. Each axis is handled independently: oversized content
// may be dragged within ±(content−container)/2, undersized content is forced
// to exact center.
func (e *Engine) ClampPan(off Offset, container *Size, zoomPercent int) Offset {
    if container == nil {
        return off
    }
    content := e.ContentSize(zoomPercent)
    return Offset{
        X: clampAxis(off.X, content.W, container.W),
        Y: clampAxis(off.Y, content.H, container.H),
    }
}

func clampAxis(off, content, container float64) float64 {
    if container > 0 && content > container {
        limit := (content - container) / 2
        if off > limit { return limit }
        if off < -limit { return -limit }
        return off
    }
    // Undersized or zero-sized container: center the content.
    return (container - content) / 2
}

const (
    frameInterval   = 16 * time.Millisecond
    wheelSettleWait = 150 * time.Millisecond
)

// Controller owns one viewport and serializes gestures against it. Drag
// deltas are computed from the pointer-down anchor rather than accumulated,
// so a throttled-away move never causes drift. Wheel zoom re-clamps the pan
// on a trailing debounce after the gesture settles instead of on every notch.
type Controller struct {
    mu        sync.Mutex
    eng       *Engine
    vp        Viewport
    container *Size

    dragging   bool
    anchor     Offset // pointer position at drag start
    dragOrigin Offset // pan at drag start

    lastMove  time.Time
    lastWheel time.Time
    settle    *time.Timer
    settleGen uint64

    // overridable in tests
    now        func() time.Time
    settleWait time.Duration
}

func NewController(eng *Engine) *Controller {
    return &Controller{
        eng:        eng,
        vp:         Viewport{ZoomPercent: 100},
        now:        time.Now,
        settleWait: wheelSettleWait,
    }
}

// Viewport returns the current transform.
func (c *Controller) Viewport() Viewport {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.vp
}

// SetContainer records the mounted container size and re-clamps the pan.
func (c *Controller) SetContainer(w, h float64) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.container = &Size{W: w, H: h}
    c.vp.Pan = c.eng.ClampPan(c.vp.Pan, c.container, c.vp.ZoomPercent)
}

// Reset restores the default transform, e.g. on a mode switch.
func (c *Controller) Reset() {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.stopSettleLocked()
    c.dragging = false
    c.vp = Viewport{ZoomPercent: 100}
    c.vp.Pan = c.eng.ClampPan(c.vp.Pan, c.container, c.vp.ZoomPercent)
}

// ZoomIn steps the zoom up and immediately re-clamps the pan.
func (c *Controller) ZoomIn() Viewport { return c.zoomBy(c.eng.ZoomStep) }

// ZoomOut steps the zoom down and immediately re-clamps the pan.
func (c *Controller) ZoomOut() Viewport { return c.zoomBy(-c.eng.ZoomStep) }

func (c *Controller) zoomBy(delta int) Viewport {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.vp.ZoomPercent = c.eng.ClampZoom(c.vp.ZoomPercent + delta)
    c.vp.Pan = c.eng.ClampPan(c.vp.Pan, c.container, c.vp.ZoomPercent)
    return c.vp
}

// DragStart anchors a pan gesture at the given pointer position.
func (c *Controller) DragStart(px, py float64) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.dragging = true
    c.anchor = Offset{X: px, Y: py}
    c.dragOrigin = c.vp.Pan
    c.lastMove = time.Time{}
}

// DragMove updates the pan from the anchor delta. At most one update is
// applied per animation frame; dropped moves are harmless because the next
// accepted one recomputes from the anchor.
func (c *Controller) DragMove(px, py float64) Viewport {
    c.mu.Lock()
    defer c.mu.Unlock()
    if !c.dragging {
        return c.vp
    }
    now := c.now()
    if !c.lastMove.IsZero() && now.Sub(c.lastMove) < frameInterval {
        return c.vp
    }
    c.lastMove = now
    next := Offset{
        X: c.dragOrigin.X + (px - c.anchor.X),
        Y: c.dragOrigin.Y + (py - c.anchor.Y),
    }
    c.vp.Pan = c.eng.ClampPan(next, c.container, c.vp.ZoomPercent)
    return c.vp
}

// DragEnd finishes the gesture.
func (c *Controller) DragEnd() {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.dragging = false
}

// WheelZoom applies one zoom step per wheel notch, throttled to one update
// per animation frame. The pan is re-clamped only after the gesture settles
// to avoid jitter while scrolling continuously.
func (c *Controller) WheelZoom(notches int) Viewport {
    c.mu.Lock()
    defer c.mu.Unlock()
    if notches == 0 {
        return c.vp
    }
    now := c.now()
    if !c.lastWheel.IsZero() && now.Sub(c.lastWheel) < frameInterval {
        return c.vp
    }
    c.lastWheel = now
    c.vp.ZoomPercent = c.eng.ClampZoom(c.vp.ZoomPercent + notches*c.eng.ZoomStep)
    c.stopSettleLocked()
    gen := c.settleGen
    c.settle = time.AfterFunc(c.settleWait, func() {
        c.mu.Lock()
        defer c.mu.Unlock()
        // a callback that already fired when the timer was stopped must
        // not re-clamp after Reset/Close superseded it
        if gen != c.settleGen {
            return
        }
        c.vp.Pan = c.eng.ClampPan(c.vp.Pan, c.container, c.vp.ZoomPercent)
    })
    return c.vp
}

// Close cancels any pending settle timer so no update fires after teardown.
func (c *Controller) Close() {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.stopSettleLocked()
}

func (c *Controller) stopSettleLocked() {
    c.settleGen++
    if c.settle != nil {
        c.settle.Stop()
        c.settle = nil
    }
}
