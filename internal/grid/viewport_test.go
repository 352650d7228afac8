package grid

import (
    "testing"
    "time"

    "fleetdash/internal/config"
)

func testEngine() *Engine {
    return NewEngine(config.GridConfig{Cols: 70, Rows: 50, CellSize: 20, MinZoom: 25, MaxZoom: 300, ZoomStep: 25})
}

func TestCellSizeRounds(t *testing.T) {
    e := testEngine()
    if got := e.CellSize(100); got != 20 { t.Fatalf("100%%: got %d", got) }
    if got := e.CellSize(25); got != 5 { t.Fatalf("25%%: got %d", got) }
    if got := e.CellSize(33); got != 7 { t.Fatalf("33%%: got %d, want round(6.6)=7", got) }
}

func TestClampZoomEnvelope(t *testing.T) {
    e := testEngine()
    if got := e.ClampZoom(10); got != 25 { t.Fatalf("below min: %d", got) }
    if got := e.ClampZoom(500); got != 300 { t.Fatalf("above max: %d", got) }
    if got := e.ClampZoom(150); got != 150 { t.Fatalf("in range: %d", got) }
}

func TestClampPanBoundsAndCentering(t *testing.T) {
    e := testEngine()
    for zoom := e.MinZoom; zoom <= e.MaxZoom; zoom += e.ZoomStep {
        content := e.ContentSize(zoom)
        for _, cont := range []Size{{W: 800, H: 600}, {W: 2000, H: 1500}, {W: 300, H: 5000}} {
            got := e.ClampPan(Offset{X: 1e6, Y: -1e6}, &cont, zoom)
            checkAxis(t, got.X, content.W, cont.W)
            checkAxis(t, got.Y, content.H, cont.H)
        }
    }
}

func checkAxis(t *testing.T, off, content, container float64) {
    t.Helper()
    if content > container {
        limit := (content - container) / 2
        if off > limit || off < -limit {
            t.Fatalf("offset %v outside ±%v (content %v container %v)", off, limit, content, container)
        }
    } else {
        want := (container - content) / 2
        if off != want {
            t.Fatalf("undersized content not centered: got %v want %v", off, want)
        }
    }
}

func TestClampPanUnmountedContainer(t *testing.T) {
    e := testEngine()
    off := Offset{X: 123, Y: -45}
    if got := e.ClampPan(off, nil, 100); got != off {
        t.Fatalf("nil container should be a no-op, got %+v", got)
    }
}

func TestClampPanZeroContainer(t *testing.T) {
    e := testEngine()
    content := e.ContentSize(100)
    got := e.ClampPan(Offset{X: 50, Y: 50}, &Size{}, 100)
    if got.X != -content.W/2 || got.Y != -content.H/2 {
        t.Fatalf("zero container should center, got %+v", got)
    }
}

func TestZoomButtonsReclampPan(t *testing.T) {
    c := NewController(testEngine())
    c.SetContainer(800, 600)
    // Drag to an extreme, then zoom out until content fits; pan must recenter.
    c.DragStart(0, 0)
    c.DragMove(1e6, 1e6)
    c.DragEnd()
    for i := 0; i < 10; i++ {
        c.ZoomOut()
    }
    vp := c.Viewport()
    if vp.ZoomPercent != 25 { t.Fatalf("zoom floor: %d", vp.ZoomPercent) }
    content := testEngine().ContentSize(25)
    wantX := (800 - content.W) / 2
    wantY := (600 - content.H) / 2
    if content.W < 800 && vp.Pan.X != wantX { t.Fatalf("pan.X not recentered: %v want %v", vp.Pan.X, wantX) }
    if content.H < 600 && vp.Pan.Y != wantY { t.Fatalf("pan.Y not recentered: %v want %v", vp.Pan.Y, wantY) }
}

func TestDragAnchorNoDrift(t *testing.T) {
    c := NewController(testEngine())
    c.SetContainer(800, 600)
    start := c.Viewport().Pan
    c.DragStart(100, 100)
    c.DragMove(110, 105)
    // second move inside the same frame window is dropped
    c.DragMove(115, 107)
    vp := c.Viewport()
    if vp.Pan.X != start.X+10 || vp.Pan.Y != start.Y+5 {
        t.Fatalf("throttled move should keep anchor delta: got %+v", vp.Pan)
    }
    // after a frame elapses the next move recomputes from the anchor, not
    // from the dropped intermediate
    c.mu.Lock()
    c.now = func() time.Time { return time.Now().Add(50 * time.Millisecond) }
    c.mu.Unlock()
    c.DragMove(130, 120)
    vp = c.Viewport()
    if vp.Pan.X != start.X+30 || vp.Pan.Y != start.Y+20 {
        t.Fatalf("anchor-relative move drifted: got %+v", vp.Pan)
    }
    c.DragEnd()
    c.DragMove(999, 999)
    if c.Viewport().Pan != vp.Pan { t.Fatal("move after DragEnd should be ignored") }
}

func TestWheelZoomSettleReclamps(t *testing.T) {
    c := NewController(testEngine())
    c.settleWait = 5 * time.Millisecond
    c.SetContainer(10000, 10000) // content always smaller than container
    c.vp.Pan = Offset{X: 400, Y: 400}
    vp := c.WheelZoom(1)
    if vp.ZoomPercent != 125 { t.Fatalf("wheel zoom: %d", vp.ZoomPercent) }
    if vp.Pan.X != 400 { t.Fatal("pan must not be re-clamped on the wheel tick itself") }

    deadline := time.Now().Add(500 * time.Millisecond)
    content := testEngine().ContentSize(125)
    want := (10000 - content.W) / 2
    for time.Now().Before(deadline) {
        if c.Viewport().Pan.X == want {
            return
        }
        time.Sleep(2 * time.Millisecond)
    }
    t.Fatalf("pan not re-clamped after settle: got %+v want X=%v", c.Viewport().Pan, want)
}

func TestWheelZoomFrameThrottle(t *testing.T) {
    c := NewController(testEngine())
    c.WheelZoom(1)
    vp := c.WheelZoom(1) // same frame window, dropped
    if vp.ZoomPercent != 125 {
        t.Fatalf("second wheel tick in the same frame should be dropped: %d", vp.ZoomPercent)
    }
    c.Close()
}

func TestSettleCallbackSupersededByTeardown(t *testing.T) {
    c := NewController(testEngine())
    c.settleWait = 20 * time.Millisecond
    c.SetContainer(10000, 10000)
    c.vp.Pan = Offset{X: 42}
    c.WheelZoom(1)
    // block the callback on the lock until after it has fired, then tear
    // down; Stop can no longer cancel a callback that already started
    c.mu.Lock()
    time.Sleep(50 * time.Millisecond)
    c.stopSettleLocked()
    c.mu.Unlock()
    time.Sleep(10 * time.Millisecond)
    if got := c.Viewport().Pan.X; got != 42 {
        t.Fatalf("superseded settle callback still re-clamped: pan.X=%v", got)
    }
}

func TestCloseStopsSettleTimer(t *testing.T) {
    c := NewController(testEngine())
    c.settleWait = 10 * time.Millisecond
    c.SetContainer(10000, 10000)
    c.vp.Pan = Offset{X: 42}
    c.WheelZoom(1)
    c.Close()
    time.Sleep(30 * time.Millisecond)
    if got := c.Viewport().Pan.X; got != 42 {
        t.Fatalf("settle fired after Close: pan.X=%v", got)
    }
}
