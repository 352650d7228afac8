package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "fleetdash/internal/config"
    "fleetdash/internal/grid"
    "fleetdash/internal/history"
    "fleetdash/internal/model"
    "fleetdash/internal/reconcile"
    "fleetdash/internal/state"
)

// fakePlayback records transport commands without touching a remote service.
type fakePlayback struct {
    store *state.Store
    mode  model.Mode
    calls []string
    err   error
}

func (f *fakePlayback) record(name string) error {
    f.calls = append(f.calls, name)
    return f.err
}

func (f *fakePlayback) Start(_ context.Context, cfg model.RunConfig) error {
    if err := f.record("start"); err != nil { return err }
    f.store.SetRun(f.mode, "run-1", cfg)
    f.store.SetStatus(f.mode, model.StatusRunning)
    return nil
}
func (f *fakePlayback) Pause(context.Context) error  { return f.record("pause") }
func (f *fakePlayback) Resume(context.Context) error { return f.record("resume") }
func (f *fakePlayback) Stop(context.Context) error   { return f.record("stop") }
func (f *fakePlayback) StepForward(context.Context) error { return f.record("step") }
func (f *fakePlayback) SetSpeed(_ context.Context, factor float64) error { return f.record("speed") }
func (f *fakePlayback) InjectBreakdown(_ context.Context, vehicleID string, incident model.IncidentType) (model.Breakdown, error) {
    if err := f.record("breakdown"); err != nil {
        return model.Breakdown{}, err
    }
    return model.Breakdown{VehicleID: vehicleID, Incident: incident, Turn: model.TurnT1}, nil
}

func newTestServer(t *testing.T) (*Server, *fakePlayback) {
    t.Helper()
    st := state.New()
    fp := &fakePlayback{store: st, mode: model.ModeSimulation}
    op := &fakePlayback{store: st, mode: model.ModeOperational}
    eng := grid.NewEngine(config.Default().Grid)
    s := NewServer(st, map[model.Mode]Playback{
        model.ModeSimulation:  fp,
        model.ModeOperational: op,
    }, history.NewMemory(), eng)
    t.Cleanup(s.Viewport.Close)
    return s, fp
}

func post(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
    t.Helper()
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
    req.Header.Set("Content-Type", "application/json")
    h(rr, req)
    return rr
}

func TestHealthReady(t *testing.T) {
    s, _ := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestStateShape(t *testing.T) {
    s, _ := newTestServer(t)
    rr := httptest.NewRecorder()
    s.StateHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/state", nil))
    if rr.Code != 200 { t.Fatalf("state: got %d", rr.Code) }
    var body map[string]json.RawMessage
    if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
        t.Fatalf("decode: %v", err)
    }
    for _, k := range []string{"simulation", "operational", "selection", "modal", "viewport"} {
        if _, ok := body[k]; !ok { t.Fatalf("missing %q in state payload", k) }
    }
}

func TestTransportStartRequiresScenario(t *testing.T) {
    s, fp := newTestServer(t)
    rr := post(t, s.TransportHandler, "/v1/transport/start", `{}`)
    if rr.Code != http.StatusBadRequest {
        t.Fatalf("start without scenario: got %d", rr.Code)
    }
    if len(fp.calls) != 0 { t.Fatalf("driver should not be called: %v", fp.calls) }
}

func TestTransportStartAndStatus(t *testing.T) {
    s, fp := newTestServer(t)
    rr := post(t, s.TransportHandler, "/v1/transport/start", `{"scenario":"weekly","startDate":"2025-01-02"}`)
    if rr.Code != 200 { t.Fatalf("start: got %d body=%s", rr.Code, rr.Body.String()) }
    if len(fp.calls) != 1 || fp.calls[0] != "start" { t.Fatalf("calls = %v", fp.calls) }
    var body struct {
        Status model.PlaybackStatus `json:"status"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &body)
    if body.Status != model.StatusRunning {
        t.Fatalf("status = %s, want running", body.Status)
    }
}

func TestTransportUnknownActionAndMode(t *testing.T) {
    s, _ := newTestServer(t)
    if rr := post(t, s.TransportHandler, "/v1/transport/launch", `{}`); rr.Code != http.StatusNotFound {
        t.Fatalf("unknown action: got %d", rr.Code)
    }
    if rr := post(t, s.TransportHandler, "/v1/transport/pause?mode=bogus", `{}`); rr.Code != http.StatusBadRequest {
        t.Fatalf("bad mode: got %d", rr.Code)
    }
}

func TestTransportCommandsRouteToDriver(t *testing.T) {
    s, fp := newTestServer(t)
    for _, action := range []string{"pause", "resume", "stop", "step"} {
        if rr := post(t, s.TransportHandler, "/v1/transport/"+action, ``); rr.Code != 200 {
            t.Fatalf("%s: got %d", action, rr.Code)
        }
    }
    if rr := post(t, s.TransportHandler, "/v1/transport/speed", `{"factor":2}`); rr.Code != 200 {
        t.Fatalf("speed: got %d", rr.Code)
    }
    want := []string{"pause", "resume", "stop", "step", "speed"}
    if strings.Join(fp.calls, ",") != strings.Join(want, ",") {
        t.Fatalf("calls = %v, want %v", fp.calls, want)
    }
}

func TestBreakdownValidation(t *testing.T) {
    s, _ := newTestServer(t)
    if rr := post(t, s.BreakdownsHandler, "/v1/breakdowns", `{"incidentType":"T1"}`); rr.Code != http.StatusBadRequest {
        t.Fatalf("missing vehicleId: got %d", rr.Code)
    }
    if rr := post(t, s.BreakdownsHandler, "/v1/breakdowns", `{"vehicleId":"TA01","incidentType":"T9"}`); rr.Code != http.StatusBadRequest {
        t.Fatalf("bad incident: got %d", rr.Code)
    }
    rr := post(t, s.BreakdownsHandler, "/v1/breakdowns", `{"vehicleId":"TA01","incidentType":"T2"}`)
    if rr.Code != http.StatusAccepted {
        t.Fatalf("inject: got %d body=%s", rr.Code, rr.Body.String())
    }
    var bd model.Breakdown
    _ = json.Unmarshal(rr.Body.Bytes(), &bd)
    if bd.VehicleID != "TA01" || bd.Incident != model.IncidentT2 {
        t.Fatalf("breakdown echo = %+v", bd)
    }
}

func TestViewportZoomAndReset(t *testing.T) {
    s, _ := newTestServer(t)
    rr := post(t, s.ViewportHandler, "/v1/viewport/zoom", `{"direction":"in"}`)
    if rr.Code != 200 { t.Fatalf("zoom in: got %d", rr.Code) }
    var vp grid.Viewport
    _ = json.Unmarshal(rr.Body.Bytes(), &vp)
    if vp.ZoomPercent != 125 {
        t.Fatalf("zoom = %d, want 125", vp.ZoomPercent)
    }
    rr = post(t, s.ViewportHandler, "/v1/viewport/reset", ``)
    _ = json.Unmarshal(rr.Body.Bytes(), &vp)
    if vp.ZoomPercent != 100 {
        t.Fatalf("after reset zoom = %d, want 100", vp.ZoomPercent)
    }
    if rr := post(t, s.ViewportHandler, "/v1/viewport/zoom", `{"direction":"sideways"}`); rr.Code != http.StatusBadRequest {
        t.Fatalf("bad direction: got %d", rr.Code)
    }
}

func TestViewportPanPhases(t *testing.T) {
    s, _ := newTestServer(t)
    if rr := post(t, s.ViewportHandler, "/v1/viewport/container", `{"w":700,"h":500}`); rr.Code != 200 {
        t.Fatalf("container: got %d", rr.Code)
    }
    if rr := post(t, s.ViewportHandler, "/v1/viewport/pan", `{"phase":"start","x":100,"y":100}`); rr.Code != 200 {
        t.Fatalf("pan start: got %d", rr.Code)
    }
    rr := post(t, s.ViewportHandler, "/v1/viewport/pan", `{"phase":"move","x":150,"y":120}`)
    if rr.Code != 200 { t.Fatalf("pan move: got %d", rr.Code) }
    var vp grid.Viewport
    _ = json.Unmarshal(rr.Body.Bytes(), &vp)
    if vp.Pan.X != 50 || vp.Pan.Y != 20 {
        t.Fatalf("pan = %+v, want (50,20)", vp.Pan)
    }
    if rr := post(t, s.ViewportHandler, "/v1/viewport/pan", `{"phase":"end"}`); rr.Code != 200 {
        t.Fatalf("pan end: got %d", rr.Code)
    }
    if rr := post(t, s.ViewportHandler, "/v1/viewport/pan", `{"phase":"wiggle"}`); rr.Code != http.StatusBadRequest {
        t.Fatalf("bad phase: got %d", rr.Code)
    }
}

func TestFrameAndClickSelection(t *testing.T) {
    s, _ := newTestServer(t)
    s.Store.UpdateFromSnapshot(model.ModeSimulation, rawWithTruck(t))

    rr := httptest.NewRecorder()
    s.FrameHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/frame?mode=simulation", nil))
    if rr.Code != 200 { t.Fatalf("frame: got %d", rr.Code) }
    var frame struct {
        CellPx int `json:"cellPx"`
        Trucks []struct {
            ID string `json:"id"`
            At struct{ X, Y float64 }
        } `json:"trucks"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &frame); err != nil {
        t.Fatalf("decode frame: %v", err)
    }
    if len(frame.Trucks) != 1 { t.Fatalf("trucks = %d", len(frame.Trucks)) }

    // click the truck's cell center
    rr = post(t, s.ClickHandler, "/v1/map/click?mode=simulation", `{"x":50,"y":70}`)
    if rr.Code != 200 { t.Fatalf("click: got %d", rr.Code) }
    if sel := s.Store.Selection(); sel.TruckID != "TA01" {
        t.Fatalf("selection = %+v, want truck TA01", sel)
    }

    // background click leaves the selection alone
    rr = post(t, s.ClickHandler, "/v1/map/click?mode=simulation", `{"x":1200,"y":900}`)
    if rr.Code != 200 { t.Fatalf("background click: got %d", rr.Code) }
    if sel := s.Store.Selection(); sel.TruckID != "TA01" {
        t.Fatalf("background click cleared selection: %+v", sel)
    }
}

func rawWithTruck(t *testing.T) reconcile.RawSnapshot {
    t.Helper()
    var raw reconcile.RawSnapshot
    data := `{"currentTimeMinutes":10,"trucks":[{"id":"TA01","position":{"x":2,"y":3},"status":"DELIVERING"}]}`
    if err := json.Unmarshal([]byte(data), &raw); err != nil {
        t.Fatalf("raw snapshot: %v", err)
    }
    return raw
}

func TestSelectionEndpoints(t *testing.T) {
    s, _ := newTestServer(t)
    if rr := post(t, s.SelectionHandler, "/v1/selection", `{"orderId":"o-1"}`); rr.Code != 200 {
        t.Fatalf("select order: got %d", rr.Code)
    }
    if sel := s.Store.Selection(); sel.OrderID != "o-1" || sel.TruckID != "" {
        t.Fatalf("selection = %+v", sel)
    }
    rr := httptest.NewRecorder()
    s.SelectionHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/selection", nil))
    if rr.Code != 200 { t.Fatalf("clear: got %d", rr.Code) }
    if sel := s.Store.Selection(); sel != (state.Selection{}) {
        t.Fatalf("selection not cleared: %+v", sel)
    }
}

func TestModalClose(t *testing.T) {
    s, _ := newTestServer(t)
    s.Store.OpenEndModal(state.ModalCompleted, "done", nil)
    rr := post(t, s.ModalCloseHandler, "/v1/modal/close", ``)
    if rr.Code != 200 { t.Fatalf("modal close: got %d", rr.Code) }
    if s.Store.Modal().Open { t.Fatalf("modal should be closed") }
}

func TestReportsListAndGet(t *testing.T) {
    s, _ := newTestServer(t)
    id, err := s.History.SaveReport(context.Background(), model.RunReport{Mode: model.ModeSimulation, Outcome: "completed"})
    if err != nil { t.Fatalf("save: %v", err) }

    rr := httptest.NewRecorder()
    s.ReportsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/reports?mode=simulation", nil))
    if rr.Code != 200 { t.Fatalf("list: got %d", rr.Code) }
    var list struct {
        Items []model.RunReport `json:"items"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 1 { t.Fatalf("items = %d, want 1", len(list.Items)) }

    rr = httptest.NewRecorder()
    s.ReportsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/reports/"+id, nil))
    if rr.Code != 200 { t.Fatalf("get: got %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.ReportsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/reports/nope", nil))
    if rr.Code != http.StatusNotFound { t.Fatalf("missing report: got %d", rr.Code) }
}
