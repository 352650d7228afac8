package api

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strconv"
    "strings"

    "fleetdash/internal/buildinfo"
    "fleetdash/internal/history"
    "fleetdash/internal/mapview"
    "fleetdash/internal/model"
)

// StateHandler handles GET /v1/state: the full dashboard state in one shot.
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "simulation":  s.Store.Slice(model.ModeSimulation),
        "operational": s.Store.Slice(model.ModeOperational),
        "selection":   s.Store.Selection(),
        "modal":       s.Store.Modal(),
        "viewport":    s.Viewport.Viewport(),
    })
}

// TransportHandler handles POST /v1/transport/{start|pause|resume|stop|step|speed}.
// The mode query parameter selects which slice the command applies to.
func (s *Server) TransportHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    action := strings.TrimPrefix(r.URL.Path, "/v1/transport/")
    if action == r.URL.Path || action == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing action", r.URL.Path)
        return
    }
    mode, ok := s.modeFrom(r)
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Invalid mode", r.URL.Query().Get("mode"), r.URL.Path)
        return
    }
    d := s.driver(mode)
    if d == nil {
        writeProblem(w, http.StatusServiceUnavailable, "Mode unavailable", string(mode), r.URL.Path)
        return
    }

    var err error
    switch action {
    case "start":
        var cfg model.RunConfig
        if r.Body != nil {
            if derr := json.NewDecoder(r.Body).Decode(&cfg); derr != nil && !errors.Is(derr, io.EOF) {
                writeProblem(w, http.StatusBadRequest, "Invalid JSON", derr.Error(), r.URL.Path)
                return
            }
        }
        if mode == model.ModeSimulation && cfg.Scenario == "" {
            writeProblem(w, http.StatusBadRequest, "Missing scenario", "scenario is required to start a simulation", r.URL.Path)
            return
        }
        err = d.Start(r.Context(), cfg)
    case "pause":
        err = d.Pause(r.Context())
    case "resume":
        err = d.Resume(r.Context())
    case "stop":
        err = d.Stop(r.Context())
    case "step":
        err = d.StepForward(r.Context())
    case "speed":
        var body struct {
            Factor float64 `json:"factor"`
        }
        if derr := json.NewDecoder(r.Body).Decode(&body); derr != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", derr.Error(), r.URL.Path)
            return
        }
        err = d.SetSpeed(r.Context(), body.Factor)
    default:
        writeProblem(w, http.StatusNotFound, "Unknown action", action, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusConflict, "Transport command failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": s.Store.Status(mode), "slice": s.Store.Slice(mode)})
}

// BreakdownsHandler handles POST /v1/breakdowns: inject a vehicle incident.
func (s *Server) BreakdownsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    mode, ok := s.modeFrom(r)
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Invalid mode", r.URL.Query().Get("mode"), r.URL.Path)
        return
    }
    var body struct {
        VehicleID string `json:"vehicleId"`
        Incident  string `json:"incidentType"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if body.VehicleID == "" {
        writeProblem(w, http.StatusBadRequest, "Missing vehicleId", "", r.URL.Path)
        return
    }
    switch model.IncidentType(body.Incident) {
    case model.IncidentT1, model.IncidentT2, model.IncidentT3:
    default:
        writeProblem(w, http.StatusBadRequest, "Invalid incidentType", body.Incident, r.URL.Path)
        return
    }
    d := s.driver(mode)
    if d == nil {
        writeProblem(w, http.StatusServiceUnavailable, "Mode unavailable", string(mode), r.URL.Path)
        return
    }
    bd, err := d.InjectBreakdown(r.Context(), body.VehicleID, model.IncidentType(body.Incident))
    if err != nil {
        writeProblem(w, http.StatusBadGateway, "Breakdown injection failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusAccepted, bd)
}

// ViewportHandler handles POST /v1/viewport/{zoom|wheel|pan|container|reset}.
func (s *Server) ViewportHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    action := strings.TrimPrefix(r.URL.Path, "/v1/viewport/")
    switch action {
    case "zoom":
        var body struct {
            Direction string `json:"direction"` // in | out
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        var vp any
        switch body.Direction {
        case "in":
            vp = s.Viewport.ZoomIn()
        case "out":
            vp = s.Viewport.ZoomOut()
        default:
            writeProblem(w, http.StatusBadRequest, "Invalid direction", body.Direction, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, vp)
    case "wheel":
        var body struct {
            Notches int `json:"notches"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, s.Viewport.WheelZoom(body.Notches))
    case "pan":
        var body struct {
            Phase string  `json:"phase"` // start | move | end
            X     float64 `json:"x"`
            Y     float64 `json:"y"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        switch body.Phase {
        case "start":
            s.Viewport.DragStart(body.X, body.Y)
            writeJSON(w, http.StatusOK, s.Viewport.Viewport())
        case "move":
            writeJSON(w, http.StatusOK, s.Viewport.DragMove(body.X, body.Y))
        case "end":
            s.Viewport.DragEnd()
            writeJSON(w, http.StatusOK, s.Viewport.Viewport())
        default:
            writeProblem(w, http.StatusBadRequest, "Invalid phase", body.Phase, r.URL.Path)
        }
    case "container":
        var body struct {
            W float64 `json:"w"`
            H float64 `json:"h"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        s.Viewport.SetContainer(body.W, body.H)
        writeJSON(w, http.StatusOK, s.Viewport.Viewport())
    case "reset":
        s.Viewport.Reset()
        writeJSON(w, http.StatusOK, s.Viewport.Viewport())
    default:
        writeProblem(w, http.StatusNotFound, "Unknown action", action, r.URL.Path)
    }
}

// FrameHandler handles GET /v1/frame: the mode slice projected through the
// shared viewport into drawable pixel space.
func (s *Server) FrameHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    mode, ok := s.modeFrom(r)
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Invalid mode", r.URL.Query().Get("mode"), r.URL.Path)
        return
    }
    f := mapview.Build(s.Store.Slice(mode), s.Viewport.Viewport(), s.Engine)
    writeJSON(w, http.StatusOK, f)
}

// ClickHandler handles POST /v1/map/click: hit-test a pointer position and
// update the selection. A background click clears nothing; it just reports
// no hit so the client may begin a pan gesture.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    mode, ok := s.modeFrom(r)
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Invalid mode", r.URL.Query().Get("mode"), r.URL.Path)
        return
    }
    var body struct {
        X float64 `json:"x"`
        Y float64 `json:"y"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    f := mapview.Build(s.Store.Slice(mode), s.Viewport.Viewport(), s.Engine)
    hit, ok := mapview.HitTest(f, body.X, body.Y)
    if !ok {
        writeJSON(w, http.StatusOK, map[string]any{"hit": nil})
        return
    }
    switch hit.Kind {
    case mapview.HitTruck:
        s.Store.SelectTruck(hit.ID)
    case mapview.HitOrder:
        s.Store.SelectOrder(hit.ID)
    }
    writeJSON(w, http.StatusOK, map[string]any{"hit": hit, "selection": s.Store.Selection()})
}

// SelectionHandler handles POST/DELETE /v1/selection.
func (s *Server) SelectionHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var body struct {
            OrderID string `json:"orderId"`
            TruckID string `json:"truckId"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        switch {
        case body.TruckID != "":
            s.Store.SelectTruck(body.TruckID)
        case body.OrderID != "":
            s.Store.SelectOrder(body.OrderID)
        default:
            s.Store.ClearSelection()
        }
        writeJSON(w, http.StatusOK, s.Store.Selection())
    case http.MethodDelete:
        s.Store.ClearSelection()
        writeJSON(w, http.StatusOK, s.Store.Selection())
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ModalCloseHandler handles POST /v1/modal/close.
func (s *Server) ModalCloseHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    s.Store.CloseModal()
    writeJSON(w, http.StatusOK, s.Store.Modal())
}

// ReportsHandler handles GET /v1/reports and GET /v1/reports/{id}.
func (s *Server) ReportsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if s.History == nil {
        writeProblem(w, http.StatusServiceUnavailable, "History unavailable", "", r.URL.Path)
        return
    }
    if id := strings.TrimPrefix(r.URL.Path, "/v1/reports/"); id != r.URL.Path && id != "" {
        rep, err := s.History.GetReport(r.Context(), id)
        if errors.Is(err, history.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Report not found", id, r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Get report failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, rep)
        return
    }
    var mode model.Mode
    if m := r.URL.Query().Get("mode"); m != "" {
        mode = model.Mode(m)
    }
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil { limit = n }
    }
    items, err := s.History.ListReports(r.Context(), mode, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List reports failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"ok": true, "build": buildinfo.Current()})
}

// ReadyHandler handles GET /readyz. The dashboard is ready as soon as its
// state container exists; remote connectivity surfaces per-slice instead.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if s.Store == nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not ready", "", r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
