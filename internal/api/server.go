package api

import (
    "context"
    "net/http"

    "fleetdash/internal/grid"
    "fleetdash/internal/history"
    "fleetdash/internal/model"
    "fleetdash/internal/state"
)

// Playback is the per-mode transport surface the handlers need.
// *playback.Driver satisfies it; tests substitute a fake.
type Playback interface {
    Start(ctx context.Context, cfg model.RunConfig) error
    Pause(ctx context.Context) error
    Resume(ctx context.Context) error
    Stop(ctx context.Context) error
    StepForward(ctx context.Context) error
    SetSpeed(ctx context.Context, factor float64) error
    InjectBreakdown(ctx context.Context, vehicleID string, incident model.IncidentType) (model.Breakdown, error)
}

type Server struct {
    Store    *state.Store
    Drivers  map[model.Mode]Playback
    History  history.Store
    Engine   *grid.Engine
    Viewport *grid.Controller
}

func NewServer(st *state.Store, drivers map[model.Mode]Playback, hist history.Store, eng *grid.Engine) *Server {
    return &Server{
        Store:    st,
        Drivers:  drivers,
        History:  hist,
        Engine:   eng,
        Viewport: grid.NewController(eng),
    }
}

// modeFrom resolves the mode query parameter, defaulting to simulation.
func (s *Server) modeFrom(r *http.Request) (model.Mode, bool) {
    switch m := r.URL.Query().Get("mode"); m {
    case "", string(model.ModeSimulation):
        return model.ModeSimulation, true
    case string(model.ModeOperational):
        return model.ModeOperational, true
    default:
        return "", false
    }
}

func (s *Server) driver(mode model.Mode) Playback {
    return s.Drivers[mode]
}
