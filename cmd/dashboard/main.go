package main

import (
    "context"
    "fmt"
    "log"
    "net/http"
    "os"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "fleetdash/internal/api"
    "fleetdash/internal/config"
    "fleetdash/internal/grid"
    "fleetdash/internal/history"
    "fleetdash/internal/metrics"
    "fleetdash/internal/model"
    "fleetdash/internal/playback"
    "fleetdash/internal/remote"
    "fleetdash/internal/state"
)

func main() {
    cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    metrics.RegisterDefault()

    st := state.New()
    eng := grid.NewEngine(cfg.Grid)
    client := remote.NewClient(cfg.ServiceURL, cfg.RequestTimeout())

    // History store: Postgres when a DSN is configured, in-memory otherwise.
    var hist history.Store
    if strings.TrimSpace(cfg.DatabaseURL) != "" {
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        pg, err := history.NewPostgres(ctx, cfg.DatabaseURL)
        cancel()
        if err != nil {
            log.Fatalf("postgres: %v", err)
        }
        defer pg.Close()
        hist = pg
    } else {
        hist = history.NewMemory()
    }

    // Push-event source for the operational slice: Redis pub/sub when
    // configured, otherwise a websocket to the remote service. Simulation
    // playback always polls; its cadence is the replay clock.
    var source remote.Source
    if cfg.RedisURL != "" {
        rs, err := remote.NewRedisSource(cfg.RedisURL)
        if err != nil {
            log.Fatalf("redis: %v", err)
        }
        source = rs
    } else {
        ws := remote.NewWSSource(wsURL(cfg.ServiceURL))
        ws.Connect(context.Background())
        source = ws
    }
    defer source.Close()

    sim := playback.New(model.ModeSimulation, st, client, playback.Options{
        Interval: cfg.PollInterval(),
        History:  hist,
    })
    defer sim.Close()
    ops := playback.New(model.ModeOperational, st, client, playback.Options{
        Interval: cfg.PollInterval(),
        Strategy: &playback.EventStrategy{Source: source},
        History:  hist,
    })
    defer ops.Close()

    // Join an already-live operational run, if any. Failure is not fatal;
    // the slice carries the error and the user can retry from the UI.
    {
        ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
        if err := ops.AttachActive(ctx); err != nil {
            log.Printf("attach active run: %v", err)
        }
        cancel()
    }

    srv := api.NewServer(st, map[model.Mode]api.Playback{
        model.ModeSimulation:  sim,
        model.ModeOperational: ops,
    }, hist, eng)
    defer srv.Viewport.Close()

    mux := http.NewServeMux()

    // State
    mux.HandleFunc("/v1/state", srv.StateHandler)
    mux.HandleFunc("/v1/events/stream", srv.EventsStreamHandler)
    mux.HandleFunc("/ws", srv.WSHandler)

    // Transport
    mux.HandleFunc("/v1/transport/", srv.TransportHandler)
    mux.HandleFunc("/v1/breakdowns", srv.BreakdownsHandler)

    // Map
    mux.HandleFunc("/v1/viewport/", srv.ViewportHandler)
    mux.HandleFunc("/v1/frame", srv.FrameHandler)
    mux.HandleFunc("/v1/map/click", srv.ClickHandler)
    mux.HandleFunc("/v1/selection", srv.SelectionHandler)
    mux.HandleFunc("/v1/modal/close", srv.ModalCloseHandler)

    // Reports
    mux.HandleFunc("/v1/reports", srv.ReportsHandler)
    mux.HandleFunc("/v1/reports/", srv.ReportsHandler)

    // Health and metrics
    mux.HandleFunc("/healthz", srv.HealthHandler)
    mux.HandleFunc("/readyz", srv.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := fmt.Sprintf(":%d", cfg.Port)
    httpSrv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }
    log.Printf("dashboard listening on %s (service %s)", addr, cfg.ServiceURL)
    if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

// wsURL derives the push-event websocket endpoint from the service base URL.
func wsURL(base string) string {
    u := strings.TrimSuffix(base, "/")
    u = strings.Replace(u, "https://", "wss://", 1)
    u = strings.Replace(u, "http://", "ws://", 1)
    return u + "/ws/events"
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
