package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the dashboard runtime
    Registry = prometheus.NewRegistry()
    // StepCalls counts remote step calls by mode and outcome
    StepCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "playback_step_calls_total", Help: "Remote step calls by mode and outcome."},
        []string{"mode", "outcome"},
    )
    // TransportErrors counts remote call failures by operation and error kind
    TransportErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "transport_errors_total", Help: "Remote call failures by op and kind."},
        []string{"op", "kind"},
    )
    // Reconciliations counts applied snapshots per mode
    Reconciliations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "snapshot_reconciliations_total", Help: "Snapshots applied to the state container."},
        []string{"mode"},
    )
    // PushEvents counts push events received by type
    PushEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "push_events_total", Help: "Push events received by type."},
        []string{"type"},
    )
    // PlaybackStatus reflects the current status per mode (0 idle, 1 running, 2 paused)
    PlaybackStatus = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "playback_status", Help: "Playback status per mode: 0 idle, 1 running, 2 paused."},
        []string{"mode"},
    )
    // StepLatency records remote step durations in seconds
    StepLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "playback_step_duration_seconds", Help: "Remote step duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"mode"},
    )
)

// RegisterDefault registers collectors to the runtime registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(StepCalls)
        Registry.MustRegister(TransportErrors)
        Registry.MustRegister(Reconciliations)
        Registry.MustRegister(PushEvents)
        Registry.MustRegister(PlaybackStatus)
        Registry.MustRegister(StepLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
