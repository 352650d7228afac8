package model

// Canonical entity shapes shared by the runtime. Raw service payloads are
// normalized into these by internal/reconcile; nothing past that boundary
// sees alternate field names.

// Mode selects which of the two independent state slices is active.
type Mode string

const (
    ModeSimulation  Mode = "simulation"
    ModeOperational Mode = "operational"
)

// PlaybackStatus is the transport state of a run.
type PlaybackStatus string

const (
    StatusIdle    PlaybackStatus = "idle"
    StatusRunning PlaybackStatus = "running"
    StatusPaused  PlaybackStatus = "paused"
)

// GridPoint is a cell coordinate on the logical city grid.
type GridPoint struct {
    X int `json:"x"`
    Y int `json:"y"`
}

// TruckStatus is the canonical vehicle status enum.
type TruckStatus string

const (
    TruckAvailable   TruckStatus = "AVAILABLE"
    TruckDelivering  TruckStatus = "DELIVERING"
    TruckReturning   TruckStatus = "RETURNING"
    TruckBreakdown   TruckStatus = "BREAKDOWN"
    TruckUnavailable TruckStatus = "UNAVAILABLE"
    TruckMaintenance TruckStatus = "MAINTENANCE"
)

type Truck struct {
    ID                string      `json:"id"`
    Position          GridPoint   `json:"position"`
    CapacityAvailable float64     `json:"capacityAvailable"`
    FuelAvailable     float64     `json:"fuelAvailable"`
    Status            TruckStatus `json:"status"`
    FuelConsumed      float64     `json:"fuelConsumed"`
    AssignedOrderIDs  []string    `json:"assignedOrderIds,omitempty"`
    Route             []GridPoint `json:"route,omitempty"`
}

type Order struct {
    ID           string    `json:"id"`
    ClientID     string    `json:"clientId"`
    Position     GridPoint `json:"position"`
    VolumeM3     float64   `json:"volumeM3"`
    CreatedAtMin int       `json:"createdAtMin"`
    DueAtMin     int       `json:"dueAtMin"`
    Delivered    bool      `json:"delivered"`
    Discarded    bool      `json:"discarded"`
    InDelivery   bool      `json:"inDelivery"`
    Scheduled    bool      `json:"scheduled"`
}

// Pending reports whether the order still needs attention in list views.
// Delivered and discarded orders leave pending views but stay in reports.
func (o Order) Pending() bool { return !o.Delivered && !o.Discarded }

type Tank struct {
    ID                string    `json:"id"`
    Name              string    `json:"name"`
    Position          GridPoint `json:"position"`
    CapacityTotal     float64   `json:"capacityTotal"`
    CapacityAvailable float64   `json:"capacityAvailable"`
}

// TankLevel is the derived display state of a tank. It is never stored;
// recompute it from the capacity ratio whenever it is needed.
type TankLevel string

const (
    LevelNormal   TankLevel = "normal"
    LevelAlert    TankLevel = "alert"
    LevelCritical TankLevel = "critical"
)

// Level derives the display state from the available/total ratio.
func (t Tank) Level() TankLevel {
    if t.CapacityTotal <= 0 {
        return LevelCritical
    }
    ratio := t.CapacityAvailable / t.CapacityTotal
    switch {
    case ratio <= 0.2:
        return LevelCritical
    case ratio <= 0.4:
        return LevelAlert
    default:
        return LevelNormal
    }
}

type Blockage struct {
    ID          string      `json:"id"`
    Description string      `json:"description,omitempty"`
    StartMin    int         `json:"startMin"`
    EndMin      int         `json:"endMin"`
    Points      []GridPoint `json:"points"`
}

// ActiveAt reports whether the blockage is live at the given simulated
// minute. The window is half-open: [start, end).
func (b Blockage) ActiveAt(minute int) bool {
    return minute >= b.StartMin && minute < b.EndMin
}

// IncidentType classifies an injected vehicle breakdown.
type IncidentType string

const (
    IncidentT1 IncidentType = "T1"
    IncidentT2 IncidentType = "T2"
    IncidentT3 IncidentType = "T3"
)

// Turn is the 8-hour shift bucket a breakdown falls into.
type Turn string

const (
    TurnT1 Turn = "T1"
    TurnT2 Turn = "T2"
    TurnT3 Turn = "T3"
)

// TurnForMinute maps a minute-of-day to its shift turn:
// [0,480) T1, [480,960) T2, [960,1440) T3.
func TurnForMinute(minuteOfDay int) Turn {
    m := minuteOfDay % 1440
    if m < 0 {
        m += 1440
    }
    switch {
    case m < 480:
        return TurnT1
    case m < 960:
        return TurnT2
    default:
        return TurnT3
    }
}

type Breakdown struct {
    VehicleID  string       `json:"vehicleId"`
    Incident   IncidentType `json:"incidentType"`
    Turn       Turn         `json:"turn"`
    SimTimeMin int          `json:"simTimeMin"`
    // PendingTag marks an optimistic local append awaiting the next
    // authoritative snapshot. Empty for server-confirmed entries.
    PendingTag string `json:"-"`
}

// Scenario kinds accepted by the remote service.
const (
    ScenarioDaily    = "daily"
    ScenarioWeekly   = "weekly"
    ScenarioCollapse = "collapse"
)

// RunConfig is the scenario configuration a run is started with.
type RunConfig struct {
    Scenario  string `json:"scenario"`
    StartDate string `json:"startDate"`
    EndDate   string `json:"endDate,omitempty"`
}

// DurationMin returns the scenario length in simulated minutes, or 0 when
// the scenario is open-ended (operational and collapse runs end server-side).
func (c RunConfig) DurationMin() int {
    switch c.Scenario {
    case ScenarioDaily:
        return 1440
    case ScenarioWeekly:
        return 7 * 1440
    default:
        return 0
    }
}

// Snapshot is a normalized full point-in-time payload. Collections are
// always non-nil after reconciliation.
type Snapshot struct {
    CurrentTimeMinutes int         `json:"currentTimeMinutes"`
    Trucks             []Truck     `json:"trucks"`
    Orders             []Order     `json:"orders"`
    Tanks              []Tank      `json:"tanks"`
    Blockages          []Blockage  `json:"blockages"`
    Breakdowns         []Breakdown `json:"breakdowns"`
}

// RunReport summarizes a finished run for the end-of-run modal and the
// history store.
type RunReport struct {
    ID              string   `json:"id"`
    Mode            Mode     `json:"mode"`
    Scenario        string   `json:"scenario"`
    StartDate       string   `json:"startDate"`
    EndedAtMin      int      `json:"endedAtMin"`
    Outcome         string   `json:"outcome"` // completed | collapsed
    TotalOrders     int      `json:"totalOrders"`
    DeliveredOrders int      `json:"deliveredOrders"`
    DiscardedOrders int      `json:"discardedOrders"`
    DeliveredIDs    []string `json:"deliveredIds,omitempty"`
}
