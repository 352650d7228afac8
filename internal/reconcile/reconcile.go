package reconcile

import (
    "fmt"
    "strings"

    "fleetdash/internal/model"
)

// Raw payload shapes as the remote service emits them. The service has grown
// near-duplicate field names over time (estado vs status, capacidadActual vs
// capacidadDisponible); every alias is absorbed here and only the canonical
// schema in internal/model leaves this package.

type RawSnapshot struct {
    CurrentTimeMinutes int            `json:"currentTimeMinutes"`
    Trucks             []RawTruck     `json:"trucks"`
    Orders             []RawOrder     `json:"orders"`
    Tanks              []RawTank      `json:"tanks"`
    Blockages          []RawBlockage  `json:"blockages"`
    Breakdowns         []RawBreakdown `json:"breakdowns"`
}

// HasBreakdowns distinguishes "field absent" from "empty list". Breakdowns
// are append-only locally, so the state container only replaces them when
// the server actually sent an authoritative list.
func (s RawSnapshot) HasBreakdowns() bool { return s.Breakdowns != nil }

type RawTruck struct {
    ID                string          `json:"id"`
    Position          model.GridPoint `json:"position"`
    Status            string          `json:"status"`
    Estado            string          `json:"estado"`
    CapacityAvailable *float64        `json:"capacityAvailable"`
    CapacidadDisp     *float64        `json:"capacidadDisponible"`
    FuelAvailable     float64         `json:"fuelAvailable"`
    FuelConsumed      float64         `json:"fuelConsumed"`
    AssignedOrderIDs  []string        `json:"assignedOrderIds"`
    Route             []model.GridPoint `json:"route"`
}

type RawOrder struct {
    ID           string          `json:"id"`
    ClientID     string          `json:"clientId"`
    Position     model.GridPoint `json:"position"`
    VolumeM3     float64         `json:"volumeM3"`
    CreatedAtMin int             `json:"createdAtMin"`
    DueAtMin     int             `json:"dueAtMin"`
    Delivered    bool            `json:"delivered"`
    Discarded    bool            `json:"discarded"`
    InDelivery   bool            `json:"inDelivery"`
    Scheduled    bool            `json:"scheduled"`
}

type RawTank struct {
    ID            string          `json:"id"`
    Name          string          `json:"name"`
    Position      model.GridPoint `json:"position"`
    CapacityTotal float64         `json:"capacityTotal"`
    // Either of these may carry the available capacity.
    CapacityAvailable *float64 `json:"capacityAvailable"`
    CapacidadActual   *float64 `json:"capacidadActual"`
    CapacidadDisp     *float64 `json:"capacidadDisponible"`
}

type RawBlockage struct {
    ID          string            `json:"id"`
    Description string            `json:"description"`
    StartMin    int               `json:"startMin"`
    EndMin      int               `json:"endMin"`
    Points      []model.GridPoint `json:"points"`
}

type RawBreakdown struct {
    VehicleID  string `json:"vehicleId"`
    Incident   string `json:"incidentType"`
    Turn       string `json:"turn"`
    SimTimeMin int    `json:"simTimeMin"`
}

// Normalize maps a raw snapshot into the canonical schema. It is pure: the
// same payload always yields the same result and the input is never mutated.
// Absent collections default to empty so a partial payload degrades
// gracefully instead of crashing the view.
func Normalize(raw RawSnapshot) model.Snapshot {
    snap := model.Snapshot{
        CurrentTimeMinutes: raw.CurrentTimeMinutes,
        Trucks:             make([]model.Truck, 0, len(raw.Trucks)),
        Orders:             make([]model.Order, 0, len(raw.Orders)),
        Tanks:              make([]model.Tank, 0, len(raw.Tanks)),
        Blockages:          make([]model.Blockage, 0, len(raw.Blockages)),
        Breakdowns:         make([]model.Breakdown, 0, len(raw.Breakdowns)),
    }
    for _, t := range raw.Trucks {
        snap.Trucks = append(snap.Trucks, normalizeTruck(t))
    }
    for _, o := range raw.Orders {
        snap.Orders = append(snap.Orders, model.Order(o))
    }
    for i, t := range raw.Tanks {
        snap.Tanks = append(snap.Tanks, normalizeTank(t, i))
    }
    for _, b := range raw.Blockages {
        pts := make([]model.GridPoint, len(b.Points))
        copy(pts, b.Points)
        snap.Blockages = append(snap.Blockages, model.Blockage{
            ID:          b.ID,
            Description: b.Description,
            StartMin:    b.StartMin,
            EndMin:      b.EndMin,
            Points:      pts,
        })
    }
    for _, bd := range raw.Breakdowns {
        snap.Breakdowns = append(snap.Breakdowns, model.Breakdown{
            VehicleID:  bd.VehicleID,
            Incident:   model.IncidentType(strings.ToUpper(bd.Incident)),
            Turn:       model.Turn(strings.ToUpper(bd.Turn)),
            SimTimeMin: bd.SimTimeMin,
        })
    }
    return snap
}

func normalizeTruck(t RawTruck) model.Truck {
    out := model.Truck{
        ID:            t.ID,
        Position:      t.Position,
        FuelAvailable: t.FuelAvailable,
        FuelConsumed:  t.FuelConsumed,
        Status:        normalizeTruckStatus(t.Status, t.Estado),
    }
    switch {
    case t.CapacityAvailable != nil:
        out.CapacityAvailable = *t.CapacityAvailable
    case t.CapacidadDisp != nil:
        out.CapacityAvailable = *t.CapacidadDisp
    }
    if len(t.AssignedOrderIDs) > 0 {
        out.AssignedOrderIDs = make([]string, len(t.AssignedOrderIDs))
        copy(out.AssignedOrderIDs, t.AssignedOrderIDs)
    }
    if len(t.Route) > 0 {
        out.Route = make([]model.GridPoint, len(t.Route))
        copy(out.Route, t.Route)
    }
    return out
}

func normalizeTruckStatus(status, estado string) model.TruckStatus {
    v := status
    if v == "" {
        v = estado
    }
    if v == "" {
        return model.TruckAvailable
    }
    return model.TruckStatus(strings.ToUpper(v))
}

func normalizeTank(t RawTank, idx int) model.Tank {
    out := model.Tank{
        ID:            t.ID,
        Name:          t.Name,
        Position:      t.Position,
        CapacityTotal: t.CapacityTotal,
    }
    if out.ID == "" {
        out.ID = fmt.Sprintf("tanque-%d", idx)
    }
    if out.Name == "" {
        out.Name = fmt.Sprintf("Tanque %d", idx+1)
    }
    switch {
    case t.CapacityAvailable != nil:
        out.CapacityAvailable = *t.CapacityAvailable
    case t.CapacidadDisp != nil:
        out.CapacityAvailable = *t.CapacidadDisp
    case t.CapacidadActual != nil:
        out.CapacityAvailable = *t.CapacidadActual
    }
    return out
}
