package reconcile

import (
    "encoding/json"
    "reflect"
    "testing"

    "fleetdash/internal/model"
)

func TestNormalizeDefaultsMissingCollections(t *testing.T) {
    var raw RawSnapshot
    if err := json.Unmarshal([]byte(`{"currentTimeMinutes":42}`), &raw); err != nil {
        t.Fatalf("unmarshal: %v", err)
    }
    snap := Normalize(raw)
    if snap.CurrentTimeMinutes != 42 { t.Fatalf("time: %d", snap.CurrentTimeMinutes) }
    if snap.Trucks == nil || len(snap.Trucks) != 0 { t.Fatalf("trucks: %#v", snap.Trucks) }
    if snap.Orders == nil || len(snap.Orders) != 0 { t.Fatalf("orders: %#v", snap.Orders) }
    if snap.Tanks == nil || len(snap.Tanks) != 0 { t.Fatalf("tanks: %#v", snap.Tanks) }
    if snap.Blockages == nil || len(snap.Blockages) != 0 { t.Fatalf("blockages: %#v", snap.Blockages) }
    if raw.HasBreakdowns() { t.Fatal("absent breakdowns should not count as authoritative") }
}

func TestNormalizeTankSynthesizesIDAndName(t *testing.T) {
    avail := 30.0
    raw := RawSnapshot{Tanks: []RawTank{
        {Position: model.GridPoint{X: 5, Y: 6}, CapacityTotal: 100, CapacidadActual: &avail},
        {ID: "principal", Name: "Planta", CapacityTotal: 50},
    }}
    snap := Normalize(raw)
    if snap.Tanks[0].ID != "tanque-0" || snap.Tanks[0].Name != "Tanque 1" {
        t.Fatalf("synthesized tank: %+v", snap.Tanks[0])
    }
    if snap.Tanks[0].CapacityAvailable != 30 { t.Fatalf("capacidadActual not mapped: %+v", snap.Tanks[0]) }
    if snap.Tanks[1].ID != "principal" || snap.Tanks[1].Name != "Planta" {
        t.Fatalf("explicit tank overwritten: %+v", snap.Tanks[1])
    }
    // deterministic for a fixed index
    again := Normalize(raw)
    if again.Tanks[0].ID != "tanque-0" || again.Tanks[0].Name != "Tanque 1" {
        t.Fatalf("synthesis not deterministic: %+v", again.Tanks[0])
    }
}

func TestNormalizeTruckStatusAliases(t *testing.T) {
    cap1 := 10.0
    raw := RawSnapshot{Trucks: []RawTruck{
        {ID: "TA01", Estado: "delivering", CapacidadDisp: &cap1},
        {ID: "TB02", Status: "BREAKDOWN"},
        {ID: "TC03"},
    }}
    snap := Normalize(raw)
    if snap.Trucks[0].Status != model.TruckDelivering { t.Fatalf("estado alias: %s", snap.Trucks[0].Status) }
    if snap.Trucks[0].CapacityAvailable != 10 { t.Fatalf("capacidadDisponible alias: %+v", snap.Trucks[0]) }
    if snap.Trucks[1].Status != model.TruckBreakdown { t.Fatalf("status: %s", snap.Trucks[1].Status) }
    if snap.Trucks[2].Status != model.TruckAvailable { t.Fatalf("default status: %s", snap.Trucks[2].Status) }
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
    raw := RawSnapshot{
        Trucks: []RawTruck{{ID: "TA01", Route: []model.GridPoint{{X: 1, Y: 1}}}},
        Tanks:  []RawTank{{CapacityTotal: 100}},
        Blockages: []RawBlockage{{ID: "b1", Points: []model.GridPoint{{X: 2, Y: 2}}}},
    }
    before, _ := json.Marshal(raw)
    snap := Normalize(raw)
    snap.Trucks[0].Route[0] = model.GridPoint{X: 9, Y: 9}
    snap.Blockages[0].Points[0] = model.GridPoint{X: 9, Y: 9}
    snap.Tanks[0].ID = "mutated"
    after, _ := json.Marshal(raw)
    if string(before) != string(after) {
        t.Fatalf("input mutated:\n%s\n%s", before, after)
    }
}

func TestNormalizeIsDeterministic(t *testing.T) {
    raw := RawSnapshot{
        CurrentTimeMinutes: 7,
        Trucks:             []RawTruck{{ID: "TA01", Estado: "returning"}},
        Orders:             []RawOrder{{ID: "o1", VolumeM3: 3, DueAtMin: 300}},
        Tanks:              []RawTank{{CapacityTotal: 10}},
        Breakdowns:         []RawBreakdown{{VehicleID: "TA01", Incident: "t2", Turn: "t1"}},
    }
    a := Normalize(raw)
    b := Normalize(raw)
    if !reflect.DeepEqual(a, b) {
        t.Fatalf("normalize not deterministic:\n%+v\n%+v", a, b)
    }
    if a.Breakdowns[0].Incident != model.IncidentT2 || a.Breakdowns[0].Turn != model.TurnT1 {
        t.Fatalf("breakdown casing: %+v", a.Breakdowns[0])
    }
}
