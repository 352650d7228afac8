package history

import (
    "context"
    "errors"

    "fleetdash/internal/model"
)

// Store persists end-of-run reports so delivered/discarded orders stay
// available after the live slices are reset.
type Store interface {
    SaveReport(ctx context.Context, r model.RunReport) (id string, err error)
    GetReport(ctx context.Context, id string) (model.RunReport, error)
    ListReports(ctx context.Context, mode model.Mode, limit int) ([]model.RunReport, error)
}

var ErrNotFound = errors.New("not found")
