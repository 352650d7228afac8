package history

import (
    "context"
    "errors"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "fleetdash/internal/model"
)

// Postgres keeps run reports in a single table. Schema is created on first
// connect; there is no separate migration step for one table.
type Postgres struct {
    pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil {
        return nil, err
    }
    p := &Postgres{pool: pool}
    if err := p.ensureSchema(ctx); err != nil {
        pool.Close()
        return nil, err
    }
    return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
    _, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS run_reports (
    id               TEXT PRIMARY KEY,
    mode             TEXT NOT NULL,
    scenario         TEXT NOT NULL DEFAULT '',
    start_date       TEXT NOT NULL DEFAULT '',
    ended_at_min     INT  NOT NULL,
    outcome          TEXT NOT NULL,
    total_orders     INT  NOT NULL,
    delivered_orders INT  NOT NULL,
    discarded_orders INT  NOT NULL,
    delivered_ids    TEXT[] NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
    return err
}

func (p *Postgres) SaveReport(ctx context.Context, r model.RunReport) (string, error) {
    if r.ID == "" {
        r.ID = uuid.New().String()
    }
    _, err := p.pool.Exec(ctx, `
INSERT INTO run_reports (id, mode, scenario, start_date, ended_at_min, outcome,
    total_orders, delivered_orders, discarded_orders, delivered_ids)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING`,
        r.ID, string(r.Mode), r.Scenario, r.StartDate, r.EndedAtMin, r.Outcome,
        r.TotalOrders, r.DeliveredOrders, r.DiscardedOrders, r.DeliveredIDs)
    if err != nil {
        return "", err
    }
    return r.ID, nil
}

func (p *Postgres) GetReport(ctx context.Context, id string) (model.RunReport, error) {
    row := p.pool.QueryRow(ctx, `
SELECT id, mode, scenario, start_date, ended_at_min, outcome,
       total_orders, delivered_orders, discarded_orders, delivered_ids
FROM run_reports WHERE id = $1`, id)
    r, err := scanReport(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return model.RunReport{}, ErrNotFound
    }
    return r, err
}

func (p *Postgres) ListReports(ctx context.Context, mode model.Mode, limit int) ([]model.RunReport, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.pool.Query(ctx, `
SELECT id, mode, scenario, start_date, ended_at_min, outcome,
       total_orders, delivered_orders, discarded_orders, delivered_ids
FROM run_reports
WHERE ($1 = '' OR mode = $1)
ORDER BY created_at DESC
LIMIT $2`, string(mode), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.RunReport{}
    for rows.Next() {
        r, err := scanReport(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (p *Postgres) Close() { p.pool.Close() }

type rowScanner interface {
    Scan(dest ...any) error
}

func scanReport(row rowScanner) (model.RunReport, error) {
    var r model.RunReport
    var mode string
    err := row.Scan(&r.ID, &mode, &r.Scenario, &r.StartDate, &r.EndedAtMin, &r.Outcome,
        &r.TotalOrders, &r.DeliveredOrders, &r.DiscardedOrders, &r.DeliveredIDs)
    r.Mode = model.Mode(mode)
    return r, err
}
