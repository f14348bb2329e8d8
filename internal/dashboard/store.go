// Package dashboard serves pre-aggregated spreadsheet report data. Uploads
// replace the current dataset; before any upload the service answers with
// empty aggregates rather than an error.
package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"authgate.org/internal/ids"
)

// ErrNoReport indicates no dataset has been uploaded yet.
var ErrNoReport = errors.New("dashboard: no report uploaded")

// Totals is the aggregate summary block of a dataset.
type Totals struct {
	Proyectos int     `json:"proyectos"`
	Entidades int     `json:"entidades"`
	Monto     float64 `json:"monto"`
}

// Dataset is the aggregated report payload, stored verbatim as JSONB and
// served back to the dashboard frontend.
type Dataset struct {
	Proyectos []map[string]any `json:"proyectos"`
	Entidades []string         `json:"entidades"`
	Anios     []int            `json:"años"`
	Totales   Totals           `json:"totales"`
}

// EmptyDataset returns the zero dataset with non-nil collections, the shape
// served before any upload.
func EmptyDataset() Dataset {
	return Dataset{
		Proyectos: []map[string]any{},
		Entidades: []string{},
		Anios:     []int{},
	}
}

// Store persists datasets in the dashboard_reports table.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over an existing handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Latest returns the most recently uploaded dataset, or ErrNoReport.
func (s *Store) Latest(ctx context.Context) (Dataset, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		select payload from dashboard_reports
		order by created_at desc
		limit 1
	`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNoReport
	}
	if err != nil {
		return Dataset{}, err
	}
	var ds Dataset
	if err := json.Unmarshal(payload, &ds); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// Save stores a new dataset version attributed to the uploading user.
func (s *Store) Save(ctx context.Context, ds Dataset, uploadedBy string) error {
	payload, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into dashboard_reports (id, payload, uploaded_by)
		values ($1, $2, $3)
	`, ids.New(), payload, uploadedBy)
	return err
}
