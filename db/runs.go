package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/canopy-platform/directory-services/models"
)

// StartRun records the beginning of a reconciliation pass.
func (d *DirectoryDB) StartRun(runID uuid.UUID, startedAt time.Time) error {
	_, err := d.DB.Exec(`INSERT INTO reconcile_runs (id, started_at) VALUES ($1, $2)`,
		runID, startedAt)
	if err != nil {
		return fmt.Errorf("error recording run start: %w", err)
	}
	return nil
}

// FinishRun stores the full report for a completed pass.
func (d *DirectoryDB) FinishRun(report *models.ReconcileReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("error encoding run report: %w", err)
	}
	_, err = d.DB.Exec(`UPDATE reconcile_runs SET ended_at = $2, report = $3 WHERE id = $1`,
		report.RunID, report.EndedAt, payload)
	if err != nil {
		return fmt.Errorf("error recording run finish: %w", err)
	}
	return nil
}

// GetRun retrieves one run's report, or nil when absent or unfinished.
func (d *DirectoryDB) GetRun(runID uuid.UUID) (*models.ReconcileReport, error) {
	var payload []byte
	err := d.DB.QueryRow(`SELECT report FROM reconcile_runs WHERE id = $1`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving run: %w", err)
	}
	if payload == nil {
		return nil, nil
	}

	var report models.ReconcileReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("error decoding run report: %w", err)
	}
	return &report, nil
}

// GetRuns retrieves the most recent run reports, newest first.
func (d *DirectoryDB) GetRuns(limit int) ([]models.ReconcileReport, error) {
	rows, err := d.DB.Query(`
		SELECT report FROM reconcile_runs
		WHERE report IS NOT NULL ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("error retrieving runs: %w", err)
	}
	defer rows.Close()

	var reports []models.ReconcileReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		var report models.ReconcileReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("error decoding run report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// RecordEvent appends one audit row. Events arrive from the pulsar
// consumer, not directly from the driver.
func (d *DirectoryDB) RecordEvent(runID uuid.UUID, provider, unit, action, detail string) error {
	_, err := d.DB.Exec(`
		INSERT INTO reconcile_events (run_id, provider, unit, action, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		runID, provider, unit, action, detail)
	if err != nil {
		return fmt.Errorf("error recording event: %w", err)
	}
	return nil
}
