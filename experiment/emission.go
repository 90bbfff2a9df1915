package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// EmissionRecord is one per-step per-vehicle row, the same data the original
// simulator emission output carries plus the commands we issued.
type EmissionRecord struct {
	RunID         string
	Tick          uint64
	SimTime       float64
	VehicleID     string
	Speed         float64
	Headway       float64
	Lane          int
	AccelCmd      float64
	LaneChangeCmd int
}

// EmissionStore persists emission records to sqlite.
type EmissionStore struct {
	db *sql.DB
}

const emissionSchema = `
CREATE TABLE IF NOT EXISTS emissions (
	run_id          TEXT    NOT NULL,
	tick            INTEGER NOT NULL,
	sim_time        REAL    NOT NULL,
	vehicle_id      TEXT    NOT NULL,
	speed           REAL    NOT NULL,
	headway         REAL    NOT NULL,
	lane            INTEGER NOT NULL,
	accel_cmd       REAL    NOT NULL,
	lane_change_cmd INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emissions_run ON emissions(run_id, tick);
`

// OpenEmissionStore opens (creating if needed) the emission database at path.
func OpenEmissionStore(path string) (*EmissionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open emission db: %w", err)
	}
	if _, err := db.Exec(emissionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create emission schema: %w", err)
	}
	return &EmissionStore{db: db}, nil
}

func (s *EmissionStore) Close() error { return s.db.Close() }

// InsertBatch writes one step's records in a single transaction.
func (s *EmissionStore) InsertBatch(recs []EmissionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO emissions (
			run_id, tick, sim_time, vehicle_id, speed, headway, lane,
			accel_cmd, lane_change_cmd, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, r := range recs {
		if _, err := stmt.Exec(
			r.RunID, int64(r.Tick), r.SimTime, r.VehicleID, r.Speed, r.Headway,
			r.Lane, r.AccelCmd, r.LaneChangeCmd, now,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// CountByRun returns the number of rows stored for a run.
func (s *EmissionStore) CountByRun(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM emissions WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// ExportCSV streams one run's emission rows as CSV, ordered by tick then
// vehicle.
func (s *EmissionStore) ExportCSV(runID string, w io.Writer) error {
	rows, err := s.db.Query(`
		SELECT tick, sim_time, vehicle_id, speed, headway, lane, accel_cmd, lane_change_cmd
		FROM emissions WHERE run_id = ?
		ORDER BY tick, vehicle_id`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"tick", "time", "id", "speed", "headway", "lane", "accel_cmd", "lane_change_cmd",
	}); err != nil {
		return err
	}
	for rows.Next() {
		var (
			tick          int64
			simTime       float64
			vehicleID     string
			speed         float64
			headway       float64
			lane          int
			accelCmd      float64
			laneChangeCmd int
		)
		if err := rows.Scan(&tick, &simTime, &vehicleID, &speed, &headway, &lane, &accelCmd, &laneChangeCmd); err != nil {
			return err
		}
		rec := []string{
			strconv.FormatInt(tick, 10),
			strconv.FormatFloat(simTime, 'f', 3, 64),
			vehicleID,
			strconv.FormatFloat(speed, 'f', 3, 64),
			strconv.FormatFloat(headway, 'f', 3, 64),
			strconv.Itoa(lane),
			strconv.FormatFloat(accelCmd, 'f', 4, 64),
			strconv.Itoa(laneChangeCmd),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
