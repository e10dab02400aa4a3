package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// IngestRun is the audit record of one upstream page fetch or archive file
// import.
type IngestRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "tecdottir", "archive"
	Endpoint          string // "measurements" or the archive file name
	StationID         sql.NullString
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	ParseErrors       sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// Parsed records how many records the payload held and how many were dropped.
func (r *IngestRun) Parsed(records, parseErrors int) {
	r.RecordsParsed = sql.NullInt64{Int64: int64(records), Valid: true}
	r.ParseErrors = sql.NullInt64{Int64: int64(parseErrors), Valid: parseErrors > 0}
}

// Finish marks the run successful unless err is set.
func (r *IngestRun) Finish(stored int, err error) {
	r.Success = err == nil
	r.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	if err != nil {
		r.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
}

// RunFilter narrows RecentIngestRuns. Empty strings match everything.
type RunFilter struct {
	Source    string
	StationID string
	Limit     int
}

func (s *Store) StartIngestRun(ctx context.Context, source, endpoint, stationID string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Endpoint:  endpoint,
		StationID: sql.NullString{String: stationID, Valid: stationID != ""},
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (started_at, source, endpoint, station_id, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Endpoint, run.StationID)
	if err != nil {
		return nil, unavailable(err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun stamps the finish time and writes the run's counters.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?, http_status = ?, response_size_bytes = ?,
			records_parsed = ?, records_stored = ?, parse_errors = ?,
			success = ?, error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes,
		run.RecordsParsed, run.RecordsStored, run.ParseErrors,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentIngestRuns returns matching runs, newest first.
func (s *Store) RecentIngestRuns(ctx context.Context, f RunFilter) ([]IngestRun, error) {
	var where []string
	var args []any
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.StationID != "" {
		where = append(where, "station_id = ?")
		args = append(args, f.StationID)
	}
	query := `SELECT id, started_at, finished_at, source, endpoint, station_id,
		http_status, response_size_bytes, records_parsed, records_stored,
		parse_errors, success, error_message
		FROM ingest_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
			&r.StationID, &r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed,
			&r.RecordsStored, &r.ParseErrors, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
