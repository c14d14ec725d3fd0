package storage

import (
	"database/sql"
	"time"

	"github.com/codewithboateng/jitprof/internal/ir"
)

// ListRuns returns a lightweight list of runs with warning counts.
func (db *DB) ListRuns(limit, offset int) ([]RunRow, error) {
	const q = `
		SELECT r.id, r.started_at, r.source, r.ir_version,
		       (SELECT COUNT(1) FROM warnings w WHERE w.run_id = r.id) AS warnings
		  FROM runs r
		 ORDER BY r.started_at DESC, r.id DESC
		 LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var rr RunRow
		var startedAtStr string
		if err := rows.Scan(&rr.ID, &startedAtStr, &rr.Source, &rr.IRVersion, &rr.Warnings); err != nil {
			return nil, err
		}
		// Parse RFC3339Nano first, fallback to RFC3339
		if t, err := time.Parse(time.RFC3339Nano, startedAtStr); err == nil {
			rr.StartedAt = t
		} else if t2, err2 := time.Parse(time.RFC3339, startedAtStr); err2 == nil {
			rr.StartedAt = t2
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// ListWarnings returns the warnings of a run with at least minCount
// occurrences, worst first.
func (db *DB) ListWarnings(runID string, minCount int) ([]ir.Warning, error) {
	const q = `
		SELECT id, rule_id, iid, location, message, count
		  FROM warnings
		 WHERE run_id = ? AND count >= ?
		 ORDER BY count DESC, rule_id, iid, id`
	rows, err := db.conn.Query(q, runID, minCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ir.Warning
	for rows.Next() {
		var w ir.Warning
		if err := rows.Scan(&w.ID, &w.RuleID, &w.IID, &w.Location, &w.Message, &w.Count); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (db *DB) HasRun(id string) (bool, error) {
	const q = `SELECT 1 FROM runs WHERE id = ? LIMIT 1`
	var one int
	err := db.conn.QueryRow(q, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
