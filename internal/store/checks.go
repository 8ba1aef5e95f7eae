package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/model"
)

// RecordCheck appends one check_history row and updates the item's
// non-status summary fields (last_checked_at, last_confidence,
// consecutive_error_count, fingerprint_hash) in the same transaction,
// preserving the append-only + summary invariant from §3 and §4.1.
//
// It deliberately never touches items.last_status: the raw fused verdict
// (which may be "inconclusive", never a valid committed status per §3) is
// not the committed status. Only a transition.Evaluator decision commits a
// new status, via UpdateItemAfterCheck.
func (s *Store) RecordCheck(ctx context.Context, rec model.CheckRecord) error {
	perDetector, err := json.Marshal(rec.PerDetectorResults)
	if err != nil {
		return fmt.Errorf("store: marshal per-detector results: %w", err)
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		q := s.rebind(`INSERT INTO check_history
			(check_id, item_id, check_time, verdict, confidence, per_detector_results,
			 http_status, latency_ms, error_kind, error_message, fingerprint_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`)
		if _, err := tx.ExecContext(ctx, q,
			rec.CheckID.String(), rec.ItemID.String(), rec.CheckTime.UTC().Format(timeLayout),
			string(rec.Verdict), rec.Confidence, string(perDetector),
			rec.HTTPStatus, rec.LatencyMS, string(rec.ErrorKind), rec.ErrorMessage, rec.FingerprintHash); err != nil {
			return fmt.Errorf("store: insert check_history: %w", err)
		}

		consecutiveErrors := 0
		if rec.Verdict == model.StatusError {
			var prev int
			q2 := s.rebind(`SELECT consecutive_error_count FROM items WHERE item_id=$1`)
			if err := tx.QueryRowContext(ctx, q2, rec.ItemID.String()).Scan(&prev); err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("store: read consecutive_error_count: %w", err)
			}
			consecutiveErrors = prev + 1
		}

		q3 := s.rebind(`UPDATE items SET last_checked_at=$1, last_confidence=$2,
			consecutive_error_count=$3, fingerprint_hash=$4 WHERE item_id=$5`)
		if _, err := tx.ExecContext(ctx, q3, rec.CheckTime.UTC().Format(timeLayout),
			rec.Confidence, consecutiveErrors, rec.FingerprintHash, rec.ItemID.String()); err != nil {
			return fmt.Errorf("store: update item summary: %w", err)
		}
		return nil
	})
}

// RecentHistory returns the most recent `limit` check records for itemID,
// newest first.
func (s *Store) RecentHistory(ctx context.Context, itemID uuid.UUID, limit int) ([]model.CheckRecord, error) {
	q := s.rebind(`SELECT check_id, item_id, check_time, verdict, confidence, per_detector_results,
		http_status, latency_ms, error_kind, error_message, fingerprint_hash
		FROM check_history WHERE item_id=$1 ORDER BY check_time DESC LIMIT $2`)
	rows, err := s.db.QueryContext(ctx, q, itemID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent history: %w", err)
	}
	defer rows.Close()

	var out []model.CheckRecord
	for rows.Next() {
		var rec model.CheckRecord
		var checkID, itemIDStr, checkTime, verdict, perDetector, errorKind string
		if err := rows.Scan(&checkID, &itemIDStr, &checkTime, &verdict, &rec.Confidence, &perDetector,
			&rec.HTTPStatus, &rec.LatencyMS, &errorKind, &rec.ErrorMessage, &rec.FingerprintHash); err != nil {
			return nil, fmt.Errorf("store: scan check_history row: %w", err)
		}
		rec.CheckID = uuid.MustParse(checkID)
		rec.ItemID = uuid.MustParse(itemIDStr)
		rec.CheckTime = parseTime(checkTime)
		rec.Verdict = model.Status(verdict)
		rec.ErrorKind = model.ErrorKind(errorKind)
		var perDet map[string]model.DetectorResult
		if err := json.Unmarshal([]byte(perDetector), &perDet); err == nil {
			rec.PerDetectorResults = perDet
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneHistory deletes check_history rows older than cutoff, for the
// `prune` CLI subcommand (§6).
func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.rebind(`DELETE FROM check_history WHERE check_time < $1`)
	res, err := s.db.ExecContext(ctx, q, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("store: prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune history rows affected: %w", err)
	}
	return n, nil
}
