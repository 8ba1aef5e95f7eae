package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/model"
)

// CreateItem inserts a new monitored item. It returns ErrDuplicateURL if the
// canonical URL already exists anywhere in the catalog, matching the
// catalog-wide uniqueness invariant in §3/§4.2.
func (s *Store) CreateItem(ctx context.Context, it model.Item) error {
	q := s.rebind(`INSERT INTO items
		(item_id, owner_id, is_global, name, url, vendor_tag, config_text, enabled,
		 created_at, last_checked_at, last_status, last_confidence,
		 consecutive_error_count, fingerprint_hash, api_probe_endpoint)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`)

	_, err := s.db.ExecContext(ctx, q,
		it.ItemID.String(), it.OwnerID, boolToInt(it.IsGlobal), it.Name, it.URL,
		it.VendorTag, it.ConfigText, boolToInt(it.Enabled),
		it.CreatedAt.UTC().Format(timeLayout), nullTime(it.LastCheckedAt),
		string(it.LastStatus), it.LastConfidence, it.ConsecutiveErrorCount,
		it.FingerprintHash, it.APIProbeEndpoint)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return fmt.Errorf("store: create item: %w", err)
	}
	return nil
}

// GetItem fetches one item by id.
func (s *Store) GetItem(ctx context.Context, itemID uuid.UUID) (model.Item, error) {
	q := s.rebind(`SELECT item_id, owner_id, is_global, name, url, vendor_tag, config_text,
		enabled, created_at, last_checked_at, last_status, last_confidence,
		consecutive_error_count, fingerprint_hash, api_probe_endpoint
		FROM items WHERE item_id = $1`)
	row := s.db.QueryRowContext(ctx, q, itemID.String())
	return scanItem(row)
}

// ListItemsByOwner lists every item visible to ownerID: its own items plus
// every globally-shared item (§4.2).
func (s *Store) ListItemsByOwner(ctx context.Context, ownerID string) ([]model.Item, error) {
	q := s.rebind(`SELECT item_id, owner_id, is_global, name, url, vendor_tag, config_text,
		enabled, created_at, last_checked_at, last_status, last_confidence,
		consecutive_error_count, fingerprint_hash, api_probe_endpoint
		FROM items WHERE owner_id = $1 OR is_global = 1 ORDER BY created_at`)
	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list items by owner: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListAllItems returns every item in the catalog, for admin listing and the
// prune subcommand.
func (s *Store) ListAllItems(ctx context.Context) ([]model.Item, error) {
	q := `SELECT item_id, owner_id, is_global, name, url, vendor_tag, config_text,
		enabled, created_at, last_checked_at, last_status, last_confidence,
		consecutive_error_count, fingerprint_hash, api_probe_endpoint
		FROM items ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list all items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListDueItems returns every enabled item whose last_checked_at is older
// than `since` (or unset), the scheduler's due-set query (§4.6).
func (s *Store) ListDueItems(ctx context.Context, since time.Time) ([]model.Item, error) {
	q := s.rebind(`SELECT item_id, owner_id, is_global, name, url, vendor_tag, config_text,
		enabled, created_at, last_checked_at, last_status, last_confidence,
		consecutive_error_count, fingerprint_hash, api_probe_endpoint
		FROM items
		WHERE enabled = 1 AND (last_checked_at IS NULL OR last_checked_at <= $1)
		ORDER BY last_checked_at IS NOT NULL, last_checked_at`)
	rows, err := s.db.QueryContext(ctx, q, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("store: list due items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateItemAfterCheck commits a new last_status, the only way
// items.last_status ever changes (§3: last_status is one of unknown,
// available, unavailable, error — never inconclusive). Callers must only
// invoke this with a transition.Evaluator Decision's ToStatus, never a raw
// detector verdict.
func (s *Store) UpdateItemAfterCheck(ctx context.Context, itemID uuid.UUID, checkedAt time.Time, status model.Status, confidence float64, consecutiveErrors int, fingerprintHash string) error {
	if status == model.StatusInconclusive {
		return fmt.Errorf("store: refusing to commit inconclusive as last_status for item %s", itemID)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		q := s.rebind(`UPDATE items SET last_checked_at=$1, last_status=$2, last_confidence=$3,
			consecutive_error_count=$4, fingerprint_hash=$5 WHERE item_id=$6`)
		_, err := tx.ExecContext(ctx, q, checkedAt.UTC().Format(timeLayout), string(status), confidence, consecutiveErrors, fingerprintHash, itemID.String())
		if err != nil {
			return fmt.Errorf("store: update item after check: %w", err)
		}
		return nil
	})
}

// SetItemAPIProbeEndpoint memoises a newly-discovered D3 probe endpoint so
// later polls skip rediscovery (§4.4). A no-op write if endpoint is empty.
func (s *Store) SetItemAPIProbeEndpoint(ctx context.Context, itemID uuid.UUID, endpoint string) error {
	if endpoint == "" {
		return nil
	}
	q := s.rebind(`UPDATE items SET api_probe_endpoint=$1 WHERE item_id=$2`)
	_, err := s.db.ExecContext(ctx, q, endpoint, itemID.String())
	if err != nil {
		return fmt.Errorf("store: set item api probe endpoint: %w", err)
	}
	return nil
}

// SetItemEnabled toggles an item's enabled flag (used by admin disable and
// the operator-level pause/resume operations).
func (s *Store) SetItemEnabled(ctx context.Context, itemID uuid.UUID, enabled bool) error {
	q := s.rebind(`UPDATE items SET enabled=$1 WHERE item_id=$2`)
	res, err := s.db.ExecContext(ctx, q, boolToInt(enabled), itemID.String())
	if err != nil {
		return fmt.Errorf("store: set item enabled: %w", err)
	}
	return checkRowsAffected(res)
}

// DeleteItem removes an item and its history/notification ledger entries.
func (s *Store) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		id := itemID.String()
		for _, q := range []string{
			s.rebind(`DELETE FROM notification_history WHERE item_id=$1`),
			s.rebind(`DELETE FROM check_history WHERE item_id=$1`),
			s.rebind(`DELETE FROM items WHERE item_id=$1`),
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("store: delete item: %w", err)
			}
		}
		return nil
	})
}

// CountItemsAddedToday counts items ownerID created since windowStart, for
// daily-add-quota enforcement (§4.2).
func (s *Store) CountItemsAddedToday(ctx context.Context, ownerID string, windowStart time.Time) (int, error) {
	q := s.rebind(`SELECT COUNT(*) FROM items WHERE owner_id=$1 AND created_at >= $2`)
	var n int
	if err := s.db.QueryRowContext(ctx, q, ownerID, windowStart.UTC().Format(timeLayout)).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count items added today: %w", err)
	}
	return n, nil
}

func scanItem(row *sql.Row) (model.Item, error) {
	var it model.Item
	var id, ownerID, name, url, vendorTag, configText, lastStatus, fingerprint, apiProbe string
	var isGlobal, enabled int
	var createdAt string
	var lastCheckedAt sql.NullString
	var lastConfidence float64
	var consecutiveErrors int

	err := row.Scan(&id, &ownerID, &isGlobal, &name, &url, &vendorTag, &configText, &enabled,
		&createdAt, &lastCheckedAt, &lastStatus, &lastConfidence, &consecutiveErrors, &fingerprint, &apiProbe)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("store: scan item: %w", err)
	}

	it.ItemID = uuid.MustParse(id)
	it.OwnerID = ownerID
	it.IsGlobal = isGlobal != 0
	it.Name = name
	it.URL = url
	it.VendorTag = vendorTag
	it.ConfigText = configText
	it.Enabled = enabled != 0
	it.CreatedAt = parseTime(createdAt)
	if lastCheckedAt.Valid {
		it.LastCheckedAt = parseTime(lastCheckedAt.String)
	}
	it.LastStatus = model.Status(lastStatus)
	it.LastConfidence = lastConfidence
	it.ConsecutiveErrorCount = consecutiveErrors
	it.FingerprintHash = fingerprint
	it.APIProbeEndpoint = apiProbe
	return it, nil
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var out []model.Item
	for rows.Next() {
		var it model.Item
		var id, ownerID, name, url, vendorTag, configText, lastStatus, fingerprint, apiProbe string
		var isGlobal, enabled int
		var createdAt string
		var lastCheckedAt sql.NullString
		var lastConfidence float64
		var consecutiveErrors int

		if err := rows.Scan(&id, &ownerID, &isGlobal, &name, &url, &vendorTag, &configText, &enabled,
			&createdAt, &lastCheckedAt, &lastStatus, &lastConfidence, &consecutiveErrors, &fingerprint, &apiProbe); err != nil {
			return nil, fmt.Errorf("store: scan item row: %w", err)
		}

		it.ItemID = uuid.MustParse(id)
		it.OwnerID = ownerID
		it.IsGlobal = isGlobal != 0
		it.Name = name
		it.URL = url
		it.VendorTag = vendorTag
		it.ConfigText = configText
		it.Enabled = enabled != 0
		it.CreatedAt = parseTime(createdAt)
		if lastCheckedAt.Valid {
			it.LastCheckedAt = parseTime(lastCheckedAt.String)
		}
		it.LastStatus = model.Status(lastStatus)
		it.LastConfidence = lastConfidence
		it.ConsecutiveErrorCount = consecutiveErrors
		it.FingerprintHash = fingerprint
		it.APIProbeEndpoint = apiProbe
		out = append(out, it)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches both sqlite3's and lib/pq's unique-constraint
// error text, since database/sql exposes no portable sentinel for it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value violates unique constraint")
}
