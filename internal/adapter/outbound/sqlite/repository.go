package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/snapshot"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

const timeLayout = time.RFC3339Nano

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CreateService inserts svc, assigning its ID and timestamps.
func (s *Store) CreateService(ctx context.Context, svc *mcpservice.Service) (*mcpservice.Service, error) {
	now := nowString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (name, upstream_url, enabled, check_frequency_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		svc.Name, svc.UpstreamURL, boolToInt(svc.Enabled), svc.CheckFrequencyMinutes, now, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("%w: %s", mcpservice.ErrDuplicateName, svc.Name)
		}
		return nil, fmt.Errorf("insert service: %w", err)
	}
	return s.GetService(ctx, svc.Name)
}

// GetService fetches a service by name.
func (s *Store) GetService(ctx context.Context, name string) (*mcpservice.Service, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, upstream_url, enabled, check_frequency_minutes, created_at, updated_at
		FROM services WHERE name = ?`, name)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: service %q", mcpservice.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

// ListServices returns every service paired with its latest snapshot's
// approval status (nil if the service has no snapshots yet).
func (s *Store) ListServices(ctx context.Context) ([]mcpservice.WithLatestStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.upstream_url, s.enabled, s.check_frequency_minutes,
		       s.created_at, s.updated_at, latest.status
		FROM services s
		LEFT JOIN (
			SELECT sn.service_id, sn.status
			FROM snapshots sn
			INNER JOIN (
				SELECT service_id, MAX(seq) AS max_seq FROM snapshots GROUP BY service_id
			) m ON m.service_id = sn.service_id AND m.max_seq = sn.seq
		) latest ON latest.service_id = s.id
		ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []mcpservice.WithLatestStatus
	for rows.Next() {
		var (
			id                    int64
			name, upstreamURL     string
			enabled               int
			checkFrequencyMinutes int
			createdAtStr          string
			updatedAtStr          string
			status                sql.NullString
		)
		if err := rows.Scan(&id, &name, &upstreamURL, &enabled, &checkFrequencyMinutes, &createdAtStr, &updatedAtStr, &status); err != nil {
			return nil, fmt.Errorf("scan service row: %w", err)
		}
		createdAt, err := parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		updatedAt, err := parseTime(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		item := mcpservice.WithLatestStatus{
			Service: mcpservice.Service{
				ID:                    id,
				Name:                  name,
				UpstreamURL:           upstreamURL,
				Enabled:               enabled != 0,
				CheckFrequencyMinutes: checkFrequencyMinutes,
				CreatedAt:             createdAt,
				UpdatedAt:             updatedAt,
			},
		}
		if status.Valid {
			st := mcpservice.SnapshotStatus(status.String)
			item.LatestSnapshotStatus = &st
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service rows: %w", err)
	}
	return out, nil
}

// UpdateService applies non-nil patch fields to the named service.
func (s *Store) UpdateService(ctx context.Context, name string, patch outbound.ServicePatch) (*mcpservice.Service, error) {
	existing, err := s.GetService(ctx, name)
	if err != nil {
		return nil, err
	}

	upstreamURL := existing.UpstreamURL
	if patch.UpstreamURL != nil {
		upstreamURL = *patch.UpstreamURL
	}
	enabled := existing.Enabled
	if patch.Enabled != nil {
		enabled = *patch.Enabled
	}
	checkFrequencyMinutes := existing.CheckFrequencyMinutes
	if patch.CheckFrequencyMinutes != nil {
		checkFrequencyMinutes = *patch.CheckFrequencyMinutes
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE services
		SET upstream_url = ?, enabled = ?, check_frequency_minutes = ?, updated_at = ?
		WHERE name = ?`,
		upstreamURL, boolToInt(enabled), checkFrequencyMinutes, nowString(), name)
	if err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	return s.GetService(ctx, name)
}

// DeleteService removes a service and (via ON DELETE CASCADE) its snapshots.
func (s *Store) DeleteService(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: service %q", mcpservice.ErrNotFound, name)
	}
	return nil
}

// InsertSnapshot appends a snapshot row, assigning the next per-service seq.
func (s *Store) InsertSnapshot(ctx context.Context, serviceID int64, payload map[string]any, hash string, status mcpservice.SnapshotStatus) (*snapshot.Snapshot, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap, err := insertSnapshotTx(ctx, tx, serviceID, body, hash, status)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot insert: %w", err)
	}
	snap.Payload = payload
	return snap, nil
}

// insertSnapshotTx inserts a snapshot row within an already-open
// transaction, computing the next seq for serviceID.
func insertSnapshotTx(ctx context.Context, tx *sql.Tx, serviceID int64, body []byte, hash string, status mcpservice.SnapshotStatus) (*snapshot.Snapshot, error) {
	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM snapshots WHERE service_id = ?`, serviceID).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("read max seq: %w", err)
	}
	nextSeq := int64(1)
	if maxSeq.Valid {
		nextSeq = maxSeq.Int64 + 1
	}

	createdAt := nowString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (service_id, payload, hash, status, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?)`,
		serviceID, string(body), hash, string(status), createdAt, nextSeq)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted snapshot id: %w", err)
	}
	createdAtTime, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &snapshot.Snapshot{
		ID:        id,
		ServiceID: serviceID,
		Hash:      hash,
		Status:    status,
		CreatedAt: createdAtTime,
		Seq:       nextSeq,
	}, nil
}

// LatestSnapshot returns the most recently inserted snapshot for a service.
func (s *Store) LatestSnapshot(ctx context.Context, serviceID int64) (*snapshot.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, service_id, payload, hash, status, created_at, seq
		FROM snapshots WHERE service_id = ? ORDER BY seq DESC LIMIT 1`, serviceID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no snapshots for service %d", mcpservice.ErrNotFound, serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// LatestApprovedSnapshot returns the most recent snapshot whose status
// counts as approved (user_approved or system_approved).
func (s *Store) LatestApprovedSnapshot(ctx context.Context, serviceID int64) (*snapshot.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, service_id, payload, hash, status, created_at, seq
		FROM snapshots
		WHERE service_id = ? AND status IN (?, ?)
		ORDER BY seq DESC LIMIT 1`,
		serviceID, string(mcpservice.StatusUserApproved), string(mcpservice.StatusSystemApproved))
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no approved snapshot for service %d", mcpservice.ErrNotFound, serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest approved snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots for a service, newest first.
func (s *Store) ListSnapshots(ctx context.Context, serviceID int64, limit int) ([]snapshot.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_id, payload, hash, status, created_at, seq
		FROM snapshots WHERE service_id = ? ORDER BY seq DESC LIMIT ?`, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		snap, err := scanSnapshotRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

// ServicesDueForCheck returns enabled, polled services whose last snapshot
// (if any) is older than now - check_frequency_minutes.
func (s *Store) ServicesDueForCheck(ctx context.Context, now time.Time) ([]mcpservice.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.upstream_url, s.enabled, s.check_frequency_minutes, s.created_at, s.updated_at
		FROM services s
		LEFT JOIN (
			SELECT service_id, MAX(created_at) AS last_check
			FROM snapshots
			GROUP BY service_id
		) last ON last.service_id = s.id
		WHERE s.enabled = 1
		  AND s.check_frequency_minutes > 0
		  AND (
		    last.last_check IS NULL
		    OR datetime(last.last_check, '+' || s.check_frequency_minutes || ' minutes') <= datetime(?)
		  )
		ORDER BY s.id`, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list services due for check: %w", err)
	}
	defer rows.Close()

	var out []mcpservice.Service
	for rows.Next() {
		var (
			id                    int64
			name, upstreamURL     string
			enabled               int
			checkFrequencyMinutes int
			createdAtStr          string
			updatedAtStr          string
		)
		if err := rows.Scan(&id, &name, &upstreamURL, &enabled, &checkFrequencyMinutes, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scan due service row: %w", err)
		}
		createdAt, err := parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		updatedAt, err := parseTime(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, mcpservice.Service{
			ID:                    id,
			Name:                  name,
			UpstreamURL:           upstreamURL,
			Enabled:               enabled != 0,
			CheckFrequencyMinutes: checkFrequencyMinutes,
			CreatedAt:             createdAt,
			UpdatedAt:             updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due service rows: %w", err)
	}
	return out, nil
}

// DisableOnDrift atomically inserts an unapproved snapshot row and flips
// enabled=false, so a concurrent ListServices observes either both or
// neither (spec.md §4.E, §8 property 4).
func (s *Store) DisableOnDrift(ctx context.Context, serviceID int64, payload map[string]any, hash string) (*snapshot.Snapshot, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap, err := insertSnapshotTx(ctx, tx, serviceID, body, hash, mcpservice.StatusUnapproved)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE services SET enabled = 0, updated_at = ? WHERE id = ?`, nowString(), serviceID); err != nil {
		return nil, fmt.Errorf("disable service: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit drift disable: %w", err)
	}
	snap.Payload = payload
	return snap, nil
}

// ApproveLatestSnapshot flips the latest snapshot for name to
// user_approved and re-enables the service, atomically. A no-op success
// if the latest snapshot is already approved (spec.md §4.H, §8 property 7).
func (s *Store) ApproveLatestSnapshot(ctx context.Context, name string) (*mcpservice.Service, *snapshot.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var serviceID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM services WHERE name = ?`, name).Scan(&serviceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: service %q", mcpservice.ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("lookup service: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, service_id, payload, hash, status, created_at, seq
		FROM snapshots WHERE service_id = ? ORDER BY seq DESC LIMIT 1`, serviceID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: no snapshots for service %q", mcpservice.ErrNotFound, name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if snap.Status == mcpservice.StatusUnapproved {
		if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET status = ? WHERE id = ?`, string(mcpservice.StatusUserApproved), snap.ID); err != nil {
			return nil, nil, fmt.Errorf("approve snapshot: %w", err)
		}
		snap.Status = mcpservice.StatusUserApproved
	}
	if _, err := tx.ExecContext(ctx, `UPDATE services SET enabled = 1, updated_at = ? WHERE id = ? AND enabled = 0`, nowString(), serviceID); err != nil {
		return nil, nil, fmt.Errorf("re-enable service: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit approval: %w", err)
	}

	svc, err := s.GetService(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return svc, snap, nil
}

// UpsertServiceFromConfig idempotently seeds a service at startup; if the
// name already exists, nothing is changed and created is false.
func (s *Store) UpsertServiceFromConfig(ctx context.Context, name, upstreamURL string, enabled bool, checkFrequencyMinutes int) (*mcpservice.Service, bool, error) {
	existing, err := s.GetService(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mcpservice.ErrNotFound) {
		return nil, false, err
	}

	svc := &mcpservice.Service{
		Name:                  name,
		UpstreamURL:           upstreamURL,
		Enabled:               enabled,
		CheckFrequencyMinutes: checkFrequencyMinutes,
	}
	created, err := s.CreateService(ctx, svc)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func scanService(row *sql.Row) (*mcpservice.Service, error) {
	var (
		id                    int64
		name, upstreamURL     string
		enabled               int
		checkFrequencyMinutes int
		createdAtStr          string
		updatedAtStr          string
	)
	if err := row.Scan(&id, &name, &upstreamURL, &enabled, &checkFrequencyMinutes, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &mcpservice.Service{
		ID:                    id,
		Name:                  name,
		UpstreamURL:           upstreamURL,
		Enabled:               enabled != 0,
		CheckFrequencyMinutes: checkFrequencyMinutes,
		CreatedAt:             createdAt,
		UpdatedAt:             updatedAt,
	}, nil
}

func scanSnapshot(row *sql.Row) (*snapshot.Snapshot, error) {
	var (
		id, serviceID int64
		payloadStr    string
		hash, status  string
		createdAtStr  string
		seq           int64
	)
	if err := row.Scan(&id, &serviceID, &payloadStr, &hash, &status, &createdAtStr, &seq); err != nil {
		return nil, err
	}
	return buildSnapshot(id, serviceID, payloadStr, hash, status, createdAtStr, seq)
}

func scanSnapshotRows(rows *sql.Rows) (*snapshot.Snapshot, error) {
	var (
		id, serviceID int64
		payloadStr    string
		hash, status  string
		createdAtStr  string
		seq           int64
	)
	if err := rows.Scan(&id, &serviceID, &payloadStr, &hash, &status, &createdAtStr, &seq); err != nil {
		return nil, err
	}
	return buildSnapshot(id, serviceID, payloadStr, hash, status, createdAtStr, seq)
}

func buildSnapshot(id, serviceID int64, payloadStr, hash, status, createdAtStr string, seq int64) (*snapshot.Snapshot, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot payload: %w", err)
	}
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &snapshot.Snapshot{
		ID:        id,
		ServiceID: serviceID,
		Payload:   payload,
		Hash:      hash,
		Status:    mcpservice.SnapshotStatus(status),
		CreatedAt: createdAt,
		Seq:       seq,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE constraint
// violation. modernc.org/sqlite doesn't export a typed sentinel for this,
// so it is matched on the driver's error text, same as the teacher's
// flock_unix.go matches on syscall error text where no typed error exists.
func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ outbound.Repository = (*Store)(nil)
