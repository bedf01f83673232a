package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onboardkit/semos/pkg/contracts"
)

// immutabilityTriggerName is the storage trigger §9's open question
// requires Init to verify before serving Publish. Its absence means the
// append-only guarantee (I1) rests on application code alone, which
// Init refuses to trust silently.
const immutabilityTriggerName = "registry_snapshots_no_mutation"

const pgRegistrySchema = `
CREATE TABLE IF NOT EXISTS registry_snapshots (
	snapshot_id      TEXT PRIMARY KEY,
	snapshot_set_id  TEXT,
	object_type      TEXT NOT NULL,
	object_id        TEXT NOT NULL,
	version_major    INT NOT NULL,
	version_minor    INT NOT NULL,
	status           TEXT NOT NULL,
	governance_tier  TEXT NOT NULL,
	trust_class      TEXT NOT NULL,
	security_label   JSONB NOT NULL,
	effective_from   TIMESTAMPTZ NOT NULL,
	effective_until  TIMESTAMPTZ,
	predecessor_id   TEXT,
	change_type      TEXT NOT NULL,
	change_rationale TEXT,
	created_by       TEXT NOT NULL,
	approved_by      TEXT,
	definition       JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registry_snapshots_object
	ON registry_snapshots (object_type, object_id);

CREATE OR REPLACE FUNCTION registry_snapshots_reject_mutation()
RETURNS TRIGGER AS $$
BEGIN
	RAISE EXCEPTION 'registry_snapshots is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS registry_snapshots_no_mutation ON registry_snapshots;
CREATE TRIGGER registry_snapshots_no_mutation
	BEFORE UPDATE OR DELETE ON registry_snapshots
	FOR EACH ROW EXECUTE FUNCTION registry_snapshots_reject_mutation();
`

// PostgresStore implements Store over database/sql + lib/pq, following
// the teacher's PostgresRegistry: JSONB payload columns and raw SQL
// rather than an ORM. InsertSnapshot is a plain INSERT with no ON
// CONFLICT clause, so a retry with the same snapshot_id fails.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the schema (idempotently) and then verifies the
// immutability trigger is actually installed and enabled, refusing to
// proceed if it is absent rather than silently trusting application
// code alone (§9 open question, decided: fail loud).
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgRegistrySchema); err != nil {
		return fmt.Errorf("registry: creating schema: %w", err)
	}
	present, err := s.triggerPresent(ctx)
	if err != nil {
		return fmt.Errorf("registry: checking immutability trigger: %w", err)
	}
	if !present {
		return fmt.Errorf("registry: immutability trigger %q is not installed; refusing to serve Publish", immutabilityTriggerName)
	}
	return nil
}

func (s *PostgresStore) triggerPresent(ctx context.Context) (bool, error) {
	var enabled string
	err := s.db.QueryRowContext(ctx, `
		SELECT tgenabled FROM pg_trigger
		WHERE tgname = $1 AND NOT tgisinternal
	`, immutabilityTriggerName).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled != "D", nil // 'D' = disabled
}

// advisoryLockKey derives a deterministic int64 lock key from the
// (object_type, object_id) pair, scoping the publish critical section
// to one governed object at a time (§5 concurrency).
func advisoryLockKey(objectType contracts.ObjectType, objectID string) int64 {
	sum := sha256.Sum256([]byte(string(objectType) + "\x00" + objectID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(snap.ObjectType, snap.ObjectID)); err != nil {
		return fmt.Errorf("registry: acquiring advisory lock: %w", err)
	}

	label, err := json.Marshal(snap.SecurityLabel)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO registry_snapshots (
			snapshot_id, snapshot_set_id, object_type, object_id,
			version_major, version_minor, status, governance_tier,
			trust_class, security_label, effective_from, effective_until,
			predecessor_id, change_type, change_rationale, created_by,
			approved_by, definition, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		snap.SnapshotID, snap.SnapshotSetID, snap.ObjectType, snap.ObjectID,
		snap.VersionMajor, snap.VersionMinor, snap.Status, snap.GovernanceTier,
		snap.TrustClass, label, snap.EffectiveFrom, snap.EffectiveUntil,
		snap.PredecessorID, snap.ChangeType, snap.ChangeRationale, snap.CreatedBy,
		snap.ApprovedBy, snap.Definition, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("registry: inserting snapshot: %w", err)
	}

	return tx.Commit()
}

// CloseActive is folded into the same advisory-locked transaction as
// InsertSnapshot at the Registry layer in spirit; here it runs as its
// own statement since the lock key is derived identically and Postgres
// advisory locks are reentrant within a session.
func (s *PostgresStore) CloseActive(ctx context.Context, objectType contracts.ObjectType, objectID string, effectiveUntil time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE registry_snapshots
		SET effective_until = $3
		WHERE object_type = $1 AND object_id = $2 AND status = $4 AND effective_until IS NULL
	`, objectType, objectID, effectiveUntil, contracts.StatusActive)
	return err
}

func (s *PostgresStore) CandidatesFor(ctx context.Context, objectType contracts.ObjectType, objectID string) ([]*contracts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM registry_snapshots
		WHERE object_type = $1 AND object_id = $2
	`, objectType, objectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSnapshots(rows)
}

func (s *PostgresStore) SnapshotByID(ctx context.Context, snapshotID string) (*contracts.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM registry_snapshots WHERE snapshot_id = $1
	`, snapshotID)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	return snap, err
}

func (s *PostgresStore) DependentsOf(ctx context.Context, fqn string) ([]*contracts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM registry_snapshots
		WHERE status = $1 AND definition::text LIKE '%' || $2 || '%'
	`, contracts.StatusActive, fqn)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSnapshots(rows)
}

func (s *PostgresStore) Horizon(ctx context.Context) ([]*contracts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM registry_snapshots WHERE status = $1
	`, contracts.StatusActive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSnapshots(rows)
}

const snapshotColumns = `
	snapshot_id, snapshot_set_id, object_type, object_id,
	version_major, version_minor, status, governance_tier,
	trust_class, security_label, effective_from, effective_until,
	predecessor_id, change_type, change_rationale, created_by,
	approved_by, definition, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*contracts.Snapshot, error) {
	var snap contracts.Snapshot
	var label []byte
	if err := row.Scan(
		&snap.SnapshotID, &snap.SnapshotSetID, &snap.ObjectType, &snap.ObjectID,
		&snap.VersionMajor, &snap.VersionMinor, &snap.Status, &snap.GovernanceTier,
		&snap.TrustClass, &label, &snap.EffectiveFrom, &snap.EffectiveUntil,
		&snap.PredecessorID, &snap.ChangeType, &snap.ChangeRationale, &snap.CreatedBy,
		&snap.ApprovedBy, &snap.Definition, &snap.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(label, &snap.SecurityLabel); err != nil {
		return nil, err
	}
	return &snap, nil
}

func scanSnapshots(rows *sql.Rows) ([]*contracts.Snapshot, error) {
	var out []*contracts.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
