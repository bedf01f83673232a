package registry

import (
	"context"
	"testing"
	"time"

	"github.com/onboardkit/semos/pkg/contracts"
)

// memStore is an in-memory Store fake used to test gate logic and
// version resolution without a live Postgres instance.
type memStore struct {
	initialized bool
	rows        []*contracts.Snapshot
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) Init(ctx context.Context) error { m.initialized = true; return nil }

func (m *memStore) InsertSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	m.rows = append(m.rows, snap)
	return nil
}

func (m *memStore) CloseActive(ctx context.Context, objectType contracts.ObjectType, objectID string, effectiveUntil time.Time) error {
	for _, r := range m.rows {
		if r.ObjectType == objectType && r.ObjectID == objectID && r.Status == contracts.StatusActive && r.EffectiveUntil == nil {
			t := effectiveUntil
			r.EffectiveUntil = &t
		}
	}
	return nil
}

func (m *memStore) CandidatesFor(ctx context.Context, objectType contracts.ObjectType, objectID string) ([]*contracts.Snapshot, error) {
	var out []*contracts.Snapshot
	for _, r := range m.rows {
		if r.ObjectType == objectType && r.ObjectID == objectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) SnapshotByID(ctx context.Context, snapshotID string) (*contracts.Snapshot, error) {
	for _, r := range m.rows {
		if r.SnapshotID == snapshotID {
			return r, nil
		}
	}
	return nil, ErrSnapshotNotFound
}

func (m *memStore) DependentsOf(ctx context.Context, fqn string) ([]*contracts.Snapshot, error) {
	return nil, nil
}

func (m *memStore) Horizon(ctx context.Context) ([]*contracts.Snapshot, error) {
	var out []*contracts.Snapshot
	for _, r := range m.rows {
		if r.Status == contracts.StatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func baseSnapshot() *contracts.Snapshot {
	return &contracts.Snapshot{
		SnapshotID:     "snap-1",
		ObjectType:     contracts.ObjectVerbContract,
		ObjectID:       "cbu.ensure_entity",
		VersionMajor:   1,
		VersionMinor:   0,
		Status:         contracts.StatusActive,
		GovernanceTier: contracts.TierOperational,
		TrustClass:     contracts.TrustConvenience,
		ChangeType:     contracts.ChangeCreated,
		CreatedBy:      "user:alice",
		Definition:     []byte(`{}`),
		EffectiveFrom:  time.Now(),
		CreatedAt:      time.Now(),
	}
}

func TestPublish_RejectsProofRuleViolation(t *testing.T) {
	store := newMemStore()
	r := New(store)
	snap := baseSnapshot()
	snap.TrustClass = contracts.TrustProof
	snap.GovernanceTier = contracts.TierOperational

	results, err := r.Publish(context.Background(), snap)
	if err == nil {
		t.Fatal("expected publish to be rejected")
	}
	if !HasError(results) || results[0].Gate != "proof-rule" {
		t.Fatalf("expected proof-rule error, got %+v", results)
	}
}

func TestPublish_RejectsGovernedActiveWithoutApproval(t *testing.T) {
	store := newMemStore()
	r := New(store)
	snap := baseSnapshot()
	snap.GovernanceTier = contracts.TierGoverned
	snap.Status = contracts.StatusActive
	snap.ApprovedBy = ""

	_, err := r.Publish(context.Background(), snap)
	if err == nil {
		t.Fatal("expected publish to be rejected for missing approval")
	}
}

func TestPublish_AllowsGovernedActiveWithApproval(t *testing.T) {
	store := newMemStore()
	r := New(store)
	snap := baseSnapshot()
	snap.GovernanceTier = contracts.TierGoverned
	snap.Status = contracts.StatusActive
	snap.ApprovedBy = "user:bob"

	_, err := r.Publish(context.Background(), snap)
	if err != nil {
		t.Fatalf("expected publish to succeed, got %v", err)
	}
}

func TestPublish_RejectsBreakingChangeWithoutProvenance(t *testing.T) {
	store := newMemStore()
	r := New(store)
	snap := baseSnapshot()
	snap.ChangeType = contracts.ChangeBreaking
	snap.PredecessorID = ""

	_, err := r.Publish(context.Background(), snap)
	if err == nil {
		t.Fatal("expected publish to be rejected for missing provenance")
	}
}

func TestPublish_ClosesPriorActiveRow(t *testing.T) {
	store := newMemStore()
	r := New(store)

	first := baseSnapshot()
	first.SnapshotID = "snap-1"
	if _, err := r.Publish(context.Background(), first); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	second := baseSnapshot()
	second.SnapshotID = "snap-2"
	second.VersionMinor = 1
	second.PredecessorID = "snap-1"
	second.EffectiveFrom = time.Now().Add(time.Minute)
	if _, err := r.Publish(context.Background(), second); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	if first.EffectiveUntil == nil {
		t.Fatal("expected prior active row to be closed")
	}
}

func TestGetActive_ResolvesHighestVersion(t *testing.T) {
	store := newMemStore()
	r := New(store)

	v1 := baseSnapshot()
	v1.SnapshotID = "snap-1"
	v2 := baseSnapshot()
	v2.SnapshotID = "snap-2"
	v2.VersionMinor = 2
	v1.Status = contracts.StatusActive
	v2.Status = contracts.StatusActive
	store.rows = append(store.rows, v1, v2)

	actor := contracts.ActorContext{Clearance: contracts.ClassConfidential}
	active, decision, err := r.GetActive(context.Background(), actor, contracts.PurposeOnboarding, contracts.ObjectVerbContract, "cbu.ensure_entity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Verdict != contracts.VerdictAllow {
		t.Fatalf("expected Allow, got %+v", decision)
	}
	if active.SnapshotID != "snap-2" {
		t.Fatalf("expected highest version snap-2, got %s", active.SnapshotID)
	}
}

func TestGetActive_OperationalIsNotExemptFromABAC(t *testing.T) {
	store := newMemStore()
	r := New(store)
	snap := baseSnapshot()
	snap.GovernanceTier = contracts.TierOperational
	snap.SecurityLabel = contracts.SecurityLabel{Classification: contracts.ClassRestricted}
	store.rows = append(store.rows, snap)

	actor := contracts.ActorContext{Clearance: contracts.ClassInternal}
	_, decision, err := r.GetActive(context.Background(), actor, contracts.PurposeOnboarding, contracts.ObjectVerbContract, "cbu.ensure_entity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Verdict != contracts.VerdictDeny {
		t.Fatalf("expected operational object to still be ABAC-denied, got %+v", decision)
	}
}
