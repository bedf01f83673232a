// Package registry implements the semantic registry kernel: append-only,
// versioned snapshots of governed objects, the publish gates that guard
// every new row, and ABAC-gated readers (§4.1).
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/onboardkit/semos/pkg/authz"
	"github.com/onboardkit/semos/pkg/contracts"
)

// ErrSnapshotNotFound is returned by readers when no row matches.
var ErrSnapshotNotFound = errors.New("registry: snapshot not found")

// GateSeverity classifies a publish gate finding.
type GateSeverity string

const (
	GateError   GateSeverity = "Error"
	GateWarning GateSeverity = "Warning"
)

// GateResult is one publish gate's verdict.
type GateResult struct {
	Gate     string       `json:"gate"`
	Severity GateSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// HasError reports whether any result in the slice is Error-severity.
func HasError(results []GateResult) bool {
	for _, r := range results {
		if r.Severity == GateError {
			return true
		}
	}
	return false
}

// Store is the persistence boundary the registry kernel runs gates and
// version resolution against. PostgresStore is the production
// implementation; tests use an in-memory fake.
type Store interface {
	// Init prepares the backing schema and verifies the append-only
	// invariant is enforced in storage (the immutability trigger).
	Init(ctx context.Context) error

	// InsertSnapshot appends a new row. Implementations must never
	// accept an UPDATE/DELETE path for this table.
	InsertSnapshot(ctx context.Context, snap *contracts.Snapshot) error

	// CloseActive sets effective_until on the current active row of
	// (object_type, object_id), if any.
	CloseActive(ctx context.Context, objectType contracts.ObjectType, objectID string, effectiveUntil time.Time) error

	// CandidatesFor returns every row for (object_type, object_id),
	// across all versions and statuses, for version resolution.
	CandidatesFor(ctx context.Context, objectType contracts.ObjectType, objectID string) ([]*contracts.Snapshot, error)

	// SnapshotByID returns one row by its snapshot_id.
	SnapshotByID(ctx context.Context, snapshotID string) (*contracts.Snapshot, error)

	// DependentsOf returns every snapshot whose definition references fqn.
	DependentsOf(ctx context.Context, fqn string) ([]*contracts.Snapshot, error)

	// Horizon returns every active snapshot, for derivation-spec
	// well-typedness checks against "the current snapshot horizon".
	Horizon(ctx context.Context) ([]*contracts.Snapshot, error)
}

// Registry is the kernel: publish gates plus ABAC-gated reads.
type Registry struct {
	store Store
}

// New constructs a Registry over store. Callers must call Init before
// Publish or any reader.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// Init prepares storage and verifies the append-only trigger is present.
func (r *Registry) Init(ctx context.Context) error {
	return r.store.Init(ctx)
}

// Publish evaluates the publish gates in order (§4.1), short-circuiting
// on the first Error-severity failure, then appends snap as the new
// active row for (object_type, object_id), closing the prior active row.
func (r *Registry) Publish(ctx context.Context, snap *contracts.Snapshot) ([]GateResult, error) {
	horizon, err := r.store.Horizon(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: loading horizon: %w", err)
	}

	results := evaluateGates(snap, horizon)
	if HasError(results) {
		return results, fmt.Errorf("registry: publish rejected: %s", firstError(results))
	}

	if err := r.store.CloseActive(ctx, snap.ObjectType, snap.ObjectID, snap.EffectiveFrom); err != nil {
		return results, fmt.Errorf("registry: closing prior active row: %w", err)
	}
	if err := r.store.InsertSnapshot(ctx, snap); err != nil {
		return results, fmt.Errorf("registry: inserting snapshot: %w", err)
	}
	return results, nil
}

func firstError(results []GateResult) string {
	for _, r := range results {
		if r.Severity == GateError {
			return r.Gate + ": " + r.Message
		}
	}
	return ""
}

// evaluateGates runs every publish gate from §4.1's table, in order.
func evaluateGates(snap *contracts.Snapshot, horizon []*contracts.Snapshot) []GateResult {
	var results []GateResult

	if snap.TrustClass == contracts.TrustProof && snap.GovernanceTier == contracts.TierOperational {
		results = append(results, GateResult{
			Gate: "proof-rule", Severity: GateError,
			Message: "trust_class=proof requires governance_tier=governed",
		})
		return results
	}

	if snap.GovernanceTier == contracts.TierGoverned && snap.Status == contracts.StatusActive && snap.ApprovedBy == "" {
		results = append(results, GateResult{
			Gate: "governed-approval", Severity: GateError,
			Message: "governed active snapshot requires approved_by",
		})
		return results
	}

	if snap.ChangeType == contracts.ChangeBreaking && (snap.PredecessorID == "" || snap.ChangeRationale == "") {
		results = append(results, GateResult{
			Gate: "breaking-change-provenance", Severity: GateError,
			Message: "breaking change requires predecessor_id and change_rationale",
		})
		return results
	}

	if snap.ObjectType == contracts.ObjectDerivationSpec {
		if missing := derivationUnresolvedFQNs(snap, horizon); len(missing) > 0 {
			results = append(results, GateResult{
				Gate: "derivation-well-typed", Severity: GateError,
				Message: fmt.Sprintf("unresolved FQNs in current snapshot horizon: %v", missing),
			})
			return results
		}
	}

	if warning := securityInheritanceWarning(snap, horizon); warning != "" {
		results = append(results, GateResult{
			Gate: "security-inheritance", Severity: GateWarning, Message: warning,
		})
	}

	return results
}

// GetActive returns the currently active snapshot for (object_type,
// object_id), ABAC-gated against actor for purpose. Operational
// objects are not exempt from ABAC (§4.1).
func (r *Registry) GetActive(ctx context.Context, actor contracts.ActorContext, purpose contracts.AccessPurpose, objectType contracts.ObjectType, objectID string) (*contracts.Snapshot, *contracts.AccessDecision, error) {
	candidates, err := r.store.CandidatesFor(ctx, objectType, objectID)
	if err != nil {
		return nil, nil, err
	}
	active := resolveActive(candidates)
	if active == nil {
		return nil, nil, ErrSnapshotNotFound
	}
	decision := authz.Evaluate(actor, active.SecurityLabel, purpose)
	if decision.Verdict == contracts.VerdictDeny {
		return nil, &decision, nil
	}
	return active, &decision, nil
}

// GetSnapshot returns a specific snapshot by ID, ABAC-gated.
func (r *Registry) GetSnapshot(ctx context.Context, actor contracts.ActorContext, purpose contracts.AccessPurpose, snapshotID string) (*contracts.Snapshot, *contracts.AccessDecision, error) {
	snap, err := r.store.SnapshotByID(ctx, snapshotID)
	if err != nil {
		return nil, nil, err
	}
	decision := authz.Evaluate(actor, snap.SecurityLabel, purpose)
	if decision.Verdict == contracts.VerdictDeny {
		return nil, &decision, nil
	}
	return snap, &decision, nil
}

// FindDependents returns every snapshot whose definition references fqn,
// ABAC-filtered against actor/purpose.
func (r *Registry) FindDependents(ctx context.Context, actor contracts.ActorContext, purpose contracts.AccessPurpose, fqn string) ([]*contracts.Snapshot, error) {
	all, err := r.store.DependentsOf(ctx, fqn)
	if err != nil {
		return nil, err
	}
	var visible []*contracts.Snapshot
	for _, snap := range all {
		if authz.Evaluate(actor, snap.SecurityLabel, purpose).Verdict != contracts.VerdictDeny {
			visible = append(visible, snap)
		}
	}
	return visible, nil
}

// resolveActive picks the highest (version_major, version_minor) row
// with status=active using Masterminds/semver for the comparison, per
// §4.1's versioning rule.
func resolveActive(candidates []*contracts.Snapshot) *contracts.Snapshot {
	var active []*contracts.Snapshot
	for _, c := range candidates {
		if c.Status == contracts.StatusActive {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool {
		vi := semver.New(uint64(active[i].VersionMajor), uint64(active[i].VersionMinor), 0, "", "")
		vj := semver.New(uint64(active[j].VersionMajor), uint64(active[j].VersionMinor), 0, "", "")
		return vi.GreaterThan(vj)
	})
	return active[0]
}
