// Package verbs holds the compiled-in verb catalogue: the FQN, argument
// contract, and natural-key rule for every verb the DSL compiler (§4.6)
// and validator (§4.5) know how to handle. In a fuller deployment these
// would be ObjectVerbContract snapshots read off the registry horizon;
// here they are the process-wide immutable table the spec's compiler
// section requires the compiler to be pure against.
package verbs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onboardkit/semos/pkg/contracts"
)

// ArgKind constrains the shape a verb argument's Value node must take.
type ArgKind string

const (
	ArgString    ArgKind = "string"
	ArgInt       ArgKind = "int"
	ArgDecimal   ArgKind = "decimal"
	ArgBool      ArgKind = "bool"
	ArgEntityRef ArgKind = "entity_ref"
	ArgMap       ArgKind = "map"
	ArgAny       ArgKind = "any"
)

// ArgSpec is one argument a verb accepts.
type ArgSpec struct {
	Key      string
	Kind     ArgKind
	Required bool
}

// NaturalKeyFunc derives the idempotency key an Op's natural_key field
// carries, from the verb's resolved arguments, so two authorings of the
// same intent collide on the same row.
type NaturalKeyFunc func(args map[string]contracts.Value) string

// VerbDef is one entry in the catalogue.
type VerbDef struct {
	FQN         string
	Family      contracts.OpFamily
	Args        []ArgSpec
	NaturalKey  NaturalKeyFunc
}

// RequiredArgs returns the subset of Args that are mandatory.
func (v VerbDef) RequiredArgs() []ArgSpec {
	out := make([]ArgSpec, 0, len(v.Args))
	for _, a := range v.Args {
		if a.Required {
			out = append(out, a)
		}
	}
	return out
}

// ArgByKey looks up one argument spec by key.
func (v VerbDef) ArgByKey(key string) (ArgSpec, bool) {
	for _, a := range v.Args {
		if a.Key == key {
			return a, true
		}
	}
	return ArgSpec{}, false
}

func stringValue(args map[string]contracts.Value, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch v.Kind {
	case contracts.NodeLiteral:
		return v.StringVal
	case contracts.NodeEntityRef:
		if v.ResolvedKey != "" {
			return v.ResolvedKey
		}
		return v.SearchValue
	}
	return ""
}

// Registry is the lookup table over VerbDef, keyed by FQN.
type Registry struct {
	defs map[string]VerbDef
	fqns []string // sorted, for stable fuzzy-suggestion iteration
}

// Default builds the compiled-in catalogue covering every op family in
// §3.6.
func Default() *Registry {
	r := &Registry{defs: make(map[string]VerbDef)}
	for _, d := range catalogue() {
		r.defs[d.FQN] = d
		r.fqns = append(r.fqns, d.FQN)
	}
	sort.Strings(r.fqns)
	return r
}

// Lookup returns the verb definition for an FQN.
func (r *Registry) Lookup(fqn string) (VerbDef, bool) {
	d, ok := r.defs[fqn]
	return d, ok
}

// FQNs returns every known verb FQN, sorted.
func (r *Registry) FQNs() []string {
	return r.fqns
}

// Suggest returns up to n FQNs most similar to a miss, by trigram
// similarity, for the validator's UnknownVerb diagnostic (§4.5).
func (r *Registry) Suggest(fqn string, n int) []string {
	type scored struct {
		fqn   string
		score float64
	}
	var candidates []scored
	for _, known := range r.fqns {
		s := trigramSimilarity(fqn, known)
		if s > 0 {
			candidates = append(candidates, scored{known, s})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].fqn < candidates[j].fqn
	})
	out := make([]string, 0, n)
	for i := 0; i < len(candidates) && i < n; i++ {
		out = append(out, candidates[i].fqn)
	}
	return out
}

func catalogue() []VerbDef {
	return []VerbDef{
		{
			FQN:    "entity.ensure",
			Family: contracts.OpEnsureEntity,
			Args: []ArgSpec{
				{Key: "entity_type", Kind: ArgString, Required: true},
				{Key: "name", Kind: ArgString, Required: true},
				{Key: "first_name", Kind: ArgString},
				{Key: "last_name", Kind: ArgString},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				typ := stringValue(a, "entity_type")
				if typ == "proper_person" {
					return fmt.Sprintf("proper_person(%s+%s)", stringValue(a, "first_name"), stringValue(a, "last_name"))
				}
				return fmt.Sprintf("%s(%s)", typ, stringValue(a, "name"))
			},
		},
		{
			FQN:    "entity.link_role",
			Family: contracts.OpLinkRole,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "entity", Kind: ArgEntityRef, Required: true},
				{Key: "role", Kind: ArgString, Required: true},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("link_role(%s,%s,%s)", stringValue(a, "cbu"), stringValue(a, "entity"), stringValue(a, "role"))
			},
		},
		{
			FQN:    "entity.unlink_role",
			Family: contracts.OpUnlinkRole,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "entity", Kind: ArgEntityRef, Required: true},
				{Key: "role", Kind: ArgString, Required: true},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("link_role(%s,%s,%s)", stringValue(a, "cbu"), stringValue(a, "entity"), stringValue(a, "role"))
			},
		},
		{
			FQN:    "ownership.add",
			Family: contracts.OpAddOwnership,
			Args: []ArgSpec{
				{Key: "owner", Kind: ArgEntityRef, Required: true},
				{Key: "owned", Kind: ArgEntityRef, Required: true},
				{Key: "pct", Kind: ArgDecimal, Required: true},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("ownership(%s,%s)", stringValue(a, "owner"), stringValue(a, "owned"))
			},
		},
		{
			FQN:    "ownership.register_ubo",
			Family: contracts.OpRegisterUBO,
			Args: []ArgSpec{
				{Key: "entity", Kind: ArgEntityRef, Required: true},
				{Key: "person", Kind: ArgEntityRef, Required: true},
				{Key: "pct", Kind: ArgDecimal},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("ubo(%s,%s)", stringValue(a, "entity"), stringValue(a, "person"))
			},
		},
		{
			FQN:    "case.create",
			Family: contracts.OpCreateCase,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "case_type", Kind: ArgString, Required: true},
			},
		},
		{
			FQN:    "case.update_status",
			Family: contracts.OpUpdateCaseStatus,
			Args: []ArgSpec{
				{Key: "case_id", Kind: ArgEntityRef, Required: true},
				{Key: "status", Kind: ArgString, Required: true},
			},
		},
		{
			FQN:    "case.create_workstream",
			Family: contracts.OpCreateWorkstream,
			Args: []ArgSpec{
				{Key: "case_id", Kind: ArgEntityRef, Required: true},
				{Key: "workstream_type", Kind: ArgString, Required: true},
			},
		},
		{
			FQN:    "screening.run",
			Family: contracts.OpRunScreening,
			Args: []ArgSpec{
				{Key: "entity", Kind: ArgEntityRef, Required: true},
				{Key: "screening_type", Kind: ArgString, Required: true},
			},
		},
		{
			FQN:    "custody.add_universe",
			Family: contracts.OpAddUniverse,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "name", Kind: ArgString, Required: true},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("universe(%s,%s)", stringValue(a, "cbu"), stringValue(a, "name"))
			},
		},
		{
			FQN:    "custody.create_ssi",
			Family: contracts.OpCreateSSI,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "currency", Kind: ArgString, Required: true},
				{Key: "market", Kind: ArgString, Required: true},
				{Key: "custodian_bic", Kind: ArgString},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("ssi(%s,%s,%s)", stringValue(a, "cbu"), stringValue(a, "currency"), stringValue(a, "market"))
			},
		},
		{
			FQN:    "custody.add_booking_rule",
			Family: contracts.OpAddBookingRule,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "product_type", Kind: ArgString, Required: true},
				{Key: "booking_entity", Kind: ArgString, Required: true},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("booking_rule(%s,%s)", stringValue(a, "cbu"), stringValue(a, "product_type"))
			},
		},
		{
			FQN:    "doc.upsert",
			Family: contracts.OpUpsertDoc,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "doc_type", Kind: ArgString, Required: true},
				{Key: "artifact_digest", Kind: ArgString},
			},
			NaturalKey: func(a map[string]contracts.Value) string {
				return fmt.Sprintf("doc(%s,%s)", stringValue(a, "cbu"), stringValue(a, "doc_type"))
			},
		},
		{
			FQN:    "doc.attach_evidence",
			Family: contracts.OpAttachEvidence,
			Args: []ArgSpec{
				{Key: "case_id", Kind: ArgEntityRef, Required: true},
				{Key: "note", Kind: ArgString},
			},
		},
		{
			FQN:    "trading_profile.materialize",
			Family: contracts.OpMaterialize,
			Args: []ArgSpec{
				{Key: "cbu", Kind: ArgEntityRef, Required: true},
				{Key: "document", Kind: ArgMap, Required: true},
				{Key: "force", Kind: ArgBool},
			},
		},
		{
			FQN:    "capital.transfer",
			Family: contracts.OpTransferCapital,
			Args: []ArgSpec{
				{Key: "source_position_id", Kind: ArgString, Required: true},
				{Key: "target_position_id", Kind: ArgString, Required: true},
				{Key: "transfer_amount", Kind: ArgInt, Required: true},
				{Key: "transfer_currency", Kind: ArgString, Required: true},
			},
		},
		{
			FQN:    "capital.reconcile",
			Family: contracts.OpReconcileCapital,
			Args: []ArgSpec{
				{Key: "instrument_id", Kind: ArgString, Required: true},
			},
		},
		{
			FQN:    "capital.issue_shares",
			Family: contracts.OpIssueShares,
			Args: []ArgSpec{
				{Key: "instrument_id", Kind: ArgString, Required: true},
				{Key: "holder_id", Kind: ArgEntityRef, Required: true},
				{Key: "units", Kind: ArgInt, Required: true},
				{Key: "authorized_shares", Kind: ArgInt},
			},
		},
		{
			FQN:    "capital.cancel_shares",
			Family: contracts.OpCancelShares,
			Args: []ArgSpec{
				{Key: "instrument_id", Kind: ArgString, Required: true},
				{Key: "holder_id", Kind: ArgEntityRef, Required: true},
				{Key: "units", Kind: ArgInt, Required: true},
			},
		},
	}
}

// trigramSimilarity is a Dice-coefficient trigram similarity in [0,1],
// the same scoring idiom the resolver's fuzzy entity search uses (§3.7),
// reused here so UnknownVerb suggestions and entity fuzzy-matching stay
// consistent.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	seen := make(map[string]int, len(tb))
	for _, t := range tb {
		seen[t]++
	}
	for _, t := range ta {
		if seen[t] > 0 {
			shared++
			seen[t]--
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func trigrams(s string) []string {
	s = "  " + strings.ToLower(s) + " "
	if len(s) < 3 {
		return nil
	}
	out := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		out = append(out, s[i:i+3])
	}
	return out
}
