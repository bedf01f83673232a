package registry

import (
	"encoding/json"

	"github.com/onboardkit/semos/pkg/contracts"
)

// derivationDefinition is the shape a derivation-spec's opaque Definition
// payload must take for the derivation-well-typed gate to inspect it.
type derivationDefinition struct {
	InputFQNs      []string `json:"input_fqns"`
	OutputFQN      string   `json:"output_fqn"`
	InheritanceMode string  `json:"inheritance_mode,omitempty"`
}

// derivationUnresolvedFQNs returns every FQN a derivation-spec references
// (its inputs and its own output) that does not exist as an attribute
// FQN anywhere in the current snapshot horizon.
func derivationUnresolvedFQNs(snap *contracts.Snapshot, horizon []*contracts.Snapshot) []string {
	var def derivationDefinition
	if err := json.Unmarshal(snap.Definition, &def); err != nil {
		return []string{"<unparseable definition>"}
	}

	known := knownFQNs(horizon)

	var missing []string
	for _, fqn := range def.InputFQNs {
		if _, ok := known[fqn]; !ok {
			missing = append(missing, fqn)
		}
	}
	if def.OutputFQN != "" {
		if _, ok := known[def.OutputFQN]; !ok {
			missing = append(missing, def.OutputFQN)
		}
	}
	return missing
}

// knownFQNs indexes the attribute-def object IDs present in the
// horizon, since an attribute's FQN is its object_id by convention.
func knownFQNs(horizon []*contracts.Snapshot) map[string]struct{} {
	known := make(map[string]struct{}, len(horizon))
	for _, snap := range horizon {
		if snap.ObjectType == contracts.ObjectAttributeDef || snap.ObjectType == contracts.ObjectObservationDef {
			known[snap.ObjectID] = struct{}{}
		}
	}
	return known
}

// securityInheritanceWarning checks that a derived attribute's label
// dominates its inputs' labels unless the derivation explicitly relaxes
// inheritance — a Warning-severity gate, never blocking publish.
func securityInheritanceWarning(snap *contracts.Snapshot, horizon []*contracts.Snapshot) string {
	if snap.ObjectType != contracts.ObjectDerivationSpec {
		return ""
	}
	var def derivationDefinition
	if err := json.Unmarshal(snap.Definition, &def); err != nil {
		return ""
	}
	if def.InheritanceMode != "" {
		return "" // explicit inheritance mode relaxes the check
	}

	byID := make(map[string]*contracts.Snapshot, len(horizon))
	for _, s := range horizon {
		byID[s.ObjectID] = s
	}

	outputRank := contracts.ClassificationOrder[snap.SecurityLabel.Classification]
	for _, inputFQN := range def.InputFQNs {
		input, ok := byID[inputFQN]
		if !ok {
			continue
		}
		inputRank := contracts.ClassificationOrder[input.SecurityLabel.Classification]
		if outputRank < inputRank {
			return "derived attribute label does not dominate input " + inputFQN
		}
	}
	return ""
}
