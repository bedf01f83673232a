package executor

import (
	"fmt"
	"sort"

	"github.com/onboardkit/semos/pkg/contracts"
)

// BuildPhases computes the DAG phases for a compiled op list using
// Kahn-style topological levelling (§4.7): depth(op) = 1 + max(depth of
// the producer of each key op consumes), leaves sit at depth 0. Ties
// within a phase preserve author-sheet order for determinism.
func BuildPhases(ops []*contracts.Op) ([]contracts.Phase, error) {
	producerOf := make(map[string]int, len(ops)) // key -> op index
	for i, op := range ops {
		if op.Produces != "" {
			producerOf[op.Produces] = i
		}
	}

	depth := make([]int, len(ops))
	resolved := make([]bool, len(ops))

	var resolve func(i int, visiting map[int]bool) (int, error)
	resolve = func(i int, visiting map[int]bool) (int, error) {
		if resolved[i] {
			return depth[i], nil
		}
		if visiting[i] {
			return 0, fmt.Errorf("executor: cycle detected at statement %d", ops[i].SourceStmt)
		}
		visiting[i] = true

		maxParent := -1
		for _, key := range ops[i].Consumes {
			producerIdx, ok := producerOf[key]
			if !ok {
				continue // key bound outside this sheet (e.g. a prior resolved entity) — not a dependency edge
			}
			if producerIdx == i {
				continue
			}
			d, err := resolve(producerIdx, visiting)
			if err != nil {
				return 0, err
			}
			if d > maxParent {
				maxParent = d
			}
		}

		d := 0
		if maxParent >= 0 {
			d = maxParent + 1
		}
		depth[i] = d
		resolved[i] = true
		delete(visiting, i)
		return d, nil
	}

	for i := range ops {
		if _, err := resolve(i, map[int]bool{}); err != nil {
			return nil, err
		}
	}

	byDepth := make(map[int][]int)
	maxDepth := 0
	for i, d := range depth {
		byDepth[d] = append(byDepth[d], i)
		if d > maxDepth {
			maxDepth = d
		}
	}

	phases := make([]contracts.Phase, 0, maxDepth+1)
	for d := 0; d <= maxDepth; d++ {
		indices := byDepth[d]
		sort.Ints(indices) // author-sheet order within a phase
		phases = append(phases, contracts.Phase{Depth: uint32(d), StatementIndices: indices})
	}
	return phases, nil
}
