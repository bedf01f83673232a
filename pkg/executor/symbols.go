package executor

import (
	"fmt"

	"github.com/onboardkit/semos/pkg/contracts"
)

// SymbolTable accumulates the keys an executing sheet's statements
// produce, so later statements can reference `@name` bindings made
// earlier in the same sheet. It is exclusively owned by one sheet's
// executor instance — never shared across sheets (§5).
type SymbolTable struct {
	values map[string]any
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{values: make(map[string]any)}
}

// Bind records the value produced under name.
func (s *SymbolTable) Bind(name string, value any) {
	if name == "" {
		return
	}
	s.values[name] = value
}

// Resolve looks up a previously bound symbol.
func (s *SymbolTable) Resolve(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Substitute resolves every `@name` reference in args against the
// cumulative symbol table, walking the compiled AST Value nodes down to
// plain Go values a handler can consume directly. It returns an error
// naming the first binding that could not be found.
func (s *SymbolTable) Substitute(args map[string]contracts.Value) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		resolved, err := s.substituteValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (s *SymbolTable) substituteValue(v contracts.Value) (any, error) {
	switch v.Kind {
	case contracts.NodeSymbolRef:
		val, ok := s.Resolve(v.SymbolName)
		if !ok {
			return nil, fmt.Errorf("unresolved symbol @%s", v.SymbolName)
		}
		return val, nil
	case contracts.NodeEntityRef:
		if v.ResolvedKey == "" {
			return nil, fmt.Errorf("entity reference %q (%s) was never resolved", v.SearchValue, v.EntityType)
		}
		return v.ResolvedKey, nil
	case contracts.NodeList:
		out := make([]any, len(v.Items))
		for i, elem := range v.Items {
			resolved, err := s.substituteValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case contracts.NodeMap:
		out := make(map[string]any, len(v.Pairs))
		for _, kv := range v.Pairs {
			resolved, err := s.substituteValue(kv.Value)
			if err != nil {
				return nil, err
			}
			out[kv.Key] = resolved
		}
		return out, nil
	case contracts.NodeNested:
		return nil, fmt.Errorf("nested verb call in argument position must be compiled to a prior op, not substituted directly")
	default: // NodeLiteral
		return literalValue(v), nil
	}
}

func literalValue(v contracts.Value) any {
	switch v.LiteralKind {
	case contracts.LiteralInt:
		return v.IntVal
	case contracts.LiteralBool:
		return v.BoolVal
	case contracts.LiteralNull:
		return nil
	case contracts.LiteralDecimal:
		return v.DecimalVal
	default: // LiteralString, LiteralUUID
		return v.StringVal
	}
}
