// Package compiler implements the verb→op compiler (§4.6): it turns a
// validator-resolved program into the CompiledProgram the executor's
// DAG scheduler consumes. The compiler is pure beyond the process-wide
// verb registry — the same ResolvedProgram always compiles to the same
// Ops, and it does not refuse to emit a partial Op list on error; the
// caller decides whether partial output is usable.
package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/verbs"
)

// Compiler compiles verb calls into primitive Ops.
type Compiler struct {
	verbs *verbs.Registry
}

// New builds a Compiler over a verb registry.
func New(v *verbs.Registry) *Compiler {
	return &Compiler{verbs: v}
}

type compileState struct {
	ops        []*contracts.Op
	symbolKeys map[string]string
	errors     []contracts.CompileError
	synthetic  int
}

// Compile turns every verb-call statement in resolved into an Op,
// threading :as bindings and nested verb calls through a symbol table
// that maps each binding name to its produced natural key.
func (c *Compiler) Compile(resolved *contracts.ResolvedProgram) *contracts.CompiledProgram {
	st := &compileState{symbolKeys: make(map[string]string)}
	for idx, rs := range resolved.Statements {
		if rs.Statement.Kind != contracts.StatementVerbCall {
			continue
		}
		c.compileCall(idx, rs.Statement.Call, rs.Resolutions, st)
	}
	return &contracts.CompiledProgram{Ops: st.ops, Symbols: st.symbolKeys, Errors: st.errors}
}

// compileCall compiles one verb call into an Op appended to st.ops and
// returns the key it produces (empty if compilation failed), so a
// caller flattening a nested call can wire its consumer up to it.
func (c *Compiler) compileCall(idx int, call *contracts.VerbCall, resolutions map[string]contracts.ResolutionResult, st *compileState) string {
	def, ok := c.verbs.Lookup(call.FQN())
	if !ok {
		st.errors = append(st.errors, contracts.CompileError{
			StatementIndex: idx, Code: contracts.CodeUnknownVerb, Message: "unknown verb " + call.FQN(),
		})
		return ""
	}

	args := make(map[string]contracts.Value, len(call.Arguments))
	var consumes []string
	failed := false
	for _, arg := range call.Arguments {
		rewritten, argConsumes, err := c.rewriteValue(idx, arg.Value, resolutions, arg.Key, st)
		if err != nil {
			st.errors = append(st.errors, contracts.CompileError{
				StatementIndex: idx, Code: contracts.CodeUnresolvedSymbol, Message: err.Error(),
			})
			failed = true
			continue
		}
		args[arg.Key] = rewritten
		consumes = append(consumes, argConsumes...)
	}
	if failed {
		return ""
	}

	var naturalKey string
	if def.NaturalKey != nil {
		naturalKey = def.NaturalKey(args)
	}
	produced := naturalKey
	if call.Binding != "" {
		if produced == "" {
			produced = uuid.NewString()
		}
		st.symbolKeys[call.Binding] = produced
	}

	op := &contracts.Op{
		Family:     def.Family,
		SourceStmt: idx,
		Args:       args,
		Produces:   produced,
		Consumes:   dedupe(consumes),
		NaturalKey: naturalKey,
	}
	st.ops = append(st.ops, op)
	return produced
}

// rewriteValue walks one argument value, resolving entity references
// (fed by the validator's resolutions), flattening nested verb calls
// into their own preceding Op, and collecting the natural keys this
// value depends on for the DAG scheduler's Consumes edges.
func (c *Compiler) rewriteValue(idx int, val contracts.Value, resolutions map[string]contracts.ResolutionResult, argKey string, st *compileState) (contracts.Value, []string, error) {
	switch val.Kind {
	case contracts.NodeSymbolRef:
		key, ok := st.symbolKeys[val.SymbolName]
		if !ok {
			return contracts.Value{}, nil, fmt.Errorf("unresolved symbol @%s", val.SymbolName)
		}
		val.SymbolName = key
		return val, []string{key}, nil

	case contracts.NodeEntityRef:
		if resolutions != nil {
			if res, ok := resolutions[argKey]; ok && res.Status == contracts.ResolutionResolved && res.Resolved != nil {
				val.ResolvedKey = res.Resolved.EntityID
				return val, nil, nil
			}
		}
		return contracts.Value{}, nil, fmt.Errorf("entity reference %s:%s was not resolved", val.EntityType, val.SearchValue)

	case contracts.NodeList:
		items := make([]contracts.Value, len(val.Items))
		var consumes []string
		for i, item := range val.Items {
			rewritten, c2, err := c.rewriteValue(idx, item, resolutions, argKey, st)
			if err != nil {
				return contracts.Value{}, nil, err
			}
			items[i] = rewritten
			consumes = append(consumes, c2...)
		}
		val.Items = items
		return val, consumes, nil

	case contracts.NodeMap:
		pairs := make([]contracts.KV, len(val.Pairs))
		var consumes []string
		for i, kv := range val.Pairs {
			rewritten, c2, err := c.rewriteValue(idx, kv.Value, resolutions, argKey, st)
			if err != nil {
				return contracts.Value{}, nil, err
			}
			pairs[i] = contracts.KV{Key: kv.Key, Value: rewritten}
			consumes = append(consumes, c2...)
		}
		val.Pairs = pairs
		return val, consumes, nil

	case contracts.NodeNested:
		synthetic := fmt.Sprintf("__nested_%d", st.synthetic)
		st.synthetic++
		nested := *val.Nested
		nested.Binding = synthetic
		produced := c.compileCall(idx, &nested, resolutions, st)
		if produced == "" {
			return contracts.Value{}, nil, fmt.Errorf("nested call %s failed to compile", val.Nested.FQN())
		}
		return contracts.Value{Kind: contracts.NodeSymbolRef, SymbolName: produced, Span: val.Span}, []string{produced}, nil

	default: // NodeLiteral
		return val, nil, nil
	}
}

func dedupe(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
