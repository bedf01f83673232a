// Package validator implements the LSP-style diagnostics engine (§4.5):
// it walks a parsed Program, checks each verb call against the verb
// registry, tracks the symbol table @bindings form and consume, and
// delegates entity-reference argument values to the resolver (§4.4).
// Its output, a ResolvedProgram, only carries a usable resolved_key per
// reference when no Error-severity diagnostic exists anywhere in the
// program — Warning/Info diagnostics never block compilation.
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/resolver"
	"github.com/onboardkit/semos/pkg/verbs"
)

// Validator is stateless aside from the process-wide verb registry and
// an optional resolver; a nil resolver disables entity-reference
// resolution but still performs every syntactic and symbol-table check.
type Validator struct {
	verbs    *verbs.Registry
	resolver *resolver.Resolver
}

// New builds a Validator over a verb registry and an optional resolver.
func New(v *verbs.Registry, r *resolver.Resolver) *Validator {
	return &Validator{verbs: v, resolver: r}
}

// Validate walks prog and produces a ResolvedProgram. clientGroupID
// scopes any entity resolution performed along the way.
func (v *Validator) Validate(ctx context.Context, clientGroupID string, prog *contracts.Program) (*contracts.ResolvedProgram, error) {
	symbols := make(map[string]contracts.SymbolInfo)
	bindingSpans := make(map[string]contracts.Span)
	var programDiagnostics []contracts.Diagnostic
	statements := make([]contracts.ResolvedStatement, len(prog.Statements))

	for idx, stmt := range prog.Statements {
		rs := contracts.ResolvedStatement{Index: idx, Statement: stmt}
		if stmt.Kind != contracts.StatementVerbCall {
			statements[idx] = rs
			continue
		}
		call := stmt.Call

		if err := v.validateCall(ctx, clientGroupID, call, &rs); err != nil {
			return nil, err
		}

		for _, arg := range call.Arguments {
			v.checkSymbolUsage(arg.Value, symbols, &rs)
		}

		if call.Binding != "" {
			if _, exists := symbols[call.Binding]; exists {
				programDiagnostics = append(programDiagnostics, contracts.Diagnostic{
					Code:     contracts.DiagDuplicateBinding,
					Severity: contracts.SeverityError,
					Message:  "duplicate binding @" + call.Binding,
					Span:     call.Span,
				})
			} else {
				symbols[call.Binding] = contracts.SymbolInfo{Name: call.Binding, DefinedAt: idx}
				bindingSpans[call.Binding] = call.Span
			}
		}

		statements[idx] = rs
	}

	for name, info := range symbols {
		if !info.Used {
			programDiagnostics = append(programDiagnostics, contracts.Diagnostic{
				Code:     contracts.DiagUnusedBinding,
				Severity: contracts.SeverityWarning,
				Message:  "unused binding @" + name,
				Span:     bindingSpans[name],
			})
		}
	}

	return &contracts.ResolvedProgram{
		Statements:  statements,
		Symbols:     symbols,
		Diagnostics: programDiagnostics,
	}, nil
}

func (v *Validator) validateCall(ctx context.Context, clientGroupID string, call *contracts.VerbCall, rs *contracts.ResolvedStatement) error {
	def, ok := v.verbs.Lookup(call.FQN())
	if !ok {
		msg := "unknown verb " + call.FQN()
		if suggestions := v.verbs.Suggest(call.FQN(), 3); len(suggestions) > 0 {
			msg += "; did you mean: " + strings.Join(suggestions, ", ") + "?"
		}
		rs.Diagnostics = append(rs.Diagnostics, contracts.Diagnostic{
			Code: contracts.DiagUnknownVerb, Severity: contracts.SeverityError, Message: msg, Span: call.Span,
		})
		return nil
	}

	seen := make(map[string]bool, len(call.Arguments))
	for _, arg := range call.Arguments {
		seen[arg.Key] = true
		spec, known := def.ArgByKey(arg.Key)
		if !known {
			rs.Diagnostics = append(rs.Diagnostics, contracts.Diagnostic{
				Code: contracts.DiagUnknownArg, Severity: contracts.SeverityWarning,
				Message: fmt.Sprintf("verb %s has no argument %q", call.FQN(), arg.Key), Span: arg.Span,
			})
			continue
		}
		if diag := validateArgShape(spec, arg.Value); diag != nil {
			rs.Diagnostics = append(rs.Diagnostics, *diag)
			continue
		}
		if arg.Value.Kind == contracts.NodeEntityRef && v.resolver != nil {
			result, err := v.resolver.Search(ctx, clientGroupID, arg.Value.SearchValue)
			if err != nil {
				return err
			}
			if rs.Resolutions == nil {
				rs.Resolutions = make(map[string]contracts.ResolutionResult)
			}
			rs.Resolutions[arg.Key] = *result
			if result.Status != contracts.ResolutionResolved {
				rs.Diagnostics = append(rs.Diagnostics, contracts.Diagnostic{
					Code: contracts.DiagInvalidValue, Severity: contracts.SeverityError,
					Message: fmt.Sprintf("could not resolve %s:%s (%s)", arg.Value.EntityType, arg.Value.SearchValue, result.Status),
					Span:    arg.Span,
				})
			}
		}
	}

	for _, req := range def.RequiredArgs() {
		if !seen[req.Key] {
			rs.Diagnostics = append(rs.Diagnostics, contracts.Diagnostic{
				Code: contracts.DiagMissingRequiredArg, Severity: contracts.SeverityError,
				Message: "missing required argument " + req.Key, Span: call.Span,
			})
		}
	}
	return nil
}

// validateArgShape checks a value's node kind matches the verb
// contract's declared argument kind. Symbol references and nested verb
// calls are left to the compiler/resolver to validate since their
// eventual type depends on runtime binding, not static shape.
func validateArgShape(spec verbs.ArgSpec, val contracts.Value) *contracts.Diagnostic {
	if val.Kind == contracts.NodeSymbolRef || val.Kind == contracts.NodeNested {
		return nil
	}
	ok := true
	switch spec.Kind {
	case verbs.ArgString:
		ok = val.Kind == contracts.NodeLiteral && (val.LiteralKind == contracts.LiteralString || val.LiteralKind == contracts.LiteralUUID)
	case verbs.ArgInt:
		ok = val.Kind == contracts.NodeLiteral && val.LiteralKind == contracts.LiteralInt
	case verbs.ArgDecimal:
		ok = val.Kind == contracts.NodeLiteral && (val.LiteralKind == contracts.LiteralDecimal || val.LiteralKind == contracts.LiteralInt)
	case verbs.ArgBool:
		ok = val.Kind == contracts.NodeLiteral && val.LiteralKind == contracts.LiteralBool
	case verbs.ArgEntityRef:
		ok = val.Kind == contracts.NodeEntityRef || (val.Kind == contracts.NodeLiteral && val.LiteralKind == contracts.LiteralUUID)
	case verbs.ArgMap:
		ok = val.Kind == contracts.NodeMap
	case verbs.ArgAny:
		ok = true
	}
	if ok {
		return nil
	}
	return &contracts.Diagnostic{
		Code: contracts.DiagInvalidValue, Severity: contracts.SeverityError,
		Message: fmt.Sprintf("argument expects %s, got %s", spec.Kind, val.Kind),
		Span:    val.Span,
	}
}

// checkSymbolUsage marks @name references as used and raises
// UnresolvedSymbol for any binding never defined earlier in the
// program, recursing into list/map/nested structure.
func (v *Validator) checkSymbolUsage(val contracts.Value, symbols map[string]contracts.SymbolInfo, rs *contracts.ResolvedStatement) {
	switch val.Kind {
	case contracts.NodeSymbolRef:
		info, ok := symbols[val.SymbolName]
		if !ok {
			rs.Diagnostics = append(rs.Diagnostics, contracts.Diagnostic{
				Code: contracts.DiagUnresolvedSymbol, Severity: contracts.SeverityError,
				Message: "unresolved symbol @" + val.SymbolName, Span: val.Span,
			})
			return
		}
		info.Used = true
		symbols[val.SymbolName] = info
	case contracts.NodeList:
		for _, item := range val.Items {
			v.checkSymbolUsage(item, symbols, rs)
		}
	case contracts.NodeMap:
		for _, kv := range val.Pairs {
			v.checkSymbolUsage(kv.Value, symbols, rs)
		}
	case contracts.NodeNested:
		for _, arg := range val.Nested.Arguments {
			v.checkSymbolUsage(arg.Value, symbols, rs)
		}
	}
}
