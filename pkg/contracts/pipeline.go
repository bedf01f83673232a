package contracts

// ResolvedStatement pairs one parsed statement with the diagnostics the
// validator raised against it, plus the entity references it resolved
// on the way (§4.5).
type ResolvedStatement struct {
	Index       int               `json:"index"`
	Statement   Statement         `json:"statement"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
	Resolutions map[string]ResolutionResult `json:"resolutions,omitempty"` // argument key -> resolution
}

// SymbolInfo is one entry in the validator's symbol table (§4.5).
type SymbolInfo struct {
	Name       string `json:"name"`
	DefinedAt  int    `json:"defined_at"` // statement index
	Used       bool   `json:"used"`
}

// ResolvedProgram is the validator's output: a parsed program annotated
// with diagnostics and a symbol table, ready for compilation provided no
// Error-severity diagnostic exists anywhere in it.
type ResolvedProgram struct {
	Statements  []ResolvedStatement   `json:"statements"`
	Symbols     map[string]SymbolInfo `json:"symbols"`
	Diagnostics []Diagnostic          `json:"diagnostics"` // program-level, e.g. duplicate bindings
}

// HasErrors reports whether any diagnostic anywhere in the program is
// Error severity, the gate that decides whether compilation may proceed.
func (p *ResolvedProgram) HasErrors() bool {
	for _, d := range p.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	for _, s := range p.Statements {
		for _, d := range s.Diagnostics {
			if d.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}

// CompileError is one failure to compile a statement into an Op.
type CompileError struct {
	StatementIndex int    `json:"statement_index"`
	Code           ErrorCode `json:"code"`
	Message        string `json:"message"`
}

// CompiledProgram is the compiler's output (§4.6): the Op list the
// executor's scheduler consumes, the symbol table mapping each `:as`
// binding to the natural key it compiled to, and any compile errors.
// The compiler does not refuse to emit a partial Op list on error — the
// caller decides whether partial output is usable.
type CompiledProgram struct {
	Ops     []*Op             `json:"ops"`
	Symbols map[string]string `json:"symbols"` // binding name -> natural/produced key
	Errors  []CompileError    `json:"errors,omitempty"`
}
