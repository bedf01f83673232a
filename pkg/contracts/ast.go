package contracts

// Span locates a node in the authored source text, 1-indexed like most
// editor tooling.
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// NodeKind discriminates the Value union below.
type NodeKind string

const (
	NodeLiteral   NodeKind = "literal"
	NodeSymbolRef NodeKind = "symbol_ref"
	NodeEntityRef NodeKind = "entity_ref"
	NodeList      NodeKind = "list"
	NodeMap       NodeKind = "map"
	NodeNested    NodeKind = "nested"
)

// LiteralKind discriminates the scalar types a Literal node may carry.
type LiteralKind string

const (
	LiteralString  LiteralKind = "string"
	LiteralInt     LiteralKind = "int"
	LiteralDecimal LiteralKind = "decimal"
	LiteralBool    LiteralKind = "bool"
	LiteralNull    LiteralKind = "null"
	LiteralUUID    LiteralKind = "uuid"
)

// Value is one argument value node in the AST. Exactly one of the
// payload fields is populated, selected by Kind.
type Value struct {
	Kind NodeKind `json:"kind"`
	Span Span     `json:"span"`

	// NodeLiteral
	LiteralKind LiteralKind `json:"literal_kind,omitempty"`
	StringVal   string      `json:"string_val,omitempty"`
	IntVal      int64       `json:"int_val,omitempty"`
	DecimalVal  string      `json:"decimal_val,omitempty"` // exact text, parsed lazily
	BoolVal     bool        `json:"bool_val,omitempty"`

	// NodeSymbolRef
	SymbolName string `json:"symbol_name,omitempty"`

	// NodeEntityRef
	EntityType   string `json:"entity_type,omitempty"`
	SearchValue  string `json:"search_value,omitempty"`
	ResolvedKey  string `json:"resolved_key,omitempty"`

	// NodeList
	Items []Value `json:"items,omitempty"`

	// NodeMap
	Pairs []KV `json:"pairs,omitempty"`

	// NodeNested
	Nested *VerbCall `json:"nested,omitempty"`
}

// KV is one key/value pair inside a map literal.
type KV struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Argument is one `:key value` pair on a VerbCall, in authored order.
type Argument struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
	Span  Span   `json:"span"`
}

// VerbCall is `(domain.verb :key value ... :as @binding)`.
type VerbCall struct {
	Domain    string     `json:"domain"`
	Verb      string     `json:"verb"`
	Arguments []Argument `json:"arguments"`
	Binding   string     `json:"binding,omitempty"`
	Span      Span       `json:"span"`
}

// FQN returns the dotted fully-qualified verb name.
func (v VerbCall) FQN() string {
	if v.Domain == "" {
		return v.Verb
	}
	return v.Domain + "." + v.Verb
}

// StatementKind discriminates the Statement union.
type StatementKind string

const (
	StatementComment  StatementKind = "comment"
	StatementVerbCall StatementKind = "verb_call"
)

// Statement is one top-level authored unit.
type Statement struct {
	Kind    StatementKind `json:"kind"`
	Comment string        `json:"comment,omitempty"`
	Call    *VerbCall     `json:"call,omitempty"`
	Span    Span          `json:"span"`
}

// Program is a parsed authored sheet, before resolution.
type Program struct {
	Statements []Statement `json:"statements"`
}
