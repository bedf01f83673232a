package contracts

import "fmt"

// ErrorCode is the closed catalogue of error codes surfaced verbatim to
// callers (§6.4).
type ErrorCode string

const (
	CodeSyntaxError        ErrorCode = "SyntaxError"
	CodeUnresolvedSymbol   ErrorCode = "UnresolvedSymbol"
	CodeEntityNotFound     ErrorCode = "EntityNotFound"
	CodeAmbiguousEntity    ErrorCode = "AmbiguousEntity"
	CodeTypeMismatch       ErrorCode = "TypeMismatch"
	CodeMissingRequiredArg ErrorCode = "MissingRequiredArg"
	CodeUnknownArg         ErrorCode = "UnknownArg"
	CodeUnknownVerb        ErrorCode = "UnknownVerb"
	CodeDbConstraint       ErrorCode = "DbConstraint"
	CodeDbConnection       ErrorCode = "DbConnection"
	CodePermissionDenied   ErrorCode = "PermissionDenied"
	CodeBlocked            ErrorCode = "Blocked"
	CodeCancelled          ErrorCode = "Cancelled"
	CodeTimeout            ErrorCode = "Timeout"
	CodeInternalError      ErrorCode = "InternalError"
)

// ErrorClass buckets codes by the §7 taxonomy, which determines how the
// error propagates (pre-execution diagnostic, structured deny, or
// rollback-triggering runtime fault).
type ErrorClass string

const (
	ClassAuthor  ErrorClass = "author"
	ClassPolicy  ErrorClass = "policy"
	ClassRuntime ErrorClass = "runtime"
)

var codeClass = map[ErrorCode]ErrorClass{
	CodeSyntaxError:        ClassAuthor,
	CodeUnknownVerb:        ClassAuthor,
	CodeMissingRequiredArg: ClassAuthor,
	CodeUnknownArg:         ClassAuthor,
	CodeUnresolvedSymbol:   ClassAuthor,
	CodeTypeMismatch:       ClassAuthor,
	CodeAmbiguousEntity:    ClassAuthor,
	CodeEntityNotFound:     ClassAuthor,
	CodePermissionDenied:   ClassPolicy,
	CodeDbConstraint:       ClassRuntime,
	CodeDbConnection:       ClassRuntime,
	CodeCancelled:          ClassRuntime,
	CodeTimeout:            ClassRuntime,
	CodeBlocked:            ClassRuntime,
	CodeInternalError:      ClassRuntime,
}

// Class returns which of §7's three propagation buckets a code belongs to.
func (c ErrorCode) Class() ErrorClass {
	if cl, ok := codeClass[c]; ok {
		return cl
	}
	return ClassRuntime
}

// CodedError carries one of the enumerated error codes end to end from
// the package that detected it to the sheet result surfaced to the
// caller.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewCodedError builds a CodedError, optionally wrapping a cause.
func NewCodedError(code ErrorCode, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

// DiagnosticSeverity classifies an LSP-style diagnostic.
type DiagnosticSeverity string

const (
	SeverityError   DiagnosticSeverity = "Error"
	SeverityWarning DiagnosticSeverity = "Warning"
	SeverityInfo    DiagnosticSeverity = "Info"
)

// DiagnosticCode enumerates the validator's diagnostic kinds (§4.5).
type DiagnosticCode string

const (
	DiagSyntaxError      DiagnosticCode = "SyntaxError"
	DiagUnknownVerb      DiagnosticCode = "UnknownVerb"
	DiagMissingRequiredArg DiagnosticCode = "MissingRequiredArg"
	DiagUnknownArg       DiagnosticCode = "UnknownArg"
	DiagInvalidValue     DiagnosticCode = "InvalidValue"
	DiagUnresolvedSymbol DiagnosticCode = "UnresolvedSymbol"
	DiagDuplicateBinding DiagnosticCode = "DuplicateBinding"
	DiagUnusedBinding    DiagnosticCode = "UnusedBinding"
)

// Diagnostic is one validator finding, with a best-effort span.
type Diagnostic struct {
	Code     DiagnosticCode     `json:"code"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
	Span     Span               `json:"span"`
}

// StatementResult is one entry in a sheet execution result (§6.3).
type StatementResult struct {
	Index           int             `json:"index"`
	DAGDepth        uint32          `json:"dag_depth"`
	Source          string          `json:"source"`
	ResolvedSource  string          `json:"resolved_source,omitempty"`
	Status          StatementStatus `json:"status"`
	Error           *CodedError     `json:"error,omitempty"`
	ReturnedPK      string          `json:"returned_pk,omitempty"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	BlockedBy       int             `json:"blocked_by,omitempty"`
}

// SheetResult is the wire shape returned after executing a sheet (§6.3).
type SheetResult struct {
	SessionID      string            `json:"session_id"`
	SheetID        string            `json:"sheet_id"`
	OverallStatus  SheetStatus       `json:"overall_status"`
	PhasesCompleted int              `json:"phases_completed"`
	PhasesTotal    int               `json:"phases_total"`
	Statements     []StatementResult `json:"statements"`
	StartedAt      string            `json:"started_at"`
	CompletedAt    string            `json:"completed_at"`
	DurationMS     int64             `json:"duration_ms"`
}
