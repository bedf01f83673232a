package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/onboardkit/semos/pkg/compiler"
	"github.com/onboardkit/semos/pkg/config"
	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/dsl"
	"github.com/onboardkit/semos/pkg/executor"
	"github.com/onboardkit/semos/pkg/handlers"
	"github.com/onboardkit/semos/pkg/ledger"
	"github.com/onboardkit/semos/pkg/materializer"
	"github.com/onboardkit/semos/pkg/resolver"
	"github.com/onboardkit/semos/pkg/validator"
	"github.com/onboardkit/semos/pkg/verbs"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests.
var startServer = runServer

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "server", "serve":
		startServer()
		return 0
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			startServer()
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
	ColorGreen  = "\033[32m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%ssemosd%s\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(w, "%sSemantic Operating System kernel — accepts sheets, runs them, audits them.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  semosd <command>")
	fmt.Fprintln(w, "")
	printSection(w, "COMMANDS")
	printCommand(w, "server", "Run the kernel (default)")
	printCommand(w, "health", "Check server health (HTTP)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// healthPort is the fixed port the health-check HTTP server listens on,
// separate from the main sheet-execution server so a liveness probe
// never queues behind an in-flight sheet.
const healthPort = "8081"

// kernel bundles every subsystem the sheet pipeline needs, assembled
// once at startup and shared across requests.
type kernel struct {
	db        *sql.DB
	verbs     *verbs.Registry
	validator *validator.Validator
	compiler  *compiler.Compiler
	executor  *executor.Executor
}

func runServer() {
	fmt.Fprintf(os.Stdout, "%ssemosd starting...%s\n", ColorBold+ColorBlue, ColorReset)
	ctx := context.Background()
	cfg := config.Load()

	k, err := buildKernel(ctx, cfg)
	if err != nil {
		log.Fatalf("[semosd] startup failed: %v", err)
	}
	defer func() { _ = k.db.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sheets", k.handleRunSheet)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := k.db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	healthServer := &http.Server{Addr: ":" + healthPort, Handler: healthMux}

	go func() {
		log.Printf("[semosd] sheet server listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[semosd] sheet server: %v", err)
		}
	}()
	go func() {
		log.Printf("[semosd] health server listening on :%s", healthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[semosd] health server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("[semosd] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = healthServer.Shutdown(shutdownCtx)
}

// buildKernel opens the database (Postgres, falling back to an
// embedded sqlite "Lite Mode" when DATABASE_URL is unset), runs every
// subsystem's Init, and wires the parse -> resolve -> validate ->
// compile -> execute pipeline.
func buildKernel(ctx context.Context, cfg *config.Config) (*kernel, error) {
	dbURL := os.Getenv("DATABASE_URL")

	var (
		db       *sql.DB
		res      *resolver.Resolver
		err      error
	)

	if dbURL == "" {
		fmt.Fprintf(os.Stdout, "DATABASE_URL not set. Falling back to %sLite Mode%s (sqlite, no entity resolution).\n", ColorBold+ColorCyan, ColorReset)
		db, err = setupLiteMode(ctx)
		if err != nil {
			return nil, fmt.Errorf("lite mode: %w", err)
		}
		res = nil
	} else {
		db, err = sql.Open("postgres", dbURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("pinging postgres: %w", err)
		}
		log.Println("[semosd] postgres: connected")

		resolverStore := resolver.NewPostgresStore(db)
		if err := resolverStore.Init(ctx); err != nil {
			return nil, fmt.Errorf("init resolver store: %w", err)
		}
		res = resolver.New(resolverStore, resolverStore)
	}

	if err := materializer.Init(ctx, db); err != nil {
		return nil, fmt.Errorf("init materializer: %w", err)
	}

	v := verbs.Default()
	val := validator.New(v, res)
	comp := compiler.New(v)

	runLedger := ledger.NewTypedLedger(ledger.LedgerRun)
	audit := ledger.NewSheetAuditLedger(runLedger)
	exec := executor.New(db, handlers.Register(), audit, 0)

	return &kernel{db: db, verbs: v, validator: val, compiler: comp, executor: exec}, nil
}

// sheetRequest is the wire shape for POST /v1/sheets: an authored sheet
// expressed in the verb DSL, scoped to a client group for entity
// resolution.
type sheetRequest struct {
	SessionID     string `json:"session_id"`
	SheetID       string `json:"sheet_id"`
	ClientGroupID string `json:"client_group_id"`
	DSL           string `json:"dsl"`
}

func (k *kernel) handleRunSheet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, status, err := k.runSheet(r.Context(), req)
	if err != nil {
		writeJSONError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

// runSheet drives one sheet through the full pipeline: parse, validate
// (which resolves entity references against the client group), compile
// to ops, phase the DAG, and execute within one transaction.
func (k *kernel) runSheet(ctx context.Context, req sheetRequest) (any, int, error) {
	prog, diag := dsl.Parse(req.DSL)
	if diag != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("parse error at %v: %s", diag.Span, diag.Message)
	}

	resolved, err := k.validator.Validate(ctx, req.ClientGroupID, prog)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("validating sheet: %w", err)
	}
	if resolved.HasErrors() {
		return resolved.Diagnostics, http.StatusUnprocessableEntity, fmt.Errorf("sheet failed validation")
	}

	compiled := k.compiler.Compile(resolved)
	if len(compiled.Errors) > 0 {
		return compiled.Errors, http.StatusUnprocessableEntity, fmt.Errorf("sheet failed to compile")
	}

	phases, err := executor.BuildPhases(compiled.Ops)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, fmt.Errorf("phasing ops: %w", err)
	}

	sheet := &contracts.Sheet{
		SessionID:  req.SessionID,
		SheetID:    req.SheetID,
		Statements: prog.Statements,
		Phases:     phases,
		Status:     contracts.SheetExecuting,
	}

	result, err := k.executor.ExecuteSheet(ctx, sheet, compiled.Ops, nil)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("executing sheet: %w", err)
	}
	return result, http.StatusOK, nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:" + healthPort + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
