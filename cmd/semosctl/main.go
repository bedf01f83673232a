package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/onboardkit/semos/pkg/dsl"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "parse":
		return runParseCmd(args[2:], stdout, stderr)
	case "run":
		return runSheetCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
	ColorGreen = "\033[32m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%ssemosctl%s\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(w, "%sOperator CLI for the semantic operating system kernel.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  semosctl <command> [flags]")
	fmt.Fprintln(w, "")
	printSection(w, "COMMANDS")
	printCommand(w, "parse", "Parse+validate a sheet file locally (--file)")
	printCommand(w, "run", "Submit a sheet file to a running kernel (--server, --file)")
	printCommand(w, "health", "Check a kernel's health endpoint (--server)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-8s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// runParseCmd parses and syntactically validates a sheet file without
// a server or database — the DSL parser and its diagnostics (§4.5) run
// entirely client-side, so authors can lint a sheet before publishing.
func runParseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("parse", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Sheet file to parse (REQUIRED)")
	jsonOut := cmd.Bool("json", false, "Output diagnostics as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	src, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", *file, err)
		return 2
	}

	prog, diag := dsl.Parse(string(src))
	if diag != nil {
		if *jsonOut {
			_ = json.NewEncoder(stdout).Encode(diag)
		} else {
			fmt.Fprintf(stdout, "%sparse error%s at %v: %s\n", ColorBold, ColorReset, diag.Span, diag.Message)
		}
		return 1
	}

	fmt.Fprintf(stdout, "%sOK%s — %d statement(s) parsed\n", ColorBold+ColorGreen, ColorReset, len(prog.Statements))
	return 0
}

// runSheetCmd submits a sheet file to a running kernel's /v1/sheets
// endpoint and prints the resulting SheetResult (or diagnostics, on
// rejection).
func runSheetCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server := cmd.String("server", "http://localhost:8080", "Kernel base URL")
	file := cmd.String("file", "", "Sheet file to submit (REQUIRED)")
	sessionID := cmd.String("session", "", "Session ID")
	sheetID := cmd.String("sheet", "", "Sheet ID")
	groupID := cmd.String("group", "", "Client group ID for entity resolution")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	src, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", *file, err)
		return 2
	}

	body, err := json.Marshal(map[string]string{
		"session_id":      *sessionID,
		"sheet_id":        *sheetID,
		"client_group_id": *groupID,
		"dsl":             string(src),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding request: %v\n", err)
		return 2
	}

	resp, err := http.Post(*server+"/v1/sheets", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(stderr, "Error submitting sheet: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	if _, err := io.Copy(&pretty, resp.Body); err != nil {
		fmt.Fprintf(stderr, "Error reading response: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, pretty.String())

	if resp.StatusCode >= 300 {
		return 1
	}
	return 0
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server := cmd.String("server", "http://localhost:8081", "Kernel health base URL")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	resp, err := http.Get(*server + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}
