package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/ecsig"
)

var (
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the signature catalog",
	Long:  "Run queries against an indexed tree. All line and column numbers are 0-based.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagSort, "sort", "", "sort field: owner|file|term_count")
	queryCmd.PersistentFlags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")

	queryCmd.AddCommand(signaturesCmd)
	queryCmd.AddCommand(ownerCmd)
	queryCmd.AddCommand(signatureCmd)
	queryCmd.AddCommand(equivalentCmd)
	queryCmd.AddCommand(readersCmd)
	queryCmd.AddCommand(writersCmd)
	queryCmd.AddCommand(excludersCmd)
	queryCmd.AddCommand(tableFreeCmd)
	queryCmd.AddCommand(diagnosticsCmd)
	queryCmd.AddCommand(summaryCmd)
}

// --- Helpers ---

// parseIDArg parses a positional argument as a positive ID with a clear error.
func parseIDArg(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", value)
	}
	return n, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	return writeJSON(result)
}

func writeJSON(result CLIResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeJSON(CLIResult{
		Command: command,
		Error:   err.Error(),
	})
	return err
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() ecsig.Pagination {
	return ecsig.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

// buildSort creates a Sort from CLI flags.
func buildSort() ecsig.Sort {
	var field ecsig.SortField
	switch flagSort {
	case "file":
		field = ecsig.SortByFile
	case "term_count":
		field = ecsig.SortByTermCount
	default:
		field = ecsig.SortByOwner
	}

	var order ecsig.SortOrder
	switch flagOrder {
	case "desc":
		order = ecsig.Desc
	default:
		order = ecsig.Asc
	}

	return ecsig.Sort{Field: field, Order: order}
}

// runSignatureList is the shared body of the commands that return a plain
// list of signatures.
func runSignatureList(command string, fetch func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error)) error {
	e, err := openExistingEngine()
	if err != nil {
		return outputError(command, err)
	}
	defer e.Close()

	sigs, err := fetch(e.Query())
	if err != nil {
		return outputError(command, err)
	}
	out := signaturesToCLI(e.Store(), sigs)
	total := len(out)
	return outputResult(CLIResult{Command: command, Results: out, TotalCount: &total})
}

// --- Listing Commands ---

var (
	flagFilterOwner     string
	flagFilterKind      string
	flagFilterComponent string
	flagFilterPath      string
	flagFilterValid     bool
	flagFilterInvalid   bool
)

var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "List signatures with optional filters",
	Args:  cobra.NoArgs,
	RunE:  runSignatures,
}

func init() {
	signaturesCmd.Flags().StringVar(&flagFilterOwner, "owner", "", "filter by owner")
	signaturesCmd.Flags().StringVar(&flagFilterKind, "kind", "", "filter by declaring call (e.g. ECS_SYSTEM)")
	signaturesCmd.Flags().StringVar(&flagFilterComponent, "component", "", "filter by component identifier")
	signaturesCmd.Flags().StringVar(&flagFilterPath, "path-prefix", "", "filter by file path prefix")
	signaturesCmd.Flags().BoolVar(&flagFilterValid, "valid", false, "only signatures that compiled")
	signaturesCmd.Flags().BoolVar(&flagFilterInvalid, "invalid", false, "only signatures that failed to compile")
	signaturesCmd.MarkFlagsMutuallyExclusive("valid", "invalid")
}

func runSignatures(cmd *cobra.Command, args []string) error {
	e, err := openExistingEngine()
	if err != nil {
		return outputError("signatures", err)
	}
	defer e.Close()

	filter := ecsig.SignatureFilter{}
	if flagFilterOwner != "" {
		filter.Owner = &flagFilterOwner
	}
	if flagFilterKind != "" {
		filter.Kind = &flagFilterKind
	}
	if flagFilterComponent != "" {
		filter.Component = &flagFilterComponent
	}
	if flagFilterPath != "" {
		prefix, err := resolveFilePath(flagFilterPath)
		if err != nil {
			return outputError("signatures", err)
		}
		filter.PathPrefix = &prefix
	}
	switch {
	case flagFilterValid:
		filter.Valid = boolPtr(true)
	case flagFilterInvalid:
		filter.Valid = boolPtr(false)
	}

	res, err := e.Query().Signatures(filter, buildSort(), buildPagination())
	if err != nil {
		return outputError("signatures", err)
	}
	out := make([]CLISignature, len(res.Items))
	for i, item := range res.Items {
		out[i] = signatureToCLI(&item.Signature, item.FilePath)
	}
	return outputResult(CLIResult{Command: "signatures", Results: out, TotalCount: &res.TotalCount})
}

var ownerCmd = &cobra.Command{
	Use:   "owner <name>",
	Short: "List the signatures declared by a system or query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignatureList("owner", func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error) {
			return q.SignaturesByOwner(args[0])
		})
	},
}

var tableFreeCmd = &cobra.Command{
	Use:   "table-free",
	Short: "List valid signatures that never match against entity tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignatureList("table-free", func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error) {
			return q.TableFreeSignatures()
		})
	},
}

var equivalentCmd = &cobra.Command{
	Use:   "equivalent <signature-id>",
	Short: "List signatures whose text matches ignoring whitespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return outputError("equivalent", err)
		}
		return runSignatureList("equivalent", func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error) {
			return q.Equivalent(id)
		})
	},
}

// --- Component Commands ---

var readersCmd = &cobra.Command{
	Use:   "readers <component>",
	Short: "List signatures that read a component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignatureList("readers", func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error) {
			return q.Readers(args[0])
		})
	},
}

var writersCmd = &cobra.Command{
	Use:   "writers <component>",
	Short: "List signatures that write a component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignatureList("writers", func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error) {
			return q.Writers(args[0])
		})
	},
}

var excludersCmd = &cobra.Command{
	Use:   "excluders <component>",
	Short: "List signatures that exclude a component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignatureList("excluders", func(q *ecsig.QueryBuilder) ([]*ecsig.Signature, error) {
			return q.Excluders(args[0])
		})
	},
}

// --- Detail Commands ---

var signatureCmd = &cobra.Command{
	Use:   "signature <signature-id>",
	Short: "Show a signature with its terms and diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignature,
}

func runSignature(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return outputError("signature", err)
	}
	e, err := openExistingEngine()
	if err != nil {
		return outputError("signature", err)
	}
	defer e.Close()

	d, err := e.Query().SignatureDetail(id)
	if err != nil {
		return outputError("signature", err)
	}
	if d == nil {
		return outputError("signature", fmt.Errorf("signature %d not found", id))
	}
	return outputResult(CLIResult{Command: "signature", Results: detailToCLI(e.Store(), d)})
}

var flagDiagKind string

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List parse and lint diagnostics",
	Args:  cobra.NoArgs,
	RunE:  runDiagnostics,
}

func init() {
	diagnosticsCmd.Flags().StringVar(&flagDiagKind, "kind", "", "filter by kind: parse|lint")
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	switch flagDiagKind {
	case "", ecsig.DiagnosticParse, ecsig.DiagnosticLint:
	default:
		return outputError("diagnostics", fmt.Errorf("invalid kind %q: must be %s or %s",
			flagDiagKind, ecsig.DiagnosticParse, ecsig.DiagnosticLint))
	}
	e, err := openExistingEngine()
	if err != nil {
		return outputError("diagnostics", err)
	}
	defer e.Close()

	diags, err := e.Query().Diagnostics(flagDiagKind)
	if err != nil {
		return outputError("diagnostics", err)
	}
	out := diagnosticsToCLI(e.Store(), diags)
	total := len(out)
	return outputResult(CLIResult{Command: "diagnostics", Results: out, TotalCount: &total})
}

var flagTop int

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show catalog counts and the most used components",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().IntVar(&flagTop, "top", 10, "number of components to list, 0 for all")
}

func runSummary(cmd *cobra.Command, args []string) error {
	e, err := openExistingEngine()
	if err != nil {
		return outputError("summary", err)
	}
	defer e.Close()

	s, err := e.Query().Summary(flagTop)
	if err != nil {
		return outputError("summary", err)
	}
	return outputResult(CLIResult{Command: "summary", Results: summaryToCLI(s)})
}
