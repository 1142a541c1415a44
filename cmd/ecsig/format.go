package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatTermsText formats CLITerm results as aligned columns.
func formatTermsText(w io.Writer, terms []CLITerm) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tOPERATOR\tACCESS\tSOURCE\tIDENTIFIER\tOFFSET")
	for _, t := range terms {
		src := t.Source
		if t.SourceIdentifier != "" {
			src += " " + t.SourceIdentifier
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n",
			t.Index, t.Operator, t.Access, src, t.Identifier, t.Offset)
	}
	tw.Flush()
}

// formatSignaturesText formats CLISignature results as aligned columns.
func formatSignaturesText(w io.Writer, sigs []CLISignature) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tKIND\tVALID\tSIGNATURE\tFILE\tLINE")
	for _, s := range sigs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%s\t%s\t%d\n",
			s.ID, s.Owner, s.Kind, s.Valid, s.Text, s.File, s.Line)
	}
	tw.Flush()
}

// formatDiagnosticsText formats CLIDiagnostic results as compiler-style
// "file:line:col: severity: message" lines.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	for _, d := range diags {
		label := d.Kind
		if d.Rule != "" {
			label += "/" + d.Rule
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s (%s, %s argument #%d)\n",
			d.File, d.Line+1, d.Col+1, d.Severity, d.Message, label, d.Owner, d.Arg)
	}
}

// formatSignatureDetailText formats CLISignatureDetail as readable text.
func formatSignatureDetailText(w io.Writer, d CLISignatureDetail) {
	s := d.Signature
	fmt.Fprintf(w, "Signature #%d: %s\n", s.ID, s.Text)
	fmt.Fprintf(w, "Owner: %s (%s)\n", s.Owner, s.Kind)
	if s.File != "" {
		fmt.Fprintf(w, "Location: %s:%d:%d\n", s.File, s.Line, s.Col)
	}
	fmt.Fprintf(w, "Valid: %v, needs tables: %v\n", s.Valid, s.NeedsTables)
	fmt.Fprintln(w)

	if len(d.Terms) > 0 {
		formatTermsText(w, d.Terms)
		fmt.Fprintln(w)
	}
	if len(d.Diagnostics) > 0 {
		fmt.Fprintln(w, "Diagnostics:")
		formatDiagnosticsText(w, d.Diagnostics)
	}
}

// formatSummaryText formats CLISummary as readable text.
func formatSummaryText(w io.Writer, summary CLISummary) {
	st := summary.Stats
	fmt.Fprintln(w, "Catalog Summary")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Files: %d\n", st.Files)
	fmt.Fprintf(w, "Signatures: %d (%d invalid)\n", st.Signatures, st.InvalidSignatures)
	fmt.Fprintf(w, "Terms: %d over %d components\n", st.Terms, st.Components)
	fmt.Fprintf(w, "Diagnostics: %d\n", st.Diagnostics)
	fmt.Fprintln(w)

	if len(summary.Kinds) > 0 {
		fmt.Fprintln(w, "Declared by:")
		kinds := make([]string, 0, len(summary.Kinds))
		for kind := range summary.Kinds {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, summary.Kinds[kind])
		}
		fmt.Fprintln(w)
	}

	if len(summary.TopComponents) > 0 {
		fmt.Fprintln(w, "Top Components:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  COMPONENT\tREADERS\tWRITERS\tEXCLUDERS")
		for _, c := range summary.TopComponents {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\n", c.Identifier, c.Readers, c.Writers, c.Excluders)
		}
		tw.Flush()
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	return writeResultText(os.Stdout, result)
}

func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLITerm:
		formatTermsText(w, v)
	case []CLISignature:
		formatSignaturesText(w, v)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case CLISignatureDetail:
		formatSignatureDetailText(w, v)
	case CLISummary:
		formatSummaryText(w, v)
	case CLIStats:
		formatSummaryText(w, CLISummary{Stats: v})
	case CLICount:
		fmt.Fprintln(w, v.Terms)
	case CLINeedsTables:
		fmt.Fprintln(w, v.NeedsTables)
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLITerm:
		return len(r)
	case []CLISignature:
		return len(r)
	case []CLIDiagnostic:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
