package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/ecsig"
)

// --- Signature Commands ---

var (
	flagOwner         string
	flagAnnotationMax int
)

var parseCmd = &cobra.Command{
	Use:   "parse <signature>",
	Short: "Compile a signature and print its terms",
	Long:  "Compiles one signature. On a structural error the caret diagnostic is printed and the exit status is 1.",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

var countCmd = &cobra.Command{
	Use:   "count <signature>",
	Short: "Count the terms of a signature without validating it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

var needsTablesCmd = &cobra.Command{
	Use:   "needs-tables <signature>",
	Short: "Report whether a signature matches against entity tables",
	Args:  cobra.ExactArgs(1),
	RunE:  runNeedsTables,
}

func init() {
	for _, cmd := range []*cobra.Command{parseCmd, needsTablesCmd} {
		cmd.Flags().StringVar(&flagOwner, "owner", "", "system or query name used in diagnostics (default from config)")
		cmd.Flags().IntVar(&flagAnnotationMax, "annotation-max", 0, "longest annotation word, 0 disables (default from config)")
	}
}

// commandParser builds a Parser from the config, overridden by flags.
func commandParser(cmd *cobra.Command) *ecsig.Parser {
	owner := cfg.Owner
	if cmd.Flags().Changed("owner") {
		owner = flagOwner
	}
	maxWord := cfg.AnnotationMaxLength
	if cmd.Flags().Changed("annotation-max") {
		maxWord = flagAnnotationMax
	}
	return ecsig.NewParser(
		ecsig.WithOwner(owner),
		ecsig.WithAnnotationMaxLength(maxWord),
		ecsig.WithLogger(logger),
	)
}

func runParse(cmd *cobra.Command, args []string) error {
	terms, err := commandParser(cmd).Terms(args[0])
	if err != nil {
		return outputParseError("parse", err)
	}
	out := make([]CLITerm, len(terms))
	for i, t := range terms {
		out[i] = termToCLI(t)
	}
	total := len(out)
	return outputResult(CLIResult{Command: "parse", Results: out, TotalCount: &total})
}

func runCount(cmd *cobra.Command, args []string) error {
	return outputResult(CLIResult{
		Command: "count",
		Results: CLICount{Signature: args[0], Terms: ecsig.CountTerms(args[0])},
	})
}

func runNeedsTables(cmd *cobra.Command, args []string) error {
	needs, err := commandParser(cmd).RequiresTableMatching(args[0])
	if err != nil {
		return outputParseError("needs-tables", err)
	}
	return outputResult(CLIResult{
		Command: "needs-tables",
		Results: CLINeedsTables{Signature: args[0], NeedsTables: needs},
	})
}

// outputParseError reports a compile failure. In text mode the caret
// diagnostic goes to stderr; in JSON mode the envelope carries the
// structured error.
func outputParseError(command string, err error) error {
	var pe *ecsig.ParseError
	if !errors.As(err, &pe) {
		return outputError(command, err)
	}
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprint(os.Stderr, pe.Diagnostic())
		return err
	}
	_ = writeJSON(CLIResult{
		Command: command,
		Results: parseErrorToCLI(pe),
		Error:   pe.Error(),
	})
	return err
}
