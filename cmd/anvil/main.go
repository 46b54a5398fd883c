// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"anvil/internal/diag"
	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/isa"
	_ "anvil/internal/isa/rv"
	"anvil/internal/legalizer"
	"anvil/internal/reader"
)

var targetName string

func main() {
	commonlog.Configure(0, nil)

	root := &cobra.Command{
		Use:           "anvil",
		Short:         "anvil is a retargetable machine-code compiler backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	compileCmd := &cobra.Command{
		Use:   "compile <file.avl>...",
		Short: "Legalize functions for a target and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCompile,
	}
	compileCmd.Flags().StringVar(&targetName, "target", "rv32", "target ISA ("+fmt.Sprint(isa.Names())+")")

	catCmd := &cobra.Command{
		Use:   "cat <file.avl>...",
		Short: "Parse functions and print them back",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCat,
	}

	root.AddCommand(compileCmd, catCmd)

	if err := root.Execute(); err != nil {
		color.Red("error: %s", err)
		os.Exit(1)
	}
}

func parseFile(path string) ([]*ir.Function, string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	fns, err := reader.Parse(path, string(source))
	return fns, string(source), err
}

// posPattern extracts the file:line:col prefix the reader attaches to its
// errors, for caret diagnostics.
var posPattern = regexp.MustCompile(`^(.*):(\d+):(\d+): (.*)$`)

func reportParseError(path, source string, err error) {
	if m := posPattern.FindStringSubmatch(err.Error()); m != nil {
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		r := diag.NewReporter(path, source)
		fmt.Print(r.FormatAt(diag.Error, line, col, m[4]))
		return
	}
	color.Red("error: %s", err)
}

func runCat(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		fns, source, err := parseFile(path)
		if err != nil {
			reportParseError(path, source, err)
			return fmt.Errorf("parsing %s failed", path)
		}
		for _, fn := range fns {
			fmt.Print(fn)
		}
	}
	return nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	target, err := isa.Lookup(targetName)
	if err != nil {
		return err
	}

	failures := 0
	for _, path := range args {
		fns, source, err := parseFile(path)
		if err != nil {
			reportParseError(path, source, err)
			return fmt.Errorf("parsing %s failed", path)
		}

		for _, fn := range fns {
			cfg := flowgraph.WithFunction(fn)
			if err := legalizer.LegalizeFunction(fn, cfg, target); err != nil {
				// Keep compiling the remaining functions; report this
				// one with its IR and the failing instruction.
				failures++
				instText := ""
				if e, ok := err.(*legalizer.UnlegalizableInstructionError); ok {
					instText = e.Display
				}
				fmt.Print(diag.FormatFunctionError(fn.Name, fn.String(), instText, err))
				continue
			}
			fmt.Print(fn)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d function(s) could not be legalized for %s", failures, target.Name())
	}
	return nil
}
