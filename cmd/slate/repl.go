package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slatelisp/slate/internal/errors"
	"github.com/slatelisp/slate/pkg/runtime"
)

func replCmd() *cobra.Command {
	var load []string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start a local REPL",
		Long: `Start a local read-eval-print loop.

Evaluation runs in-process; no server is started. Files named with
--load are evaluated before the prompt appears.

Examples:
  slate repl
  slate repl --load=src/core.slt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(load)
		},
	}

	cmd.Flags().StringArrayVarP(&load, "load", "l", nil, "Evaluate this file before the prompt (repeatable)")

	return cmd
}

func runRepl(load []string) error {
	env := runtime.NewEnv()
	interp := runtime.NewInterp(env)
	ctx := context.Background()
	ns := runtime.DefaultNamespace

	for _, path := range load {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.New("E141").Wrap(err).
				WithDetail("Could not read " + path)
		}
		res, err := interp.Evaluate(ctx, runtime.EvalRequest{
			NS:     ns,
			Code:   string(data),
			Source: path,
			Out:    os.Stdout,
		})
		if res.NS != "" {
			ns = res.NS
		}
		if err != nil {
			printFault(err)
			return errors.Newf(errors.CategoryCLI, "loading %s failed", path)
		}
	}

	printBanner()
	info("Slate %s — Ctrl-D to exit", runtime.Version)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Printf("%s=> ", ns)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		res, err := interp.Evaluate(ctx, runtime.EvalRequest{
			NS:     ns,
			Code:   line,
			Source: "<repl>",
			Out:    os.Stdout,
		})
		if res.NS != "" {
			ns = res.NS
		}
		if err != nil {
			printFault(err)
			continue
		}
		fmt.Println(res.Value)
	}
}

// printFault renders an evaluation fault to stderr.
func printFault(err error) {
	if f, ok := err.(*runtime.Fault); ok {
		fmt.Fprint(os.Stderr, f.Format())
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
