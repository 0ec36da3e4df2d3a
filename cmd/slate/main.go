package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slatelisp/slate/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗┬  ┌─┐┌┬┐┌─┐
  ╚═╗│  ├─┤ │ ├┤
  ╚═╝┴─┘┴ ┴ ┴ └─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "slate",
		Short: "A small Lisp hosted in Go",
		Long: `Slate is a small Lisp with a remote evaluation server.

The server speaks a bencode-framed session protocol that editors
and tooling connect to for evaluation, completion, and
documentation lookup. The local REPL evaluates in-process.

  slate serve     start the evaluation server
  slate repl      start a local REPL
  slate version   print version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		replCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// printBanner prints the Slate ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
