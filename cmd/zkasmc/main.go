package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-zkasm/errors"
)

var rootCmd = &cobra.Command{
	Use:           "zkasmc",
	Short:         "WebAssembly to zkASM compiler",
	Long:          `zkasmc compiles core WebAssembly modules into zkASM programs for the Polygon zkEVM ROM`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = version
	rootCmd.AddCommand(newCompileCmd())
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log pipeline progress to stderr")

	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func reportError(err error) {
	st := newStyles(colorEnabled(rootCmd, os.Stderr))
	if errors.IsDefect(err) {
		fmt.Fprintln(os.Stderr, st.err.Render("internal compiler error:"), err)
		fmt.Fprintln(os.Stderr, st.dim.Render("this is a bug in zkasmc; please report it with the input module"))
		return
	}
	fmt.Fprintln(os.Stderr, st.err.Render("error:"), err)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
