package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zkasm/compiler"
	"github.com/wippyai/wasm-zkasm/environ"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [flags] <file.wasm>",
		Short: "Compile a wasm module to zkASM",
		Long: `Compile a core WebAssembly module to a zkASM program. The program is
written to stdout unless -o is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runCompile,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "write the program to this file")
	f.String("config", "", "TOML settings file")
	f.IntP("jobs", "j", 0, "parallel function compilations (0 = GOMAXPROCS)")
	f.Bool("no-validate", false, "skip wazero validation of the input")
	f.String("cache-dir", "", "directory for cached function bodies")
	f.String("start", "", "export used as the entry point when there is no start section")
	f.Bool("profile", false, "emit traceInstruction hooks before every instruction")
	f.Bool("print-ir", false, "print the IR of every function to stderr")
	f.Bool("print-size", false, "print per-function sizes to stderr")
	f.BoolP("interactive", "i", false, "browse compiled functions in a TUI")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	path := args[0]

	settings, err := settingsFromFlags(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = l.Sync() }()
		compiler.SetLogger(l.Named("compiler"))
		environ.SetLogger(l.Named("environ"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		return runInteractive(cmd.Context(), path, data, settings)
	}

	res, err := compiler.Compile(cmd.Context(), data, settings)
	if err != nil {
		return err
	}

	st := newStyles(colorEnabled(cmd, os.Stderr))
	if printIR, _ := cmd.Flags().GetBool("print-ir"); printIR {
		for _, f := range res.Functions {
			fmt.Fprintf(os.Stderr, "%s %s\n%s\n", st.title.Render("IR"), st.name.Render(f.Name), f.IR)
		}
	}
	if printSize, _ := cmd.Flags().GetBool("print-size"); printSize {
		writeSizes(os.Stderr, st, res)
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), res.Text())
		return err
	}
	if err := os.WriteFile(out, []byte(res.Text()), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// settingsFromFlags layers explicitly set flags over the config file (or
// the defaults when no file is given).
func settingsFromFlags(cmd *cobra.Command) (compiler.Settings, error) {
	flags := cmd.Flags()
	s := compiler.DefaultSettings()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := compiler.LoadSettings(path)
		if err != nil {
			return compiler.Settings{}, err
		}
		s = loaded
	}
	if flags.Changed("jobs") {
		s.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("no-validate") {
		noValidate, _ := flags.GetBool("no-validate")
		s.Validate = !noValidate
	}
	if flags.Changed("cache-dir") {
		s.CacheDir, _ = flags.GetString("cache-dir")
	}
	if flags.Changed("start") {
		s.StartExport, _ = flags.GetString("start")
	}
	if flags.Changed("profile") {
		s.EmitProfiling, _ = flags.GetBool("profile")
	}
	return s, s.Check()
}

func writeSizes(w io.Writer, st styles, res *compiler.Result) {
	width := len("function")
	for _, f := range res.Functions {
		width = max(width, len(f.Name))
	}
	fmt.Fprintf(w, "%-*s %10s %10s %8s\n", width, "function", "wasm", "zkasm", "lines")
	var wasmTotal, textTotal, lineTotal int
	for _, f := range res.Functions {
		mark := ""
		if f.Cached {
			mark = st.dim.Render(" (cached)")
		}
		fmt.Fprintf(w, "%s %10d %10d %8d%s\n",
			st.name.Render(fmt.Sprintf("%-*s", width, f.Name)),
			f.BodySize, f.TextSize, len(f.Lines), mark)
		wasmTotal += int(f.BodySize)
		textTotal += f.TextSize
		lineTotal += len(f.Lines)
	}
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", width+31))
	fmt.Fprintf(w, "%-*s %10d %10d %8d\n", width, "total", wasmTotal, textTotal, lineTotal)
	fmt.Fprintf(w, "%s %s\n", st.dim.Render("program lines:"), st.num.Render(fmt.Sprint(len(res.Program.Lines))))
	fmt.Fprintf(w, "%s %s\n", st.dim.Render("elapsed:"), st.num.Render(res.Elapsed.String()))
}
