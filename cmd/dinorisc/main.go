// dinorisc translates an RV64I ELF binary to AArch64 and runs it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/dinorisc/dbt"
	"github.com/sarchlab/dinorisc/loader"
)

var verbose bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dinorisc <binary> [function]",
		Short: "Translate and run an RV64I ELF binary on AArch64",
		Long: `dinorisc loads an RV64I ELF executable, translates it to AArch64 one
basic block at a time, and runs it to completion.

  dinorisc <binary>             run from the ELF entry point
  dinorisc <binary> <function>  run starting at the named symbol`,
		Args: cobra.RangeArgs(1, 3),
		Run:  run,
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each translated block to stderr")
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func run(cmd *cobra.Command, args []string) {
	if len(args) == 3 {
		// Legacy <input> <output> form: spec'd as a stub that does not
		// belong to the core, so it is rejected rather than faked.
		fmt.Fprintln(os.Stderr, "dinorisc: the legacy <input> <output> form is not implemented")
		os.Exit(1)
	}

	prog, err := loader.Load(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "dinorisc: %v\n", err)
		os.Exit(1)
	}

	var opts []dbt.Option
	if verbose {
		opts = append(opts, dbt.WithLog(os.Stderr))
	}
	driver := dbt.NewDriver(opts...)

	if len(args) == 2 {
		result, found, err := driver.RunFunction(prog, args[1], nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dinorisc: %v\n", err)
			os.Exit(1)
		}
		if !found {
			os.Exit(-1)
		}
		os.Exit(int(result))
	}

	result, err := driver.Run(prog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dinorisc: %v\n", err)
		os.Exit(1)
	}
	os.Exit(int(result))
}
