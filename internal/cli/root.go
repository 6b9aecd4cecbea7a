// Package cli implements the miasm command line tool.
package cli

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the miasm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "miasm",
		Short: "Symbolic expression toolkit",
		Long: `miasm manipulates typed, size-annotated symbolic expressions:
it simplifies them to a canonical normal form, renders their
sub-expression graphs, evaluates them against concrete bindings, and
lowers them to LLVM IR.

Expressions are given in reconstruction form, e.g.:
  Op("+", Id("a", 32), Int(0x10, 32))`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			logger := slog.New(handler).With("run_id", uuid.NewString())
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewSimplifyCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewLLVMCommand(opts))

	return cmd
}
