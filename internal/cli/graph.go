package cli

import (
	"github.com/spf13/cobra"

	"github.com/H0K5/miasm"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Dot      bool
	Simplify bool
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph <expr>",
		Short: "Print the sub-expression graph of an expression",
		Long: `Print the distinct sub-expressions of an expression and the
edges between them, in a deterministic text form or as Graphviz dot.

Example:
  miasm graph --dot 'Op("+", Id("a", 32), Op("*", Id("a", 32), Id("b", 32)))'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := miasm.ParseExpr(args[0])
			if err != nil {
				return err
			}
			if opts.Simplify {
				expr = miasm.Simplify(expr)
			}
			g := miasm.NewGraph(expr)
			if opts.Dot {
				return g.WriteDot(cmd.OutOrStdout())
			}
			return g.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.Dot, "dot", false, "emit Graphviz dot")
	cmd.Flags().BoolVar(&opts.Simplify, "simplify", false, "simplify before graphing")

	return cmd
}
