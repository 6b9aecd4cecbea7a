package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/H0K5/miasm"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Bindings  string
	SignedCmp bool
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <expr>",
		Short: "Evaluate an expression against concrete bindings",
		Long: `Evaluate an expression to a constant by substituting the id
values from a YAML bindings file and simplifying.

Example bindings file:
  a: {value: "0x10", size: 32}
  b: {value: "3", size: 32}`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := miasm.ParseExpr(args[0])
			if err != nil {
				return err
			}

			bindings := map[miasm.Expr]*miasm.IntExpr{}
			if opts.Bindings != "" {
				bindings, err = LoadBindings(opts.Bindings)
				if err != nil {
					return err
				}
			}

			s := miasm.NewSimplifier()
			if opts.SignedCmp {
				s.EnablePasses(miasm.SignedComparePasses())
			}

			out, err := miasm.NewEvaluator(s, bindings).Evaluate(expr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Bindings, "bindings", "", "YAML file of id bindings")
	cmd.Flags().BoolVar(&opts.SignedCmp, "signed-cmp", false, "enable signed comparison recognition passes")

	return cmd
}
