package cli

import (
	"fmt"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/H0K5/miasm"
	"github.com/H0K5/miasm/exprdb"
)

// SimplifyOptions holds flags for the simplify command.
type SimplifyOptions struct {
	*RootOptions
	File      string
	Database  string
	SignedCmp bool
	Dump      bool
}

// NewSimplifyCommand creates the simplify command.
func NewSimplifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimplifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simplify [expr...]",
		Short: "Simplify expressions to their canonical normal form",
		Long: `Simplify expressions given in reconstruction form, either as
arguments or from a program file.

Example:
  miasm simplify 'Op("+", Id("a", 32), Id("a", 32))'
  miasm simplify --file program.yaml --db normal.sqlite`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimplify(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "program file with expressions to simplify")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to a normal-form cache database")
	cmd.Flags().BoolVar(&opts.SignedCmp, "signed-cmp", false, "enable signed comparison recognition passes")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "dump the simplified tree structure")

	return cmd
}

func runSimplify(cmd *cobra.Command, opts *SimplifyOptions, args []string) error {
	exprs, err := collectExprs(opts.File, args)
	if err != nil {
		return err
	}
	if len(exprs) == 0 {
		return fmt.Errorf("no expressions given; pass arguments or --file")
	}

	s := miasm.NewSimplifier()
	if opts.SignedCmp {
		s.EnablePasses(miasm.SignedComparePasses())
	}

	var cache *exprdb.Cache
	if opts.Database != "" {
		cache, err = exprdb.Open(opts.Database)
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	for _, expr := range exprs {
		var out miasm.Expr
		if cache != nil {
			out, err = cache.Simplify(cmd.Context(), s, expr)
			if err != nil {
				return err
			}
		} else {
			out = s.Simplify(expr)
		}
		slog.Debug("simplified", "in", expr.String(), "out", out.String())

		fmt.Fprintln(cmd.OutOrStdout(), out)
		if opts.Dump {
			spew.Fdump(cmd.OutOrStdout(), out)
		}
	}
	return nil
}

// collectExprs parses the argument expressions and appends the program
// file's, if one was given.
func collectExprs(file string, args []string) ([]miasm.Expr, error) {
	var exprs []miasm.Expr
	for _, arg := range args {
		expr, err := miasm.ParseExpr(arg)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	if file != "" {
		_, fileExprs, _, err := LoadProgram(file)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, fileExprs...)
	}
	return exprs, nil
}
