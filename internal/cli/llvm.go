package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/H0K5/miasm"
	"github.com/H0K5/miasm/llvm"
)

// LLVMOptions holds flags for the llvm command.
type LLVMOptions struct {
	*RootOptions
	File     string
	Simplify bool
}

// NewLLVMCommand creates the llvm command.
func NewLLVMCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LLVMOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "llvm [expr]",
		Short: "Lower expressions to LLVM IR",
		Long: `Lower an expression, or a program file's expressions and
assignments, to an LLVM module printed on stdout.

Example:
  miasm llvm 'Op("+", Id("a", 32), Int(0x10, 32))'
  miasm llvm --file program.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLLVM(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "program file to lower")
	cmd.Flags().BoolVar(&opts.Simplify, "simplify", false, "simplify before lowering")

	return cmd
}

func runLLVM(cmd *cobra.Command, opts *LLVMOptions, args []string) error {
	tr := llvm.NewTranslator()
	simplify := func(expr miasm.Expr) miasm.Expr {
		if opts.Simplify {
			return miasm.Simplify(expr)
		}
		return expr
	}

	var n int
	for _, arg := range args {
		expr, err := miasm.ParseExpr(arg)
		if err != nil {
			return err
		}
		if _, err := tr.AddFunc(fmt.Sprintf("expr%d", n), simplify(expr)); err != nil {
			return err
		}
		n++
	}

	if opts.File != "" {
		prog, exprs, assigns, err := LoadProgram(opts.File)
		if err != nil {
			return err
		}
		name := prog.Name
		if name == "" {
			name = "prog"
		}
		for _, expr := range exprs {
			if _, err := tr.AddFunc(fmt.Sprintf("%s_expr%d", name, n), simplify(expr)); err != nil {
				return err
			}
			n++
		}
		if len(assigns) > 0 {
			for i := range assigns {
				assigns[i] = miasm.NewAssign(assigns[i].Dst, simplify(assigns[i].Src))
			}
			if _, err := tr.AddAssignFunc(name+"_assigns", assigns); err != nil {
				return err
			}
		}
	}

	if n == 0 && opts.File == "" {
		return fmt.Errorf("no expressions given; pass an argument or --file")
	}
	fmt.Fprint(cmd.OutOrStdout(), tr.Module().String())
	return nil
}
