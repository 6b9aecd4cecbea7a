package cli

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ztrue/tracerr"
	"gopkg.in/yaml.v3"

	"github.com/H0K5/miasm"
)

// Program is a YAML file holding named expressions and assignments in
// reconstruction form.
type Program struct {
	Name    string   `yaml:"name"`
	Exprs   []string `yaml:"exprs"`
	Assigns []string `yaml:"assigns"`
}

// LoadProgram reads and parses a program file.
func LoadProgram(path string) (*Program, []miasm.Expr, []miasm.Assign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, tracerr.Wrap(err)
	}

	var prog Program
	if err := yaml.Unmarshal(data, &prog); err != nil {
		return nil, nil, nil, tracerr.Wrap(fmt.Errorf("parse %s: %w", path, err))
	}

	exprs := make([]miasm.Expr, 0, len(prog.Exprs))
	for _, s := range prog.Exprs {
		expr, err := miasm.ParseExpr(s)
		if err != nil {
			return nil, nil, nil, tracerr.Wrap(fmt.Errorf("%s: %w", path, err))
		}
		exprs = append(exprs, expr)
	}

	assigns := make([]miasm.Assign, 0, len(prog.Assigns))
	for _, s := range prog.Assigns {
		a, err := miasm.ParseAssign(s)
		if err != nil {
			return nil, nil, nil, tracerr.Wrap(fmt.Errorf("%s: %w", path, err))
		}
		assigns = append(assigns, a)
	}

	return &prog, exprs, assigns, nil
}

// Binding is one concrete id value in a bindings file. Value accepts
// decimal or 0x-prefixed hexadecimal.
type Binding struct {
	Value string `yaml:"value"`
	Size  uint   `yaml:"size"`
}

// LoadBindings reads a YAML map of id name to concrete value.
func LoadBindings(path string) (map[miasm.Expr]*miasm.IntExpr, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	var raw map[string]Binding
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("parse %s: %w", path, err))
	}

	bindings := make(map[miasm.Expr]*miasm.IntExpr, len(raw))
	for name, b := range raw {
		v, ok := new(big.Int).SetString(b.Value, 0)
		if !ok {
			return nil, tracerr.Wrap(fmt.Errorf("%s: bad value %q for %s", path, b.Value, name))
		}
		if b.Size == 0 {
			return nil, tracerr.Wrap(fmt.Errorf("%s: missing size for %s", path, name))
		}
		bindings[miasm.NewIdExpr(name, b.Size)] = miasm.NewBigIntExpr(v, b.Size)
	}
	return bindings, nil
}
