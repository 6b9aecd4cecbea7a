package miasm

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// ExprRepr returns the reconstruction form of the expression: kind name and
// ordered constructor arguments, with constants in hexadecimal. Parsing the
// result with ParseExpr reconstructs a structurally equal node.
func ExprRepr(expr Expr) string {
	var buf bytes.Buffer
	writeRepr(&buf, expr)
	return buf.String()
}

// AssignRepr returns the reconstruction form of an assignment.
func AssignRepr(a Assign) string {
	var buf bytes.Buffer
	buf.WriteString("Assign(")
	writeRepr(&buf, a.Dst)
	buf.WriteString(", ")
	writeRepr(&buf, a.Src)
	buf.WriteByte(')')
	return buf.String()
}

func writeRepr(buf *bytes.Buffer, expr Expr) {
	switch expr := expr.(type) {
	case *IntExpr:
		fmt.Fprintf(buf, "Int(0x%s, %d)", strings.ToUpper(expr.Value.Text(16)), expr.Size)
	case *IdExpr:
		fmt.Fprintf(buf, "Id(%q, %d)", expr.Name, expr.Size)
	case *LocExpr:
		fmt.Fprintf(buf, "Loc(%d, %d)", uint64(expr.Key), expr.Size)
	case *MemExpr:
		buf.WriteString("Mem(")
		writeRepr(buf, expr.Ptr)
		fmt.Fprintf(buf, ", %d)", expr.Size)
	case *SliceExpr:
		buf.WriteString("Slice(")
		writeRepr(buf, expr.Arg)
		fmt.Fprintf(buf, ", %d, %d)", expr.Start, expr.Stop)
	case *ComposeExpr:
		buf.WriteString("Compose(")
		for i, arg := range expr.Args {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeRepr(buf, arg)
		}
		buf.WriteByte(')')
	case *OpExpr:
		fmt.Fprintf(buf, "Op(%q", expr.Op)
		for _, arg := range expr.Args {
			buf.WriteString(", ")
			writeRepr(buf, arg)
		}
		buf.WriteByte(')')
	case *CondExpr:
		buf.WriteString("Cond(")
		writeRepr(buf, expr.Cond)
		buf.WriteString(", ")
		writeRepr(buf, expr.Src1)
		buf.WriteString(", ")
		writeRepr(buf, expr.Src2)
		buf.WriteByte(')')
	default:
		panic("unreachable")
	}
}

// ParseExpr parses an expression in reconstruction form.
func ParseExpr(s string) (expr Expr, err error) {
	defer catchInvalid(&err)
	p := &reprParser{s: s}
	expr, err = p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return expr, nil
}

// ParseAssign parses an assignment in reconstruction form.
func ParseAssign(s string) (a Assign, err error) {
	defer catchInvalid(&err)
	p := &reprParser{s: s}
	if err := p.expectIdent("Assign"); err != nil {
		return Assign{}, err
	}
	if err := p.expect('('); err != nil {
		return Assign{}, err
	}
	dst, err := p.parseExpr()
	if err != nil {
		return Assign{}, err
	}
	if err := p.expect(','); err != nil {
		return Assign{}, err
	}
	src, err := p.parseExpr()
	if err != nil {
		return Assign{}, err
	}
	if err := p.expect(')'); err != nil {
		return Assign{}, err
	}
	if err := p.expectEOF(); err != nil {
		return Assign{}, err
	}
	return NewAssign(dst, src), nil
}

// catchInvalid converts construction-time panics raised while assembling a
// parsed tree into parse errors.
func catchInvalid(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = fmt.Errorf("parse: %w", e)
			return
		}
		panic(r)
	}
}

type reprParser struct {
	s   string
	pos int
}

func (p *reprParser) parseExpr() (Expr, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	switch name {
	case "Int":
		v, err := p.bigInt()
		if err != nil {
			return nil, err
		}
		size, err := p.sepUint()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return NewBigIntExpr(v, size), nil

	case "Id":
		s, err := p.str()
		if err != nil {
			return nil, err
		}
		size, err := p.sepUint()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return NewIdExpr(s, size), nil

	case "Loc":
		key, err := p.bigInt()
		if err != nil {
			return nil, err
		}
		size, err := p.sepUint()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		if !key.IsUint64() {
			return nil, p.errorf("loc key out of range")
		}
		return NewLocExpr(LocKey(key.Uint64()), size), nil

	case "Mem":
		ptr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		size, err := p.sepUint()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return NewMemExpr(ptr, size), nil

	case "Slice":
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		start, err := p.sepUint()
		if err != nil {
			return nil, err
		}
		stop, err := p.sepUint()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return NewSliceExpr(arg, start, stop), nil

	case "Compose":
		args, err := p.exprList()
		if err != nil {
			return nil, err
		}
		return NewComposeExpr(args...), nil

	case "Op":
		sym, err := p.str()
		if err != nil {
			return nil, err
		}
		var args []Expr
		for p.peek() == ',' {
			p.pos++
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, p.errorf("op %q requires arguments", sym)
		}
		return NewOpExpr(sym, args...), nil

	case "Cond":
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		src1, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		src2, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return NewCondExpr(cond, src1, src2), nil

	default:
		return nil, p.errorf("unknown kind %q", name)
	}
}

func (p *reprParser) exprList() ([]Expr, error) {
	var args []Expr
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *reprParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *reprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *reprParser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", string(c))
	}
	p.pos++
	return nil
}

func (p *reprParser) expectEOF() error {
	if p.peek() != 0 {
		return p.errorf("trailing input")
	}
	return nil
}

func (p *reprParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && unicode.IsLetter(rune(p.s[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected kind name")
	}
	return p.s[start:p.pos], nil
}

func (p *reprParser) expectIdent(want string) error {
	name, err := p.ident()
	if err != nil {
		return err
	}
	if name != want {
		return p.errorf("expected %q, got %q", want, name)
	}
	return nil
}

func (p *reprParser) str() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != '"' {
		return "", p.errorf("expected string")
	}
	start := p.pos
	p.pos++
	for p.pos < len(p.s) && p.s[p.pos] != '"' {
		if p.s[p.pos] == '\\' {
			p.pos++
		}
		p.pos++
	}
	if p.pos >= len(p.s) {
		return "", p.errorf("unterminated string")
	}
	p.pos++
	s, err := strconv.Unquote(p.s[start:p.pos])
	if err != nil {
		return "", p.errorf("bad string: %v", err)
	}
	return s, nil
}

func (p *reprParser) bigInt() (*big.Int, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && (isHexDigit(p.s[p.pos]) || p.s[p.pos] == 'x' || p.s[p.pos] == 'X') {
		p.pos++
	}
	if p.pos == start {
		return nil, p.errorf("expected number")
	}
	v, ok := new(big.Int).SetString(strings.ToLower(p.s[start:p.pos]), 0)
	if !ok {
		return nil, p.errorf("bad number %q", p.s[start:p.pos])
	}
	return v, nil
}

func (p *reprParser) sepUint() (uint, error) {
	if err := p.expect(','); err != nil {
		return 0, err
	}
	v, err := p.bigInt()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > uint64(^uint(0)) {
		return 0, p.errorf("number out of range")
	}
	return uint(v.Uint64()), nil
}

func (p *reprParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("parse: %s at offset %d", fmt.Sprintf(format, args...), p.pos)
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
