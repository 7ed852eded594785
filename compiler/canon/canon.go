package canon

import (
	"tlog.app/go/errors"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Canonicalizer rewrites IR trees so that every side effect is
	// an explicit statement and operand evaluation order does not matter.
	Canonicalizer struct {
		env *ir.Env

		warnings []Warning
	}

	Warning struct {
		Pos int
		Msg string
	}

	// effects is a summary of what a statement may modify.
	effects struct {
		regs map[*ir.Reg]struct{}
		mem  bool
	}
)

var ErrMalformed = errors.New("malformed ir")

func New(env *ir.Env) *Canonicalizer {
	return &Canonicalizer{env: env}
}

func (c *Canonicalizer) Warnings() []Warning { return c.warnings }

// Stmt returns a canonical statement equivalent to s.
// The result is a flat Seq, a single statement or an empty Seq.
func (c *Canonicalizer) Stmt(s ir.Stmt) (ir.Stmt, error) {
	r, err := c.stmt(s)
	if err != nil {
		return nil, err
	}

	if r == nil {
		return &ir.Seq{}, nil
	}

	return r, nil
}

// Expr returns a canonical expression: either a pure expression
// or an ESeq of a canonical statement and a pure expression.
func (c *Canonicalizer) Expr(e ir.Expr) (ir.Expr, error) {
	return c.expr(e, true)
}

func (c *Canonicalizer) stmt(s ir.Stmt) (ir.Stmt, error) {
	switch s := s.(type) {
	case *ir.Seq:
		list := make([]ir.Stmt, 0, len(s.List))

		for i, x := range s.List {
			r, err := c.stmt(x)
			if err != nil {
				return nil, errors.Wrap(err, "seq %d", i)
			}

			list = append(list, r)
		}

		return join(list...), nil
	case *ir.Place:
		if s.Label == nil {
			return nil, errors.Wrap(ErrMalformed, "label placement without label")
		}

		return s, nil
	case *ir.Move:
		return c.move(s)
	case *ir.ExpStmt:
		e, err := c.expr(s.Expr, true)
		if err != nil {
			return nil, err
		}

		pre, v := split(e)
		if isConst(v) {
			return pre, nil
		}

		return join(pre, &ir.ExpStmt{Expr: v}), nil
	case *ir.Jump:
		if len(s.Targets) == 0 {
			return nil, errors.Wrap(ErrMalformed, "jump without targets: %v", s)
		}

		e, err := c.expr(s.Dst, false)
		if err != nil {
			return nil, err
		}

		pre, v := split(e)

		return join(pre, &ir.Jump{Dst: v, Targets: s.Targets}), nil
	case *ir.CJump:
		return c.cjump(s)
	case nil:
		return nil, errors.Wrap(ErrMalformed, "nil statement")
	default:
		return nil, errors.Wrap(ErrMalformed, "unsupported statement: %T", s)
	}
}

func (c *Canonicalizer) move(s *ir.Move) (ir.Stmt, error) {
	switch d := s.Dst.(type) {
	case *ir.Temp:
		e, err := c.expr(s.Src, true)
		if err != nil {
			return nil, err
		}

		pre, v := split(e)

		return join(pre, &ir.Move{Dst: d, Src: v}), nil
	case *ir.Mem:
		_, absolute := d.Addr.(*ir.Addr)

		a, err := c.expr(d.Addr, false)
		if err != nil {
			return nil, err
		}

		e, err := c.expr(s.Src, absolute)
		if err != nil {
			return nil, err
		}

		vals, pre := c.pull([]ir.Expr{a, e})

		return join(pre, &ir.Move{Dst: &ir.Mem{Addr: vals[0]}, Src: vals[1]}), nil
	case *ir.ESeq:
		return c.stmt(join(d.Stmt, &ir.Move{Dst: d.Value, Src: s.Src}))
	default:
		return nil, errors.Wrap(ErrMalformed, "move to %T", s.Dst)
	}
}

func (c *Canonicalizer) cjump(s *ir.CJump) (ir.Stmt, error) {
	if s.True == nil || s.False == nil {
		return nil, errors.Wrap(ErrMalformed, "cjump without targets: %v", s)
	}

	l, err := c.expr(s.L, false)
	if err != nil {
		return nil, err
	}

	r, err := c.expr(s.R, false)
	if err != nil {
		return nil, err
	}

	vals, pre := c.pull([]ir.Expr{l, r})

	li, lok := vals[0].(*ir.Int)
	ri, rok := vals[1].(*ir.Int)

	if lok && rok {
		to := s.False
		if s.Cond.Eval(li.Value, ri.Value) {
			to = s.True
		}

		return join(pre, ir.NewJump(to)), nil
	}

	return join(pre, &ir.CJump{Cond: s.Cond, L: vals[0], R: vals[1], True: s.True, False: s.False}), nil
}

// expr canonicalizes e. tolerant is set when e is a direct child of
// a context where a call may stay in place.
func (c *Canonicalizer) expr(e ir.Expr, tolerant bool) (ir.Expr, error) {
	switch e := e.(type) {
	case *ir.Int, *ir.Addr:
		return e, nil
	case *ir.Temp:
		if e.Reg == nil {
			return nil, errors.Wrap(ErrMalformed, "register without reg")
		}

		return e, nil
	case *ir.BinOp:
		l, err := c.expr(e.L, false)
		if err != nil {
			return nil, err
		}

		r, err := c.expr(e.R, false)
		if err != nil {
			return nil, err
		}

		vals, pre := c.pull([]ir.Expr{l, r})

		v := c.fold(&ir.BinOp{Op: e.Op, L: vals[0], R: vals[1], Pos: e.Pos})

		return eseq(pre, v), nil
	case *ir.Mem:
		a, err := c.expr(e.Addr, false)
		if err != nil {
			return nil, err
		}

		pre, v := split(a)

		return eseq(pre, &ir.Mem{Addr: v}), nil
	case *ir.Call:
		return c.call(e, tolerant)
	case *ir.ESeq:
		s, err := c.stmt(e.Stmt)
		if err != nil {
			return nil, err
		}

		v, err := c.expr(e.Value, tolerant)
		if err != nil {
			return nil, err
		}

		pre, v := split(v)

		return eseq(join(s, pre), v), nil
	case nil:
		return nil, errors.Wrap(ErrMalformed, "nil expression")
	default:
		return nil, errors.Wrap(ErrMalformed, "unsupported expression: %T", e)
	}
}

func (c *Canonicalizer) call(e *ir.Call, tolerant bool) (ir.Expr, error) {
	ops := make([]ir.Expr, 0, len(e.Args)+2)

	f, err := c.expr(e.Func, false)
	if err != nil {
		return nil, errors.Wrap(err, "callee")
	}

	ops = append(ops, f)

	for i, a := range e.Args {
		a, err = c.expr(a, false)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}

		ops = append(ops, a)
	}

	if e.FP != nil {
		fp, err := c.expr(e.FP, false)
		if err != nil {
			return nil, errors.Wrap(err, "callee fp")
		}

		ops = append(ops, fp)
	}

	vals, pre := c.pull(ops)

	x := &ir.Call{Func: vals[0], Args: vals[1 : 1+len(e.Args)]}
	if e.FP != nil {
		x.FP = vals[len(vals)-1]
	}

	if tolerant {
		return eseq(pre, x), nil
	}

	t := &ir.Temp{Reg: c.env.NewReg()}

	return &ir.ESeq{
		Stmt:  join(pre, &ir.Move{Dst: t, Src: x}),
		Value: t,
	}, nil
}

// pull hoists statements out of canonical operands evaluated left to right.
// An earlier operand which may be affected by a hoisted statement
// is saved to a fresh register before the statement.
func (c *Canonicalizer) pull(ops []ir.Expr) (vals []ir.Expr, pre ir.Stmt) {
	vals = make([]ir.Expr, len(ops))
	saved := make([]bool, len(ops))

	for i, op := range ops {
		s, v := split(op)
		vals[i] = v

		if s == nil {
			continue
		}

		eff := collect(s)

		for j := 0; j < i; j++ {
			if saved[j] || eff.commutes(vals[j]) {
				continue
			}

			t := &ir.Temp{Reg: c.env.NewReg()}

			pre = join(pre, &ir.Move{Dst: t, Src: vals[j]})
			vals[j] = t
			saved[j] = true
		}

		pre = join(pre, s)
	}

	return vals, pre
}

// join concatenates statements flattening nested sequences and dropping no-ops.
// It returns nil if nothing is left.
func join(list ...ir.Stmt) ir.Stmt {
	var flat []ir.Stmt

	var add func(s ir.Stmt)
	add = func(s ir.Stmt) {
		switch s := s.(type) {
		case nil:
		case *ir.Seq:
			for _, x := range s.List {
				add(x)
			}
		default:
			if isNop(s) {
				return
			}

			flat = append(flat, s)
		}
	}

	for _, s := range list {
		add(s)
	}

	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}

	return &ir.Seq{List: flat}
}

func eseq(s ir.Stmt, v ir.Expr) ir.Expr {
	if s == nil {
		return v
	}

	return &ir.ESeq{Stmt: s, Value: v}
}

func split(e ir.Expr) (ir.Stmt, ir.Expr) {
	if x, ok := e.(*ir.ESeq); ok {
		return x.Stmt, x.Value
	}

	return nil, e
}

func isNop(s ir.Stmt) bool {
	switch s := s.(type) {
	case *ir.ExpStmt:
		return isConst(s.Expr)
	case *ir.Seq:
		for _, x := range s.List {
			if !isNop(x) {
				return false
			}
		}

		return true
	}

	return false
}

func isConst(e ir.Expr) bool {
	switch e.(type) {
	case *ir.Int, *ir.Addr:
		return true
	}

	return false
}

func collect(s ir.Stmt) (eff effects) {
	eff.stmt(s)

	return eff
}

func (eff *effects) stmt(s ir.Stmt) {
	switch s := s.(type) {
	case *ir.Seq:
		for _, x := range s.List {
			eff.stmt(x)
		}
	case *ir.Move:
		switch d := s.Dst.(type) {
		case *ir.Temp:
			if eff.regs == nil {
				eff.regs = map[*ir.Reg]struct{}{}
			}

			eff.regs[d.Reg] = struct{}{}
		case *ir.Mem:
			eff.mem = true
			eff.expr(d.Addr)
		default:
			eff.expr(d)
		}

		eff.expr(s.Src)
	case *ir.ExpStmt:
		eff.expr(s.Expr)
	case *ir.Jump:
		eff.expr(s.Dst)
	case *ir.CJump:
		eff.expr(s.L)
		eff.expr(s.R)
	}
}

func (eff *effects) expr(e ir.Expr) {
	switch e := e.(type) {
	case *ir.BinOp:
		eff.expr(e.L)
		eff.expr(e.R)
	case *ir.Mem:
		eff.expr(e.Addr)
	case *ir.Call:
		eff.mem = true

		eff.expr(e.Func)

		for _, a := range e.Args {
			eff.expr(a)
		}

		if e.FP != nil {
			eff.expr(e.FP)
		}
	case *ir.ESeq:
		eff.stmt(e.Stmt)
		eff.expr(e.Value)
	}
}

// commutes reports whether a pure expression yields the same value
// before and after the summarized statement.
func (eff *effects) commutes(e ir.Expr) bool {
	switch e := e.(type) {
	case *ir.Int, *ir.Addr:
		return true
	case *ir.Temp:
		_, ok := eff.regs[e.Reg]
		return !ok
	case *ir.BinOp:
		return eff.commutes(e.L) && eff.commutes(e.R)
	case *ir.Mem:
		return !eff.mem && eff.commutes(e.Addr)
	}

	return false
}
