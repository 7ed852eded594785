package asm

import (
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	// ABI places call arguments where the callee expects them.
	ABI interface {
		// PlaceCallArgs returns the code to run before the call
		// and the machine registers the call instruction reads.
		PlaceCallArgs(args []*ir.Reg, fp *ir.Reg) (Code, []*ir.Reg)
		RemoveCallArgs(args []*ir.Reg) Code
	}

	// Selector translates canonical IR into instructions by maximal munch.
	Selector struct {
		env *ir.Env
		cat *Catalog
		abi ABI

		code Code
	}

	binding struct {
		count  int
		leaves []leaf

		imm func(v int64) bool
	}

	leaf struct {
		x    ir.Expr
		reg  *ir.Reg
		glue bool
	}
)

var ErrNoTemplate = errors.New("no template")

func NewSelector(env *ir.Env, cat *Catalog, abi ABI) *Selector {
	return &Selector{
		env: env,
		cat: cat,
		abi: abi,
	}
}

func (s *Selector) Emit(code ...*Instr) {
	s.code = append(s.code, code...)
}

// Take returns the code selected so far and starts a new list.
func (s *Selector) Take() Code {
	c := s.code
	s.code = nil

	return c
}

func (s *Selector) Stmt(x ir.Stmt) error {
	switch x := x.(type) {
	case *ir.Seq:
		for _, x := range x.List {
			if err := s.Stmt(x); err != nil {
				return err
			}
		}

		return nil
	case *ir.ExpStmt:
		return s.Expr(x.Expr, nil)
	case nil:
		return errors.Wrap(ErrNoTemplate, "nil statement")
	}

	t, b, err := s.find(x)
	if err != nil {
		return err
	}

	return s.implement(x, t, b, nil)
}

// Expr translates x leaving its value in dst.
// If dst is nil only side effects are kept.
func (s *Selector) Expr(x ir.Expr, dst *ir.Reg) error {
	if _, ok := x.(*ir.ESeq); ok {
		return errors.Wrap(ErrNoTemplate, "non canonical expression: %v", x)
	}

	t, b, err := s.find(x)
	if err != nil {
		return err
	}

	return s.implement(x, t, b, dst)
}

// Match returns the template covering the most nodes of x.
func (s *Selector) Match(x any) (*Template, error) {
	t, _, err := s.find(x)

	return t, err
}

func (s *Selector) find(x any) (best *Template, bb *binding, err error) {
	for _, t := range s.cat.Templates(x) {
		b := &binding{}

		if !t.Wide {
			b.imm = s.cat.Imm
		}

		if !b.match(x, t.Pattern) {
			continue
		}

		// strict: the first registered template wins ties
		if best == nil || b.count > bb.count {
			best, bb = t, b
		}
	}

	if best == nil {
		return nil, nil, errors.Wrap(ErrNoTemplate, "%v: %v", describe(x), ir.Format(x))
	}

	if tlog.If("munch") {
		tlog.Printw("template found", "node", ir.Format(x), "template", best, "covered", bb.count)
	}

	return best, bb, nil
}

func (s *Selector) implement(x any, t *Template, b *binding, dst *ir.Reg) (err error) {
	for i := range b.leaves {
		l := &b.leaves[i]
		if !l.glue {
			continue
		}

		l.reg = s.env.NewReg()

		if err = s.Expr(l.x, l.reg); err != nil {
			return err
		}
	}

	call, isCall := x.(*ir.Call)

	var args, used []*ir.Reg

	if isCall {
		if s.abi == nil {
			return errors.New("%v: no calling convention", s.cat.Name)
		}

		for _, a := range call.Args {
			r := s.env.NewReg()

			if err = s.Expr(a, r); err != nil {
				return err
			}

			args = append(args, r)
		}

		var fp *ir.Reg

		if call.FP != nil {
			fp = s.env.NewReg()

			if err = s.Expr(call.FP, fp); err != nil {
				return err
			}
		}

		var code Code

		code, used = s.abi.PlaceCallArgs(args, fp)
		s.code = append(s.code, code...)
	}

	for i := range t.code {
		k := &t.code[i]

		if k.value && dst == nil {
			continue
		}

		in, err := s.instance(x, b, k, dst, used)
		if err != nil {
			return errors.Wrap(err, "template %v", t)
		}

		s.code = append(s.code, in)
	}

	if isCall {
		s.code = append(s.code, s.abi.RemoveCallArgs(args)...)
	}

	return nil
}

func (s *Selector) instance(x any, b *binding, k *skel, dst *ir.Reg, used []*ir.Reg) (*Instr, error) {
	in := &Instr{}

	var text []byte

	for _, p := range k.parts {
		switch p.kind {
		case partText:
			text = append(text, p.text...)
		case partLeaf:
			l := b.leaves[p.leaf]

			if l.reg != nil {
				text = in.ref(text, l.reg, p.read, p.write)
				break
			}

			switch v := l.x.(type) {
			case *ir.Int:
				text = strconv.AppendInt(text, v.Value, 10)
			case *ir.Addr:
				text = append(text, v.Label.String()...)
			default:
				return nil, errors.Wrap(ErrBadTemplate, "leaf %d: %T", p.leaf, l.x)
			}
		case partOut:
			text = in.ref(text, dst, p.read, p.write)
		case partFixed:
			text = in.ref(text, p.reg, p.read, p.write)
		case partTrue, partFalse:
			j, ok := x.(*ir.CJump)
			if !ok {
				return nil, errors.Wrap(ErrBadTemplate, "branch label in %T template", x)
			}

			l := j.True
			if p.kind == partFalse {
				l = j.False
			}

			text = append(text, l.String()...)
		case partLabel:
			pl, ok := x.(*ir.Place)
			if !ok {
				return nil, errors.Wrap(ErrBadTemplate, "label in %T template", x)
			}

			in.Label = pl.Label
			text = append(text, pl.Label.String()...)
		}
	}

	for _, r := range k.uses {
		in.In, _ = slot(in.In, r)
	}

	for _, r := range k.defs {
		in.Out, _ = slot(in.Out, r)
	}

	if k.Call {
		for _, r := range used {
			in.In, _ = slot(in.In, r)
		}
	}

	in.Text = string(text)
	in.Move = k.Move && len(in.In) == 1 && len(in.Out) == 1 && in.In[0] != in.Out[0]

	if k.Branch {
		switch x := x.(type) {
		case *ir.Jump:
			in.Dests = x.Targets
		case *ir.CJump:
			in.Dests = []*ir.Label{x.True}
			in.Next = true
		default:
			return nil, errors.Wrap(ErrBadTemplate, "branch in %T template", x)
		}
	}

	return in, nil
}

// ref appends a register slot reference.
func (in *Instr) ref(text []byte, r *ir.Reg, read, write bool) []byte {
	var i int

	if read {
		in.In, i = slot(in.In, r)
	}

	if write {
		in.Out, i = slot(in.Out, r)

		text = append(text, "&o"...)
	} else {
		text = append(text, "&i"...)
	}

	return strconv.AppendInt(text, int64(i), 10)
}

func (b *binding) match(x, p any) bool {
	switch p := p.(type) {
	case *ir.Move:
		x, ok := x.(*ir.Move)
		if !ok {
			return false
		}

		b.count++

		if _, ok := p.Dst.(*ir.Temp); ok {
			t, ok := x.Dst.(*ir.Temp)
			if !ok {
				return false
			}

			b.count++
			b.leaves = append(b.leaves, leaf{x: t, reg: t.Reg})
		} else if !b.expr(x.Dst, p.Dst) {
			return false
		}

		return b.expr(x.Src, p.Src)
	case *ir.Jump:
		x, ok := x.(*ir.Jump)
		if !ok {
			return false
		}

		b.count++

		return b.expr(x.Dst, p.Dst)
	case *ir.CJump:
		x, ok := x.(*ir.CJump)
		if !ok || x.Cond != p.Cond {
			return false
		}

		b.count++

		return b.expr(x.L, p.L) && b.expr(x.R, p.R)
	case *ir.Place:
		_, ok := x.(*ir.Place)
		b.count++

		return ok
	case ir.Expr:
		e, ok := x.(ir.Expr)

		return ok && b.expr(e, p)
	}

	return false
}

func (b *binding) expr(x, p ir.Expr) bool {
	switch p := p.(type) {
	case *ir.Temp:
		if t, ok := x.(*ir.Temp); ok {
			b.count++
			b.leaves = append(b.leaves, leaf{x: t, reg: t.Reg})
		} else {
			b.leaves = append(b.leaves, leaf{x: x, glue: true})
		}

		return true
	case *ir.Int:
		v, ok := x.(*ir.Int)
		if !ok || p.Value != 0 && p.Value != v.Value {
			return false
		}

		if b.imm != nil && !b.imm(v.Value) {
			return false
		}

		b.count++
		b.leaves = append(b.leaves, leaf{x: v})

		return true
	case *ir.Addr:
		v, ok := x.(*ir.Addr)
		if !ok {
			return false
		}

		b.count++
		b.leaves = append(b.leaves, leaf{x: v})

		return true
	case *ir.BinOp:
		v, ok := x.(*ir.BinOp)
		if !ok || v.Op != p.Op {
			return false
		}

		b.count++

		return b.expr(v.L, p.L) && b.expr(v.R, p.R)
	case *ir.Mem:
		v, ok := x.(*ir.Mem)
		if !ok {
			return false
		}

		b.count++

		return b.expr(v.Addr, p.Addr)
	case *ir.Call:
		v, ok := x.(*ir.Call)
		if !ok {
			return false
		}

		b.count++

		return b.expr(v.Func, p.Func)
	}

	return false
}

func describe(x any) string {
	switch x := x.(type) {
	case *ir.BinOp:
		return "binary op " + x.Op.String()
	case *ir.CJump:
		return "conditional jump " + x.Cond.String()
	case *ir.ESeq:
		return "eseq"
	}

	return kindOf(x).String()
}
