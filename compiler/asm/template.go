package asm

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Skel is a skeleton instruction of a template.
	//
	// Placeholders in Text:
	//	{N}      read pattern leaf N (leaves are numbered depth first)
	//	{=N}     write leaf N, which must be a register leaf
	//	{+N}     read and write leaf N
	//	{out}    the produced value
	//	{+out}   read and write the produced value
	//	{in:R}   read machine register R
	//	{out:R}  write machine register R
	//	{true}   true label of a conditional jump
	//	{false}  false label of a conditional jump
	//	{label}  placed label
	//
	// Uses and Defs name machine registers read and written implicitly.
	Skel struct {
		Text string

		Move   bool // register copy, used for coalescing
		Branch bool // jumps to the targets of the statement
		Call   bool // receives argument registers as inputs

		Uses []string
		Defs []string
	}

	Template struct {
		Pattern any // ir.Expr or ir.Stmt

		Skels []Skel

		Wide bool // constant leaves are not checked by Catalog.Imm

		code   []skel
		leaves []any
	}

	skel struct {
		Skel

		parts []part
		uses  []*ir.Reg
		defs  []*ir.Reg

		value bool // writes {out}
	}

	part struct {
		kind partKind

		text string
		leaf int
		reg  *ir.Reg

		read, write bool
	}

	partKind int
)

const (
	partText partKind = iota
	partLeaf
	partOut
	partFixed
	partTrue
	partFalse
	partLabel
)

var ErrBadTemplate = errors.New("bad template")

func (t *Template) String() string {
	var b strings.Builder

	b.WriteString(ir.Format(t.Pattern))
	b.WriteString(" =>")

	for _, s := range t.Skels {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(s.Text))
	}

	return b.String()
}

func (t *Template) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	return e.AppendString(b, t.String())
}

func (t *Template) compile(c *Catalog) (err error) {
	t.leaves = leaves(nil, t.Pattern)

	for _, s := range t.Skels {
		k := skel{Skel: s}

		k.parts, err = c.parse(t, s.Text)
		if err != nil {
			return errors.Wrap(err, "skeleton %q", s.Text)
		}

		for _, p := range k.parts {
			if p.kind == partOut && p.write {
				k.value = true
			}
		}

		for _, name := range s.Uses {
			r := c.names[name]
			if r == nil {
				return errors.Wrap(ErrBadTemplate, "skeleton %q: unknown register %v", s.Text, name)
			}

			k.uses = append(k.uses, r)
		}

		for _, name := range s.Defs {
			r := c.names[name]
			if r == nil {
				return errors.Wrap(ErrBadTemplate, "skeleton %q: unknown register %v", s.Text, name)
			}

			k.defs = append(k.defs, r)
		}

		t.code = append(t.code, k)
	}

	return nil
}

func (c *Catalog) parse(t *Template, text string) (parts []part, err error) {
	for i := 0; i < len(text); {
		st := strings.IndexAny(text[i:], "{}")
		if st < 0 {
			parts = append(parts, part{kind: partText, text: text[i:]})
			break
		}

		if st > 0 {
			parts = append(parts, part{kind: partText, text: text[i : i+st]})
		}

		i += st

		if text[i] == '}' {
			return nil, errors.Wrap(ErrBadTemplate, "unexpected } at %d", i)
		}

		end := strings.IndexByte(text[i:], '}')
		if end < 0 {
			return nil, errors.Wrap(ErrBadTemplate, "unclosed { at %d", i)
		}

		p, err := c.placeholder(t, text[i+1:i+end])
		if err != nil {
			return nil, errors.Wrap(err, "at %d", i)
		}

		parts = append(parts, p)
		i += end + 1
	}

	return parts, nil
}

func (c *Catalog) placeholder(t *Template, ph string) (p part, err error) {
	switch ph {
	case "out":
		return part{kind: partOut, write: true}, nil
	case "+out":
		return part{kind: partOut, read: true, write: true}, nil
	case "true":
		return part{kind: partTrue}, nil
	case "false":
		return part{kind: partFalse}, nil
	case "label":
		return part{kind: partLabel}, nil
	}

	if name, ok := strings.CutPrefix(ph, "in:"); ok {
		r := c.names[name]
		if r == nil {
			return p, errors.Wrap(ErrBadTemplate, "unknown register %v", name)
		}

		return part{kind: partFixed, reg: r, read: true}, nil
	}

	if name, ok := strings.CutPrefix(ph, "out:"); ok {
		r := c.names[name]
		if r == nil {
			return p, errors.Wrap(ErrBadTemplate, "unknown register %v", name)
		}

		return part{kind: partFixed, reg: r, write: true}, nil
	}

	p = part{kind: partLeaf, read: true}

	switch {
	case strings.HasPrefix(ph, "="):
		p.read, p.write = false, true
		ph = ph[1:]
	case strings.HasPrefix(ph, "+"):
		p.write = true
		ph = ph[1:]
	}

	p.leaf, err = strconv.Atoi(ph)
	if err != nil || p.leaf < 0 {
		return p, errors.Wrap(ErrBadTemplate, "bad placeholder {%s}", ph)
	}

	if p.leaf >= len(t.leaves) {
		return p, errors.Wrap(ErrBadTemplate, "leaf %d of %d", p.leaf, len(t.leaves))
	}

	if _, ok := t.leaves[p.leaf].(*ir.Temp); p.write && !ok {
		return p, errors.Wrap(ErrBadTemplate, "write to non register leaf %d", p.leaf)
	}

	return p, nil
}

// leaves lists pattern leaves in matching order.
func leaves(list []any, p any) []any {
	switch p := p.(type) {
	case *ir.Int, *ir.Addr, *ir.Temp:
		return append(list, p)
	case *ir.BinOp:
		list = leaves(list, p.L)
		return leaves(list, p.R)
	case *ir.Mem:
		return leaves(list, p.Addr)
	case *ir.Call:
		return leaves(list, p.Func)
	case *ir.Move:
		list = leaves(list, p.Dst)
		return leaves(list, p.Src)
	case *ir.Jump:
		return leaves(list, p.Dst)
	case *ir.CJump:
		list = leaves(list, p.L)
		return leaves(list, p.R)
	}

	return list
}
