package asm

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Instr is a selected machine instruction.
	// Text refers to registers by slots: &iN is In[N], &oN is Out[N].
	Instr struct {
		Text string

		In  []*ir.Reg
		Out []*ir.Reg

		Label *ir.Label // set if the instruction places a label

		Move bool // register to register copy

		Dests []*ir.Label
		Next  bool // also falls through when Dests is set
	}

	Code []*Instr
)

// FallsThrough reports whether control may reach the next instruction.
func (x *Instr) FallsThrough() bool {
	return len(x.Dests) == 0 || x.Next
}

// Append appends text with register slots resolved through m.
// Registers missing in m are printed by their own names.
func (x *Instr) Append(b []byte, m ir.RegMap) []byte {
	t := x.Text

	for i := 0; i < len(t); i++ {
		if t[i] != '&' || i+2 >= len(t) || t[i+1] != 'i' && t[i+1] != 'o' {
			b = append(b, t[i])
			continue
		}

		j := i + 2
		for j < len(t) && t[j] >= '0' && t[j] <= '9' {
			j++
		}

		n, err := strconv.Atoi(t[i+2 : j])
		if err != nil {
			b = append(b, t[i])
			continue
		}

		regs := x.In
		if t[i+1] == 'o' {
			regs = x.Out
		}

		if n >= len(regs) {
			b = append(b, t[i:j]...)
			i = j - 1

			continue
		}

		r := regs[n]
		if p := m.Get(r); p != nil {
			r = p
		}

		b = append(b, r.String()...)
		i = j - 1
	}

	return b
}

func (x *Instr) String() string {
	return string(x.Append(nil, nil))
}

func (x *Instr) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if x == nil {
		return e.AppendNil(b)
	}

	return e.AppendString(b, x.String())
}

// Append appends the listing of the code with labels unindented.
func (c Code) Append(b []byte, m ir.RegMap) []byte {
	for _, x := range c {
		if x.Label == nil {
			b = append(b, '\t')
		}

		b = x.Append(b, m)
		b = append(b, '\n')
	}

	return b
}

// Regs calls f for every register referenced by the code.
func (c Code) Regs(f func(r *ir.Reg)) {
	for _, x := range c {
		for _, r := range x.In {
			f(r)
		}

		for _, r := range x.Out {
			f(r)
		}
	}
}

func has(list []*ir.Reg, r *ir.Reg) bool {
	for _, x := range list {
		if x == r {
			return true
		}
	}

	return false
}

// slot returns r index in the list appending it if needed.
func slot(list []*ir.Reg, r *ir.Reg) ([]*ir.Reg, int) {
	for i, x := range list {
		if x == r {
			return list, i
		}
	}

	return append(list, r), len(list)
}
