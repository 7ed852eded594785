package df

import (
	"github.com/slowlang/munch/compiler/ir"
	"github.com/slowlang/munch/compiler/set"
)

type (
	// Liveness numbers registers densely in order of first reference.
	Liveness struct {
		Regs  []*ir.Reg
		index map[*ir.Reg]int

		Uses      [][]int
		Defs      [][]int
		LiveAfter []set.Bitmap
		Move      []bool

		Count []int // uses and definitions of the register
	}
)

func Live(g *Graph) *Liveness {
	n := len(g.Nodes)

	l := &Liveness{
		index: make(map[*ir.Reg]int),
		Uses:  make([][]int, n),
		Defs:  make([][]int, n),
		Move:  make([]bool, n),
	}

	for i, x := range g.Code {
		l.Uses[i] = l.number(l.Uses[i], x.In, g.Ignore)
		l.Defs[i] = l.number(l.Defs[i], x.Out, g.Ignore)
		l.Move[i] = x.Move && len(l.Uses[i]) == 1 && len(l.Defs[i]) == 1
	}

	l.LiveAfter = make([]set.Bitmap, n)
	for i := range l.LiveAfter {
		l.LiveAfter[i] = set.MakeBitmap(len(l.Regs))
	}

	var stack []int

	for i := range g.Nodes {
		for _, r := range l.Uses[i] {
			stack = append(stack[:0], i)

			for len(stack) != 0 {
				last := len(stack) - 1
				m := stack[last]
				stack = stack[:last]

				for _, p := range g.Nodes[m].Pred {
					if l.LiveAfter[p].IsSet(r) {
						continue
					}

					l.LiveAfter[p].Set(r)

					if !l.Defines(p, r) {
						stack = append(stack, p)
					}
				}
			}
		}
	}

	return l
}

// Index returns the register number or -1.
func (l *Liveness) Index(r *ir.Reg) int {
	i, ok := l.index[r]
	if !ok {
		return -1
	}

	return i
}

func (l *Liveness) Defines(n, r int) bool {
	for _, d := range l.Defs[n] {
		if d == r {
			return true
		}
	}

	return false
}

// Live returns the registers live after node n.
func (l *Liveness) Live(n int) (regs []*ir.Reg) {
	l.LiveAfter[n].Range(func(i int) bool {
		regs = append(regs, l.Regs[i])
		return true
	})

	return regs
}

func (l *Liveness) number(list []int, regs []*ir.Reg, ignore *ir.Reg) []int {
	for _, r := range regs {
		if r == ignore {
			continue
		}

		i, ok := l.index[r]
		if !ok {
			i = len(l.Regs)

			l.index[r] = i
			l.Regs = append(l.Regs, r)
			l.Count = append(l.Count, 0)
		}

		if has(list, i) {
			continue
		}

		l.Count[i]++
		list = append(list, i)
	}

	return list
}

func has(list []int, x int) bool {
	for _, y := range list {
		if y == x {
			return true
		}
	}

	return false
}
