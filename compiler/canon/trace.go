package canon

import (
	"tlog.app/go/errors"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	block struct {
		label *ir.Label
		list  []ir.Stmt // starts with Place, ends with Jump or CJump
	}
)

// ArrangeJumps splits canonical s into basic blocks and orders them into traces
// so that most jumps fall through. Unconditional jumps to the next block are removed
// and every conditional jump is followed by its false target.
func (c *Canonicalizer) ArrangeJumps(s ir.Stmt) (*ir.Seq, error) {
	exit := c.env.NewLabel()

	blocks, err := c.split(s, exit)
	if err != nil {
		return nil, err
	}

	order := c.trace(blocks)

	var list []ir.Stmt

	for i, b := range order {
		next := exit
		if i+1 < len(order) {
			next = order[i+1].label
		}

		last := len(b.list) - 1

		list = append(list, b.list[:last]...)

		switch j := b.list[last].(type) {
		case *ir.Jump:
			if a, ok := j.Dst.(*ir.Addr); ok && a.Label == next {
				continue
			}

			list = append(list, j)
		case *ir.CJump:
			switch next {
			case j.False:
				list = append(list, j)
			case j.True:
				list = append(list, &ir.CJump{Cond: j.Cond.Inverse(), L: j.L, R: j.R, True: j.False, False: j.True})
			default:
				f := c.env.NewLabel()

				list = append(list,
					&ir.CJump{Cond: j.Cond, L: j.L, R: j.R, True: j.True, False: f},
					&ir.Place{Label: f},
					ir.NewJump(j.False),
				)
			}
		}
	}

	list = append(list, &ir.Place{Label: exit})

	return &ir.Seq{List: list}, nil
}

func (c *Canonicalizer) split(s ir.Stmt, exit *ir.Label) (blocks []*block, err error) {
	var cur *block

	for _, x := range flatten(nil, s) {
		switch x := x.(type) {
		case nil:
			return nil, errors.Wrap(ErrMalformed, "nil statement")
		case *ir.Place:
			if cur != nil {
				cur.list = append(cur.list, ir.NewJump(x.Label))
			}

			cur = &block{label: x.Label, list: []ir.Stmt{x}}
			blocks = append(blocks, cur)

			continue
		}

		if cur == nil {
			l := c.env.NewLabel()

			cur = &block{label: l, list: []ir.Stmt{&ir.Place{Label: l}}}
			blocks = append(blocks, cur)
		}

		cur.list = append(cur.list, x)

		switch x.(type) {
		case *ir.Jump, *ir.CJump:
			cur = nil
		}
	}

	if cur != nil {
		cur.list = append(cur.list, ir.NewJump(exit))
	}

	if len(blocks) == 0 {
		blocks = append(blocks, &block{label: c.env.NewLabel()})
		blocks[0].list = []ir.Stmt{&ir.Place{Label: blocks[0].label}, ir.NewJump(exit)}
	}

	return blocks, nil
}

func (c *Canonicalizer) trace(blocks []*block) (order []*block) {
	index := make(map[*ir.Label]int, len(blocks))

	for i, b := range blocks {
		index[b.label] = i
	}

	placed := make([]bool, len(blocks))

	// each trace starts from the earliest block not yet placed
	for start := range blocks {
		for i := start; !placed[i]; {
			placed[i] = true
			order = append(order, blocks[i])

			next, ok := index[successor(blocks[i])]
			if !ok {
				break
			}

			i = next
		}
	}

	return order
}

func flatten(list []ir.Stmt, s ir.Stmt) []ir.Stmt {
	if q, ok := s.(*ir.Seq); ok {
		for _, x := range q.List {
			list = flatten(list, x)
		}

		return list
	}

	return append(list, s)
}

func successor(b *block) *ir.Label {
	switch j := b.list[len(b.list)-1].(type) {
	case *ir.CJump:
		return j.True
	case *ir.Jump:
		if len(j.Targets) != 0 {
			return j.Targets[0]
		}
	}

	return nil
}
