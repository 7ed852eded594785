package df

import (
	"tlog.app/go/errors"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Graph is a control flow graph with one node per instruction.
	Graph struct {
		Code  asm.Code
		Nodes []Node

		Ignore *ir.Reg // not tracked, usually the frame pointer
	}

	Node struct {
		Succ []int
		Pred []int
	}
)

var ErrUnknownLabel = errors.New("unknown label")

func Build(code asm.Code, ignore *ir.Reg) (*Graph, error) {
	labels := make(map[*ir.Label]int)

	for i, x := range code {
		if x.Label == nil {
			continue
		}

		if j, ok := labels[x.Label]; ok {
			return nil, errors.New("label %v placed twice: %d and %d", x.Label, j, i)
		}

		labels[x.Label] = i
	}

	g := &Graph{
		Code:   code,
		Nodes:  make([]Node, len(code)),
		Ignore: ignore,
	}

	for i, x := range code {
		if x.FallsThrough() && i+1 < len(code) {
			g.edge(i, i+1)
		}

		for _, l := range x.Dests {
			j, ok := labels[l]
			if !ok {
				return nil, errors.Wrap(ErrUnknownLabel, "instruction %d %q: %v", i, x.Text, l)
			}

			g.edge(i, j)
		}
	}

	return g, nil
}

func (g *Graph) edge(from, to int) {
	for _, s := range g.Nodes[from].Succ {
		if s == to {
			return
		}
	}

	g.Nodes[from].Succ = append(g.Nodes[from].Succ, to)
	g.Nodes[to].Pred = append(g.Nodes[to].Pred, from)
}
