package regalloc

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/df"
	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Spiller moves a register to memory rewriting all of its references.
	Spiller interface {
		Spill(f *ir.Frame, code asm.Code, r *ir.Reg) asm.Code
	}

	Config struct {
		K         int // number of colors, all catalog registers if zero
		MaxRounds int // spill and retry rounds, 16 if zero
	}

	Result struct {
		Code asm.Code
		Map  ir.RegMap

		Rounds    int
		Spilled   []*ir.Reg
		Coalesced [][]*ir.Reg // representative first
	}
)

var (
	ErrInvariant  = errors.New("allocator invariant violated")
	ErrNoProgress = errors.New("spilling makes no progress")
)

const DefaultMaxRounds = 16

// Allocate assigns catalog registers to every register referenced by the code.
// Registers which did not fit are spilled by sp and the whole analysis is repeated.
func Allocate(ctx context.Context, code asm.Code, f *ir.Frame, cat *asm.Catalog, sp Spiller, cfg Config) (res *Result, err error) {
	var fp *ir.Reg
	var name *ir.Label

	if f != nil {
		fp, name = f.FP, f.Label
	}

	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "regalloc", "func", name, "instrs", len(code))
	defer tr.Finish("err", &err)

	k := cfg.K
	if k <= 0 || k > len(cat.Regs) {
		k = len(cat.Regs)
	}

	if k == 0 {
		return nil, errors.New("%v: no allocatable registers", cat.Name)
	}

	rounds := cfg.MaxRounds
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}

	res = &Result{}
	temps := map[*ir.Reg]struct{}{}

	for {
		res.Rounds++

		if res.Rounds > rounds {
			return nil, errors.Wrap(ErrNoProgress, "%d rounds", rounds)
		}

		g, err := df.Build(code, fp)
		if err != nil {
			return nil, errors.Wrap(err, "flow graph")
		}

		l := df.Live(g)

		c := newColoring(l, k, len(cat.Regs), tr)

		for i, r := range cat.Regs {
			if n := l.Index(r); n >= 0 {
				c.precolor(n, i)
			}
		}

		for n, r := range l.Regs {
			if c.node[n] != Precolored && cat.Machine(r) {
				return nil, errors.Wrap(ErrInvariant, "register %v is not allocatable", r)
			}

			if _, ok := temps[r]; ok {
				c.noSpill.Set(n)
			}
		}

		c.run()

		if err = c.check(); err != nil {
			return nil, err
		}

		spilled := c.nodes[Spilled]

		tr.Printw("round", "round", res.Rounds, "regs", len(l.Regs), "colors", k, "spilled", len(spilled), "coalesced", len(c.nodes[Coalesced]))

		if len(spilled) == 0 {
			res.Code = code
			res.Map = c.regMap(cat)
			res.Coalesced = c.groups()

			return res, nil
		}

		known := make(map[*ir.Reg]struct{}, len(l.Regs))

		for _, r := range l.Regs {
			known[r] = struct{}{}
		}

		var spill []int

		for _, n := range spilled {
			if !c.noSpill.IsSet(n) {
				spill = append(spill, n)
			}
		}

		if len(spill) == 0 {
			return nil, errors.Wrap(ErrNoProgress, "spill temporary %v does not fit in %d registers", l.Regs[spilled[0]], k)
		}

		for _, n := range spill {
			r := l.Regs[n]

			tr.V("regalloc").Printw("spill", "reg", r, "count", l.Count[n])

			code = sp.Spill(f, code, r)
			res.Spilled = append(res.Spilled, r)
		}

		code.Regs(func(r *ir.Reg) {
			if _, ok := known[r]; !ok && r != fp {
				temps[r] = struct{}{}
			}
		})
	}
}

func (c *coloring) regMap(cat *asm.Catalog) ir.RegMap {
	m := make(ir.RegMap, len(c.live.Regs))

	for n, r := range c.live.Regs {
		if c.color[n] >= 0 {
			m.Map(r, cat.Regs[c.color[n]])
		}
	}

	return m
}

func (c *coloring) groups() (g [][]*ir.Reg) {
	idx := map[int]int{}

	for _, n := range c.nodes[Coalesced] {
		rep := c.find(n)

		i, ok := idx[rep]
		if !ok {
			i = len(g)
			idx[rep] = i
			g = append(g, []*ir.Reg{c.live.Regs[rep]})
		}

		g[i] = append(g[i], c.live.Regs[n])
	}

	return g
}
