package regalloc

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/tlog"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/df"
	"github.com/slowlang/munch/compiler/ir"
)

type (
	fixture struct {
		env   *ir.Env
		cat   *asm.Catalog
		frame *ir.Frame
	}

	slotSpiller struct {
		env *ir.Env
	}
)

func newFixture(nregs int) *fixture {
	env := ir.NewEnv()

	var machine []*ir.Reg

	for i := 0; i < nregs; i++ {
		machine = append(machine, env.NamedReg(fmt.Sprintf("r%d", i)))
	}

	cat := asm.NewCatalog("test", machine...)
	cat.Regs = machine

	return &fixture{
		env: env,
		cat: cat,
		frame: &ir.Frame{
			Label: env.NamedLabel("f"),
			FP:    env.NamedReg("fp"),
		},
	}
}

func (s slotSpiller) Spill(f *ir.Frame, code asm.Code, r *ir.Reg) asm.Code {
	slot := f.AllocSlot()

	return asm.Rewrite(s.env, code, r, func(t *ir.Reg) *asm.Instr {
		return &asm.Instr{Text: fmt.Sprintf("ld &o0, %d(&i0)", slot.Off), In: regs(f.FP), Out: regs(t)}
	}, func(t *ir.Reg) *asm.Instr {
		return &asm.Instr{Text: fmt.Sprintf("st &i0, %d(&i1)", slot.Off), In: regs(t, f.FP)}
	})
}

func regs(r ...*ir.Reg) []*ir.Reg { return r }

func def(r *ir.Reg) *asm.Instr    { return &asm.Instr{Text: "li &o0, 1", Out: regs(r)} }
func use(r ...*ir.Reg) *asm.Instr { return &asm.Instr{Text: "use", In: r} }
func mov(dst, src *ir.Reg) *asm.Instr {
	return &asm.Instr{Text: "mov &o0, &i0", In: regs(src), Out: regs(dst), Move: true}
}

func (x *fixture) allocate(t testing.TB, code asm.Code, cfg Config) *Result {
	t.Helper()

	res, err := Allocate(context.Background(), code, x.frame, x.cat, slotSpiller{env: x.env}, cfg)
	require.NoError(t, err)

	assertComplete(t, res)

	return res
}

func assertComplete(t testing.TB, res *Result) {
	t.Helper()

	res.Code.Regs(func(r *ir.Reg) {
		if r.Name == "fp" {
			return
		}

		assert.NotNil(t, res.Map.Get(r), "register %v left unresolved", r)
	})
}

func TestSharedColor(t *testing.T) {
	x := newFixture(2)
	a, b, c := x.env.NewReg(), x.env.NewReg(), x.env.NewReg()

	code := asm.Code{
		def(a),
		def(b),
		{Text: "add &o0, &i0, 1", In: regs(a), Out: regs(c)},
		use(b, c),
	}

	res := x.allocate(t, code, Config{K: 2})

	assert.Equal(t, 1, res.Rounds)
	assert.Empty(t, res.Spilled)
	assert.Same(t, res.Map.Get(a), res.Map.Get(c))
	assert.NotSame(t, res.Map.Get(a), res.Map.Get(b))
	assert.Same(t, x.cat.Regs[0], res.Map.Get(b))
}

func TestCoalesceMove(t *testing.T) {
	x := newFixture(2)
	a, b := x.env.NewReg(), x.env.NewReg()

	code := asm.Code{
		def(b),
		mov(a, b),
		use(a),
	}

	res := x.allocate(t, code, Config{})

	assert.Same(t, res.Map.Get(a), res.Map.Get(b))
	assert.Equal(t, [][]*ir.Reg{{b, a}}, res.Coalesced)
}

func TestInterferingMoveNotCoalesced(t *testing.T) {
	x := newFixture(2)
	a, b := x.env.NewReg(), x.env.NewReg()

	code := asm.Code{
		def(b),
		mov(a, b),
		def(b),
		use(a, b),
	}

	res := x.allocate(t, code, Config{})

	assert.NotSame(t, res.Map.Get(a), res.Map.Get(b))
	assert.Empty(t, res.Coalesced)
}

func TestPrecolorStability(t *testing.T) {
	x := newFixture(2)
	r0, r1 := x.cat.Regs[0], x.cat.Regs[1]
	a, b := x.env.NewReg(), x.env.NewReg()

	code := asm.Code{
		def(a),
		mov(r0, a),
		use(r0),
	}

	res := x.allocate(t, code, Config{})

	assert.Same(t, r0, res.Map.Get(r0))
	assert.Same(t, r0, res.Map.Get(a), "coalesced with precolored")

	code = asm.Code{
		def(b),
		{Text: "li &o0, 2", Out: regs(r0)},
		use(b, r0),
	}

	res = x.allocate(t, code, Config{})

	assert.Same(t, r0, res.Map.Get(r0))
	assert.Same(t, r1, res.Map.Get(b))
}

func TestPrecoloredBeyondColors(t *testing.T) {
	x := newFixture(3)
	r0, r2 := x.cat.Regs[0], x.cat.Regs[2]
	a := x.env.NewReg()

	code := asm.Code{
		def(a),
		mov(r2, a),
		use(r2),
	}

	res := x.allocate(t, code, Config{K: 2})

	assert.Same(t, r2, res.Map.Get(r2))
	assert.Same(t, r0, res.Map.Get(a), "must stay within the first two colors")
	assert.Empty(t, res.Coalesced)
}

func TestNotAllocatableMachineRegister(t *testing.T) {
	x := newFixture(2)
	sp := x.env.NamedReg("sp")

	r0, r1 := x.cat.Regs[0], x.cat.Regs[1]

	x.cat = asm.NewCatalog("test", r0, r1, sp)
	x.cat.Regs = regs(r0, r1)

	_, err := Allocate(context.Background(), asm.Code{use(sp)}, x.frame, x.cat, slotSpiller{env: x.env}, Config{})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestSpillTerminates(t *testing.T) {
	x := newFixture(2)
	a, b, c := x.env.NewReg(), x.env.NewReg(), x.env.NewReg()

	code := asm.Code{
		def(a),
		def(b),
		def(c),
		use(a),
		use(b),
		use(c),
	}

	res := x.allocate(t, code, Config{K: 1})

	assert.Equal(t, 3, res.Rounds)
	assert.ElementsMatch(t, regs(a, b, c), res.Spilled)
	assert.Equal(t, int64(24), x.frame.Size)

	res.Code.Regs(func(r *ir.Reg) {
		assert.NotContains(t, regs(a, b, c), r)

		if r != x.frame.FP {
			assert.Same(t, x.cat.Regs[0], res.Map.Get(r))
		}
	})
}

func TestSpillNoProgress(t *testing.T) {
	x := newFixture(2)
	a, b := x.env.NewReg(), x.env.NewReg()

	code := asm.Code{
		def(a),
		def(b),
		use(a, b),
	}

	_, err := Allocate(context.Background(), code, x.frame, x.cat, slotSpiller{env: x.env}, Config{K: 1})
	assert.ErrorIs(t, err, ErrNoProgress)

	code = asm.Code{def(a), def(b), use(a), use(b)}

	_, err = Allocate(context.Background(), code, x.frame, x.cat, slotSpiller{env: x.env}, Config{K: 1, MaxRounds: 1})
	assert.ErrorIs(t, err, ErrNoProgress)
}

func TestColoringInvariant(t *testing.T) {
	env := ir.NewEnv()
	a, b, c := env.NewReg(), env.NewReg(), env.NewReg()

	code := asm.Code{
		def(a),
		def(b),
		mov(c, a),
		use(a, b, c),
	}

	g, err := df.Build(code, nil)
	require.NoError(t, err)

	l := df.Live(g)

	col := newColoring(l, 3, 3, tlog.Root())
	col.run()

	require.NoError(t, col.check())

	for i := range code {
		l.LiveAfter[i].Range(func(v int) bool {
			l.LiveAfter[i].Range(func(w int) bool {
				if v != w && col.find(v) != col.find(w) {
					assert.NotEqual(t, col.color[v], col.color[w], "%v and %v live after %d", l.Regs[v], l.Regs[w], i)
				}

				return true
			})

			return true
		})
	}

	col.color[l.Index(b)] = col.color[l.Index(a)]

	assert.ErrorIs(t, col.check(), ErrInvariant)
}

func TestWorklists(t *testing.T) {
	var w worklists

	w.init(4, 2)

	for n := 0; n < 4; n++ {
		w.addNode(n, Removable)
	}

	w.setNode(0, Selected)
	w.setNode(2, Selected)
	w.setNode(2, Colored)

	assert.Equal(t, []int{1, 3}, w.nodes[Removable])
	assert.Equal(t, []int{0}, w.nodes[Selected])
	assert.Equal(t, []int{2}, w.nodes[Colored])
	assert.Equal(t, Colored, w.node[2])

	w.addMove(1, MoveCoalescable)
	w.setMove(1, MoveActive)

	assert.Empty(t, w.moves[MoveCoalescable])
	assert.Equal(t, []int{1}, w.moves[MoveActive])
	assert.Equal(t, "active", w.move[1].String())
}
