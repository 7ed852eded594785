package df

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/ir"
)

func regs(r ...*ir.Reg) []*ir.Reg { return r }

func TestBuild(t *testing.T) {
	env := ir.NewEnv()
	a, b := env.NewReg(), env.NewReg()
	L, M := env.NamedLabel("L"), env.NamedLabel("M")

	code := asm.Code{
		{Text: "li &o0, 1", Out: regs(a)},
		{Text: "L:", Label: L},
		{Text: "blt &i0, &i1, L", In: regs(a, b), Dests: []*ir.Label{L}, Next: true},
		{Text: "j M", Dests: []*ir.Label{M}},
		{Text: "M:", Label: M},
	}

	g, err := Build(code, nil)
	require.NoError(t, err)

	succ := [][]int{{1}, {2}, {3, 1}, {4}, nil}
	pred := [][]int{nil, {0, 2}, {1}, {2}, {3}}

	for i, n := range g.Nodes {
		assert.Equal(t, succ[i], n.Succ, "succ %d", i)
		assert.Equal(t, pred[i], n.Pred, "pred %d", i)
	}

	_, err = Build(asm.Code{{Text: "j nowhere", Dests: []*ir.Label{env.NewLabel()}}}, nil)
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, err = Build(asm.Code{{Text: "L:", Label: L}, {Text: "L:", Label: L}}, nil)
	assert.Error(t, err)
}

func TestLivenessLoop(t *testing.T) {
	env := ir.NewEnv()
	a, b, r := env.NewReg(), env.NewReg(), env.NewReg()
	L := env.NamedLabel("L")

	code := asm.Code{
		{Text: "li &o0, 0", Out: regs(a)},
		{Text: "li &o0, 1", Out: regs(b)},
		{Text: "L:", Label: L},
		{Text: "add &o0, &i0, &i1", In: regs(a, b), Out: regs(a)},
		{Text: "blt &i0, &i1, L", In: regs(a, b), Dests: []*ir.Label{L}, Next: true},
		{Text: "mov &i0, &o0", In: regs(a), Out: regs(r), Move: true},
	}

	g, err := Build(code, nil)
	require.NoError(t, err)

	l := Live(g)

	assert.Equal(t, regs(a, b, r), l.Regs)
	assert.Equal(t, 0, l.Index(a))
	assert.Equal(t, -1, l.Index(env.NewReg()))

	live := [][]*ir.Reg{
		regs(a),
		regs(a, b),
		regs(a, b),
		regs(a, b),
		regs(a, b),
		nil,
	}

	for i := range code {
		assert.Equal(t, live[i], l.Live(i), "live after %d: %v", i, code[i])
	}

	assert.Equal(t, []bool{false, false, false, false, false, true}, l.Move)
	assert.Equal(t, []int{5, 3, 1}, l.Count)

	assert.Equal(t, []int{0, 1}, l.Uses[3])
	assert.Equal(t, []int{0}, l.Defs[3])
	assert.True(t, l.Defines(3, 0))
	assert.False(t, l.Defines(4, 0))
}

func TestLivenessIgnoresFramePointer(t *testing.T) {
	env := ir.NewEnv()
	fp, a := env.NamedReg("fp"), env.NewReg()

	code := asm.Code{
		{Text: "ld &o0, -8(&i0)", In: regs(fp), Out: regs(a)},
		{Text: "st &i0, -16(&i1)", In: regs(a, fp)},
	}

	g, err := Build(code, fp)
	require.NoError(t, err)

	l := Live(g)

	assert.Equal(t, regs(a), l.Regs)
	assert.Equal(t, regs(a), l.Live(0))
	assert.Empty(t, l.Live(1))
	assert.False(t, l.Move[0])
}

func TestLivenessDeadDefinition(t *testing.T) {
	env := ir.NewEnv()
	a, b := env.NewReg(), env.NewReg()

	code := asm.Code{
		{Text: "li &o0, 1", Out: regs(a)},
		{Text: "li &o0, 2", Out: regs(a)},
		{Text: "mov &i0, &o0", In: regs(a), Out: regs(b), Move: true},
	}

	g, err := Build(code, nil)
	require.NoError(t, err)

	l := Live(g)

	assert.Empty(t, l.Live(0), "redefined before use")
	assert.Equal(t, regs(a), l.Live(1))
	assert.Empty(t, l.Live(2))
}
