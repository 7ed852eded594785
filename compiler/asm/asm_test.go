package asm

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	testABI struct {
		cat *Catalog
	}
)

func newTestCatalog(t testing.TB, env *ir.Env) *Catalog {
	t.Helper()

	r0, r1 := env.NamedReg("r0"), env.NamedReg("r1")

	c := NewCatalog("test", r0, r1)
	c.Regs = []*ir.Reg{r0, r1}
	c.Params = []*ir.Reg{r0, r1}
	c.CallerSave = []*ir.Reg{r0, r1}
	c.Result = r0

	T := &ir.Temp{}
	I := &ir.Int{}

	for _, x := range []struct {
		p any
		s []Skel
	}{
		{T, []Skel{{Text: "mov {0}, {out}", Move: true}}},
		{I, []Skel{{Text: "li {out}, {0}"}}},
		{&ir.Addr{}, []Skel{{Text: "la {out}, {0}"}}},
		{&ir.Mem{Addr: T}, []Skel{{Text: "ld {out}, ({0})"}}},
		{&ir.Mem{Addr: &ir.BinOp{Op: ir.Plus, L: T, R: I}}, []Skel{{Text: "ld {out}, {1}({0})"}}},
		{&ir.BinOp{Op: ir.Plus, L: T, R: T}, []Skel{{Text: "add {out}, {0}, {1}"}}},
		{&ir.BinOp{Op: ir.Plus, L: T, R: I}, []Skel{{Text: "addi {out}, {0}, {1}"}}},
		{&ir.BinOp{Op: ir.Mul, L: T, R: T}, []Skel{
			{Text: "mul {0}, {1}", Defs: []string{"r0", "r1"}},
			{Text: "mov {in:r0}, {out}", Move: true},
		}},
		{&ir.Move{Dst: T, Src: T}, []Skel{{Text: "mov {1}, {=0}", Move: true}}},
		{&ir.Move{Dst: &ir.Mem{Addr: T}, Src: T}, []Skel{{Text: "st {1}, ({0})"}}},
		{&ir.Jump{Dst: &ir.Addr{}}, []Skel{{Text: "j {0}", Branch: true}}},
		{&ir.CJump{Cond: ir.Lt, L: T, R: T}, []Skel{{Text: "blt {0}, {1}, {true}", Branch: true}}},
		{&ir.Place{}, []Skel{{Text: "{label}:"}}},
		{&ir.Call{Func: &ir.Addr{}}, []Skel{
			{Text: "call {0}", Call: true, Defs: []string{"r0", "r1"}},
			{Text: "mov {in:r0}, {out}", Move: true},
		}},
	} {
		require.NoError(t, c.Add(x.p, x.s...))
	}

	return c
}

func (a testABI) PlaceCallArgs(args []*ir.Reg, fp *ir.Reg) (code Code, used []*ir.Reg) {
	for i, r := range args {
		p := a.cat.Params[i]

		code = append(code, &Instr{Text: "mov &i0, &o0", In: []*ir.Reg{r}, Out: []*ir.Reg{p}, Move: true})
		used = append(used, p)
	}

	return code, used
}

func (a testABI) RemoveCallArgs(args []*ir.Reg) Code {
	return Code{{Text: "add sp, " + strconv.Itoa(len(args))}}
}

func TestMaximalMunch(t *testing.T) {
	env := ir.NewEnv()
	a := env.NewReg()

	small := &ir.Mem{Addr: &ir.Temp{}}
	big := &ir.Mem{Addr: &ir.BinOp{Op: ir.Plus, L: &ir.Temp{}, R: &ir.Int{}}}

	for _, order := range [][]*ir.Mem{{small, big}, {big, small}} {
		c := NewCatalog("munch")

		for _, p := range order {
			require.NoError(t, c.Add(p, Skel{Text: "ld {out}, {0}"}))
		}

		s := NewSelector(env, c, nil)

		tpl, err := s.Match(&ir.Mem{Addr: &ir.BinOp{Op: ir.Plus, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: 4}}})
		require.NoError(t, err)
		assert.Same(t, big, tpl.Pattern)

		tpl, err = s.Match(&ir.Mem{Addr: &ir.Temp{Reg: a}})
		require.NoError(t, err)
		assert.Same(t, small, tpl.Pattern)

		// glue covers the binary op with a register
		tpl, err = s.Match(&ir.Mem{Addr: &ir.BinOp{Op: ir.Minus, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: 4}}})
		require.NoError(t, err)
		assert.Same(t, small, tpl.Pattern)
	}
}

func TestTieFirstWins(t *testing.T) {
	env := ir.NewEnv()
	a := env.NewReg()

	c := NewCatalog("tie")

	T, I := &ir.Temp{}, &ir.Int{}
	twice := &ir.BinOp{Op: ir.Mul, L: T, R: &ir.Int{Value: 2}}
	generic := &ir.BinOp{Op: ir.Mul, L: T, R: I}

	require.NoError(t, c.Add(twice, Skel{Text: "shl {out}, {0}, 1"}))
	require.NoError(t, c.Add(generic, Skel{Text: "muli {out}, {0}, {1}"}))

	s := NewSelector(env, c, nil)

	tpl, err := s.Match(&ir.BinOp{Op: ir.Mul, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: 2}})
	require.NoError(t, err)
	assert.Same(t, twice, tpl.Pattern)

	tpl, err = s.Match(&ir.BinOp{Op: ir.Mul, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: 3}})
	require.NoError(t, err)
	assert.Same(t, generic, tpl.Pattern)
}

func TestImmediateRange(t *testing.T) {
	env := ir.NewEnv()
	a := env.NewReg()

	c := NewCatalog("imm")
	c.Imm = func(v int64) bool { return v >= -128 && v < 128 }

	T, I := &ir.Temp{}, &ir.Int{}
	short := &ir.BinOp{Op: ir.Plus, L: T, R: I}
	long := &ir.BinOp{Op: ir.Plus, L: T, R: T}
	li := &ir.Int{}
	wide := &ir.Int{}

	require.NoError(t, c.Add(short, Skel{Text: "addi {out}, {0}, {1}"}))
	require.NoError(t, c.Add(long, Skel{Text: "add {out}, {0}, {1}"}))
	require.NoError(t, c.Add(li, Skel{Text: "li {out}, {0}"}))

	s := NewSelector(env, c, nil)

	tpl, err := s.Match(&ir.BinOp{Op: ir.Plus, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: -128}})
	require.NoError(t, err)
	assert.Same(t, short, tpl.Pattern)

	tpl, err = s.Match(&ir.BinOp{Op: ir.Plus, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: 128}})
	require.NoError(t, err)
	assert.Same(t, long, tpl.Pattern)

	_, err = s.Match(&ir.Int{Value: 1000})
	assert.ErrorIs(t, err, ErrNoTemplate)

	require.NoError(t, c.AddWide(wide, Skel{Text: "li.w {out}, {0}"}))

	tpl, err = s.Match(&ir.Int{Value: 1000})
	require.NoError(t, err)
	assert.Same(t, wide, tpl.Pattern)

	tpl, err = s.Match(&ir.Int{Value: 5})
	require.NoError(t, err)
	assert.Same(t, li, tpl.Pattern)
}

func TestSelectGlue(t *testing.T) {
	env := ir.NewEnv()
	c := newTestCatalog(t, env)
	a, b, d := env.NewReg(), env.NewReg(), env.NewReg()

	s := NewSelector(env, c, testABI{cat: c})

	err := s.Expr(&ir.BinOp{Op: ir.Plus, L: &ir.Mem{Addr: &ir.Temp{Reg: a}}, R: &ir.Temp{Reg: b}}, d)
	require.NoError(t, err)

	code := s.Take()
	assert.Equal(t, "\tld t5, (t2)\n\tadd t4, t5, t3\n", string(code.Append(nil, nil)))

	if assert.Len(t, code, 2) {
		assert.Equal(t, []*ir.Reg{code[0].Out[0], b}, code[1].In)
		assert.Equal(t, []*ir.Reg{d}, code[1].Out)
	}

	err = s.Expr(&ir.Mem{Addr: &ir.BinOp{Op: ir.Plus, L: &ir.Temp{Reg: a}, R: &ir.Int{Value: -8}}}, d)
	require.NoError(t, err)
	assert.Equal(t, "\tld t4, -8(t2)\n", string(s.Take().Append(nil, nil)))
}

func TestSelectDropsUnusedValue(t *testing.T) {
	env := ir.NewEnv()
	c := newTestCatalog(t, env)
	a, b := env.NewReg(), env.NewReg()

	s := NewSelector(env, c, testABI{cat: c})

	require.NoError(t, s.Stmt(&ir.ExpStmt{Expr: &ir.BinOp{Op: ir.Mul, L: &ir.Temp{Reg: a}, R: &ir.Temp{Reg: b}}}))

	code := s.Take()
	if assert.Len(t, code, 1) {
		assert.Equal(t, "mul t2, t3", code[0].String())
		assert.Equal(t, []*ir.Reg{c.Reg("r0"), c.Reg("r1")}, code[0].Out)
	}

	require.NoError(t, s.Stmt(&ir.ExpStmt{Expr: &ir.Temp{Reg: a}}))
	assert.Empty(t, s.Take())
}

func TestSelectCall(t *testing.T) {
	env := ir.NewEnv()
	c := newTestCatalog(t, env)
	a, d := env.NewReg(), env.NewReg()
	f := env.NamedLabel("f")

	s := NewSelector(env, c, testABI{cat: c})

	err := s.Expr(&ir.Call{Func: &ir.Addr{Label: f}, Args: []ir.Expr{&ir.Int{Value: 1}, &ir.Temp{Reg: a}}}, d)
	require.NoError(t, err)

	code := s.Take()
	assert.Equal(t, "\tli t4, 1\n\tmov t2, t5\n\tmov t4, r0\n\tmov t5, r1\n\tcall f\n\tmov r0, t3\n\tadd sp, 2\n", string(code.Append(nil, nil)))

	if assert.Len(t, code, 7) {
		call := code[4]
		assert.Equal(t, c.Regs, call.In)
		assert.Equal(t, c.Regs, call.Out)
		assert.False(t, call.Move)

		assert.True(t, code[5].Move)
	}

	err = s.Stmt(&ir.Move{Dst: &ir.Temp{Reg: a}, Src: &ir.Call{Func: &ir.Addr{Label: f}}})
	require.NoError(t, err)
	assert.Equal(t, "\tcall f\n\tmov r0, t6\n\tadd sp, 0\n\tmov t6, t2\n", string(s.Take().Append(nil, nil)))
}

func TestSelectStatements(t *testing.T) {
	env := ir.NewEnv()
	c := newTestCatalog(t, env)
	a, b := env.NewReg(), env.NewReg()
	T, F := env.NamedLabel("T"), env.NamedLabel("F")

	s := NewSelector(env, c, testABI{cat: c})

	err := s.Stmt(ir.NewSeq(
		&ir.Place{Label: F},
		&ir.Move{Dst: &ir.Mem{Addr: &ir.Temp{Reg: a}}, Src: &ir.Int{Value: 5}},
		&ir.CJump{Cond: ir.Lt, L: &ir.Temp{Reg: a}, R: &ir.Temp{Reg: b}, True: T, False: F},
		ir.NewJump(T),
	))
	require.NoError(t, err)

	code := s.Take()
	assert.Equal(t, "F:\n\tli t4, 5\n\tst t4, (t2)\n\tblt t2, t3, T\n\tj T\n", string(code.Append(nil, nil)))

	if assert.Len(t, code, 5) {
		assert.Same(t, F, code[0].Label)

		assert.Equal(t, []*ir.Label{T}, code[3].Dests)
		assert.True(t, code[3].Next)
		assert.True(t, code[0].FallsThrough())
		assert.True(t, code[3].FallsThrough())

		assert.Equal(t, []*ir.Label{T}, code[4].Dests)
		assert.False(t, code[4].FallsThrough())
	}

	err = s.Stmt(&ir.CJump{Cond: ir.Eq, L: &ir.Temp{Reg: a}, R: &ir.Temp{Reg: b}, True: T, False: F})
	assert.ErrorIs(t, err, ErrNoTemplate)

	err = s.Expr(&ir.ESeq{Stmt: &ir.Seq{}, Value: &ir.Int{}}, nil)
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestBadTemplates(t *testing.T) {
	env := ir.NewEnv()
	c := NewCatalog("bad", env.NamedReg("r0"))

	T, I := &ir.Temp{}, &ir.Int{}

	for _, tc := range []struct {
		p any
		s Skel
	}{
		{I, Skel{Text: "li {out, {0}"}},
		{I, Skel{Text: "li {out}}"}},
		{I, Skel{Text: "li {out"}},
		{I, Skel{Text: "li {=0}"}},
		{I, Skel{Text: "li {1}"}},
		{I, Skel{Text: "li {in:r9}"}},
		{I, Skel{Text: "li {out}", Defs: []string{"r9"}}},
		{&ir.BinOp{Op: ir.Plus, L: &ir.Call{Func: T}, R: T}, Skel{Text: "add"}},
		{&ir.Move{Dst: I, Src: T}, Skel{Text: "mov"}},
		{&ir.ESeq{}, Skel{Text: "nop"}},
	} {
		err := c.Add(tc.p, tc.s)
		assert.ErrorIs(t, err, ErrBadTemplate, "%v %q", tc.p, tc.s.Text)
	}

	assert.Zero(t, c.Len())
}

func TestRewrite(t *testing.T) {
	env := ir.NewEnv()
	x, y := env.NewReg(), env.NewReg()

	code := Code{
		{Text: "li &o0, 1", Out: []*ir.Reg{x}},
		{Text: "add &o0, &i0, &i1", In: []*ir.Reg{x, x}, Out: []*ir.Reg{y}},
		{Text: "mov &i0, &o0", In: []*ir.Reg{y}, Out: []*ir.Reg{x}, Move: true},
	}

	load := func(t *ir.Reg) *Instr { return &Instr{Text: "ld &o0, slot", Out: []*ir.Reg{t}} }
	store := func(t *ir.Reg) *Instr { return &Instr{Text: "st &i0, slot", In: []*ir.Reg{t}} }

	res := Rewrite(env, code, x, load, store)

	assert.Equal(t, "\tli t2, 1\n\tst t2, slot\n\tld t3, slot\n\tadd t1, t3, t3\n\tmov t1, t4\n\tst t4, slot\n", string(res.Append(nil, nil)))
	assert.True(t, res[4].Move)

	res.Regs(func(r *ir.Reg) {
		assert.NotSame(t, x, r)
	})

	assert.Equal(t, []*ir.Reg{x, x}, code[1].In, "original code untouched")
}

func TestInstrAppend(t *testing.T) {
	env := ir.NewEnv()
	r0 := env.NamedReg("%rax")
	a, d := env.NewReg(), env.NewReg()

	x := &Instr{Text: "addq &i0, &o0 # &i9 &x &", In: []*ir.Reg{a}, Out: []*ir.Reg{d}}

	assert.Equal(t, "addq %rax, t2 # &i9 &x &", string(x.Append(nil, ir.RegMap{a.ID: r0})))
}
