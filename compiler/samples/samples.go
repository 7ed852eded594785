// Package samples builds small IR programs used to exercise the backend.
package samples

import (
	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Framer lays out target frames.
	Framer interface {
		NewFrame(name string, params int, nested bool) *ir.Frame
	}

	Sample struct {
		Name  string
		Doc   string
		Build func(env *ir.Env, fr Framer) *ir.Program
	}
)

var All = []Sample{
	{Name: "fib", Doc: "recursive fibonacci of 10", Build: Fib},
	{Name: "loop", Doc: "sum of 1..100 in a loop", Build: Loop},
	{Name: "nested", Doc: "nested function reading the parent frame through the static link", Build: Nested},
	{Name: "args", Doc: "call with ten arguments, some passed on the stack", Build: Args},
	{Name: "divzero", Doc: "division by constant zero, reported and kept", Build: DivZero},
	{Name: "pressure", Doc: "twelve values live at once", Build: Pressure},
	{Name: "blob", Doc: "load from static data", Build: Blob},
	{Name: "indirect", Doc: "call through a register", Build: Indirect},
}

// Get finds a sample by name.
func Get(name string) (Sample, bool) {
	for _, s := range All {
		if s.Name == name {
			return s, true
		}
	}

	return Sample{}, false
}

func Fib(env *ir.Env, fr Framer) *ir.Program {
	f := fr.NewFrame("fib", 1, false)
	n := param(f, 0)

	res := env.NewReg()
	small, big, end := env.NewLabel(), env.NewLabel(), env.NewLabel()

	call := func(d int64) ir.Expr {
		return calls(f, nil, bin(ir.Minus, n, num(d)))
	}

	fn := &ir.Func{
		Frame: f,
		Body: ir.NewSeq(
			&ir.CJump{Cond: ir.Lt, L: n, R: num(2), True: small, False: big},
			place(small),
			mov(tmp(res), n),
			ir.NewJump(end),
			place(big),
			mov(tmp(res), bin(ir.Plus, call(1), call(2))),
			place(end),
		),
		Result: tmp(res),
	}

	return program(env, fr, calls(f, nil, num(10)), fn)
}

func Loop(env *ir.Env, fr Framer) *ir.Program {
	f := fr.NewFrame("sum", 1, false)
	n := param(f, 0)

	i, s := tmp(env.NewReg()), tmp(env.NewReg())
	test, body, done := env.NewLabel(), env.NewLabel(), env.NewLabel()

	fn := &ir.Func{
		Frame: f,
		Body: ir.NewSeq(
			mov(s, num(0)),
			mov(i, num(1)),
			place(test),
			&ir.CJump{Cond: ir.Gt, L: i, R: n, True: done, False: body},
			place(body),
			mov(s, bin(ir.Plus, s, i)),
			mov(i, bin(ir.Plus, i, num(1))),
			ir.NewJump(test),
			place(done),
		),
		Result: s,
	}

	return program(env, fr, calls(f, nil, num(100)), fn)
}

// Nested computes outer(5) where outer(a) stores a*3 in its frame
// and calls inner(4) which adds its argument to that slot.
func Nested(env *ir.Env, fr Framer) *ir.Program {
	outer := fr.NewFrame("outer", 1, false)
	x := outer.AllocSlot()

	inner := fr.NewFrame("inner", 1, true)
	link := inner.Parent.Expr(inner.FP)

	innerFn := &ir.Func{
		Frame:  inner,
		Result: bin(ir.Plus, mem(bin(ir.Plus, link, num(x.Off))), param(inner, 0)),
	}

	outerFn := &ir.Func{
		Frame:  outer,
		Body:   mov(x.Expr(outer.FP), bin(ir.Mul, param(outer, 0), num(3))),
		Result: calls(inner, tmp(outer.FP), num(4)),
	}

	return program(env, fr, calls(outer, nil, num(5)), outerFn, innerFn)
}

func Args(env *ir.Env, fr Framer) *ir.Program {
	const n = 10

	f := fr.NewFrame("weighted", n, false)

	var sum ir.Expr = param(f, 0)

	for i := 1; i < n; i++ {
		sum = bin(ir.Plus, sum, bin(ir.Mul, param(f, i), num(int64(i+1))))
	}

	var args []ir.Expr

	for i := 0; i < n; i++ {
		args = append(args, num(int64(i)))
	}

	fn := &ir.Func{Frame: f, Result: sum}

	return program(env, fr, calls(f, nil, args...), fn)
}

func DivZero(env *ir.Env, fr Framer) *ir.Program {
	return program(env, fr, &ir.BinOp{Op: ir.Div, L: num(7), R: num(0), Pos: 42})
}

func Pressure(env *ir.Env, fr Framer) *ir.Program {
	const n = 12

	main := fr.NewFrame("main", 0, false)

	var vs []ir.Expr
	var body []ir.Stmt

	for i := 0; i < n; i++ {
		v := tmp(env.NewReg())

		vs = append(vs, v)
		body = append(body, mov(v, num(int64(i+1))))
	}

	var sum ir.Expr = num(0)

	for i := 0; i < n; i++ {
		sum = bin(ir.Plus, sum, bin(ir.Mul, vs[i], vs[n-1-i]))
	}

	return &ir.Program{
		Env:   env,
		Entry: &ir.Func{Frame: main, Body: ir.NewSeq(body...), Result: sum},
	}
}

func Blob(env *ir.Env, fr Framer) *ir.Program {
	l := env.AddBlob([]byte("hello, world\n\x00"))

	return program(env, fr, bin(ir.And, mem(&ir.Addr{Label: l}), num(0xff)))
}

func Indirect(env *ir.Env, fr Framer) *ir.Program {
	f := fr.NewFrame("square", 1, false)
	x := param(f, 0)

	fn := &ir.Func{Frame: f, Result: bin(ir.Mul, x, x)}

	main := fr.NewFrame("main", 0, false)
	p := tmp(env.NewReg())

	entry := &ir.Func{
		Frame:  main,
		Body:   mov(p, &ir.Addr{Label: f.Label}),
		Result: &ir.Call{Func: p, Args: []ir.Expr{num(9)}},
	}

	return &ir.Program{Env: env, Funcs: []*ir.Func{fn}, Entry: entry}
}

func program(env *ir.Env, fr Framer, result ir.Expr, funcs ...*ir.Func) *ir.Program {
	main := fr.NewFrame("main", 0, false)

	return &ir.Program{
		Env:   env,
		Funcs: funcs,
		Entry: &ir.Func{Frame: main, Result: result},
	}
}

func param(f *ir.Frame, i int) ir.Expr { return f.Params[i].Expr(f.FP) }

func calls(f *ir.Frame, link ir.Expr, args ...ir.Expr) *ir.Call {
	return &ir.Call{Func: &ir.Addr{Label: f.Label}, Args: args, FP: link}
}

func num(v int64) *ir.Int                  { return &ir.Int{Value: v} }
func tmp(r *ir.Reg) *ir.Temp               { return &ir.Temp{Reg: r} }
func mem(a ir.Expr) *ir.Mem                { return &ir.Mem{Addr: a} }
func mov(d, s ir.Expr) *ir.Move            { return &ir.Move{Dst: d, Src: s} }
func place(l *ir.Label) *ir.Place          { return &ir.Place{Label: l} }
func bin(op ir.Op, l, r ir.Expr) *ir.BinOp { return &ir.BinOp{Op: op, L: l, R: r} }
