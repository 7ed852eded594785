package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	env := NewEnv()

	a := env.NewReg()
	l := env.NamedLabel("exit")

	x := &Seq{List: []Stmt{
		&Move{Dst: &Temp{Reg: a}, Src: &BinOp{Op: Plus, L: &Int{Value: 2}, R: &Mem{Addr: &Addr{Label: l}}}},
		&CJump{Cond: Lt, L: &Temp{Reg: a}, R: &Int{Value: 10}, True: l, False: env.NewLabel()},
	}}

	assert.Equal(t, "(seq (move t0 (+ 2 (mem exit))) (cjump < t0 10 exit .L1))", Format(x))
}

func TestCondInverse(t *testing.T) {
	for c := Cond(0); c < numConds; c++ {
		assert.Equal(t, c, c.Inverse().Inverse(), "cond %v", c)

		for _, v := range [][2]int64{{1, 2}, {2, 1}, {3, 3}, {-1, 1}} {
			assert.NotEqual(t, c.Eval(v[0], v[1]), c.Inverse().Eval(v[0], v[1]), "cond %v on %v", c, v)
		}
	}
}

func TestOpEval(t *testing.T) {
	r, ok := Div.Eval(7, 0)
	assert.False(t, ok)
	assert.Zero(t, r)

	r, ok = Div.Eval(-7, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(-3), r)

	r, ok = Shr.Eval(-1, 60)
	assert.True(t, ok)
	assert.Equal(t, int64(15), r)

	r, ok = Sar.Eval(-16, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(-4), r)

	_, ok = Shl.Eval(1, 64)
	assert.False(t, ok)
}

func TestEnv(t *testing.T) {
	env := NewEnv()

	r0, r1 := env.NewReg(), env.NamedReg("x")
	assert.NotEqual(t, r0.ID, r1.ID)
	assert.Equal(t, "t0", r0.String())
	assert.Equal(t, "x", r1.String())

	l := env.AddBlob([]byte("hi"))
	assert.Len(t, env.Blobs, 1)
	assert.Same(t, l, env.Blobs[0].Label)

	m := RegMap{}
	m.Map(r0, r1)
	assert.Same(t, r1, m.Get(r0))
	assert.Nil(t, m.Get(r1))
}

func TestFrameSlots(t *testing.T) {
	env := NewEnv()
	f := &Frame{FP: env.NamedReg("fp")}

	s0 := f.AllocSlot()
	s1 := f.AllocSlot()

	assert.Equal(t, int64(-8), s0.Off)
	assert.Equal(t, int64(-16), s1.Off)
	assert.Equal(t, int64(16), f.Size)
	assert.Equal(t, "(mem (+ fp -16))", Format(s1.Expr(f.FP)))
}
