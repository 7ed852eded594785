package asm

import (
	"github.com/slowlang/munch/compiler/ir"
)

// Rewrite replaces every reference to r by a fresh short lived register.
// load is inserted before each instruction reading r
// and store after each instruction writing it.
func Rewrite(env *ir.Env, code Code, r *ir.Reg, load, store func(t *ir.Reg) *Instr) Code {
	res := make(Code, 0, len(code)+8)

	for _, x := range code {
		uses, defs := has(x.In, r), has(x.Out, r)

		if !uses && !defs {
			res = append(res, x)
			continue
		}

		t := env.NewReg()

		cp := *x
		cp.In = replace(x.In, r, t)
		cp.Out = replace(x.Out, r, t)

		if uses {
			res = append(res, load(t))
		}

		res = append(res, &cp)

		if defs {
			res = append(res, store(t))
		}
	}

	return res
}

func replace(list []*ir.Reg, r, t *ir.Reg) []*ir.Reg {
	if !has(list, r) {
		return list
	}

	cp := make([]*ir.Reg, len(list))

	for i, x := range list {
		if x == r {
			x = t
		}

		cp[i] = x
	}

	return cp
}
