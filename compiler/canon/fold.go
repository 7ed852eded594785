package canon

import "github.com/slowlang/munch/compiler/ir"

// fold simplifies a binary operation over canonical operands.
func (c *Canonicalizer) fold(x *ir.BinOp) ir.Expr {
	li, lok := x.L.(*ir.Int)
	ri, rok := x.R.(*ir.Int)

	if x.Op == ir.Div && rok && ri.Value == 0 {
		c.warnings = append(c.warnings, Warning{Pos: x.Pos, Msg: "division by zero"})

		return x
	}

	if lok && rok {
		if v, ok := x.Op.Eval(li.Value, ri.Value); ok {
			return &ir.Int{Value: v}
		}

		return x
	}

	switch x.Op {
	case ir.Plus:
		if lok && li.Value == 0 {
			return x.R
		}

		if rok && ri.Value == 0 {
			return x.L
		}
	case ir.Minus:
		if rok && ri.Value == 0 {
			return x.L
		}
	case ir.Mul:
		if lok && li.Value == 1 {
			return x.R
		}

		if rok && ri.Value == 1 {
			return x.L
		}
	case ir.Div:
		if rok && ri.Value == 1 {
			return x.L
		}
	}

	if x.Op.Commutative() && simple(x.L) && !simple(x.R) {
		if _, ok := x.R.(*ir.BinOp); ok {
			return &ir.BinOp{Op: x.Op, L: x.R, R: x.L, Pos: x.Pos}
		}
	}

	return x
}

func simple(e ir.Expr) bool {
	switch e.(type) {
	case *ir.Int, *ir.Addr, *ir.Temp, *ir.Mem:
		return true
	}

	return false
}
