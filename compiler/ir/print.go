package ir

import (
	"strconv"
)

// Format returns s-expression text of an Expr or Stmt.
func Format(x any) string {
	return string(AppendNode(nil, x))
}

func AppendNode(b []byte, x any) []byte {
	switch x := x.(type) {
	case nil:
		return append(b, "nil"...)
	case *Int:
		return strconv.AppendInt(b, x.Value, 10)
	case *Addr:
		return append(b, x.Label.String()...)
	case *Temp:
		return append(b, x.Reg.String()...)
	case *BinOp:
		b = append(b, '(')
		b = append(b, x.Op.String()...)
		b = append(b, ' ')
		b = AppendNode(b, x.L)
		b = append(b, ' ')
		b = AppendNode(b, x.R)
		return append(b, ')')
	case *Mem:
		b = append(b, "(mem "...)
		b = AppendNode(b, x.Addr)
		return append(b, ')')
	case *Call:
		b = append(b, "(call "...)
		b = AppendNode(b, x.Func)

		for _, a := range x.Args {
			b = append(b, ' ')
			b = AppendNode(b, a)
		}

		if x.FP != nil {
			b = append(b, " :fp "...)
			b = AppendNode(b, x.FP)
		}

		return append(b, ')')
	case *ESeq:
		b = append(b, "(eseq "...)
		b = AppendNode(b, x.Stmt)
		b = append(b, ' ')
		b = AppendNode(b, x.Value)
		return append(b, ')')
	case *Move:
		b = append(b, "(move "...)
		b = AppendNode(b, x.Dst)
		b = append(b, ' ')
		b = AppendNode(b, x.Src)
		return append(b, ')')
	case *ExpStmt:
		b = append(b, "(exp "...)
		b = AppendNode(b, x.Expr)
		return append(b, ')')
	case *Jump:
		b = append(b, "(jump "...)
		b = AppendNode(b, x.Dst)
		return append(b, ')')
	case *CJump:
		b = append(b, "(cjump "...)
		b = append(b, x.Cond.String()...)
		b = append(b, ' ')
		b = AppendNode(b, x.L)
		b = append(b, ' ')
		b = AppendNode(b, x.R)
		b = append(b, ' ')
		b = append(b, x.True.String()...)
		b = append(b, ' ')
		b = append(b, x.False.String()...)
		return append(b, ')')
	case *Seq:
		b = append(b, "(seq"...)

		for _, s := range x.List {
			b = append(b, ' ')
			b = AppendNode(b, s)
		}

		return append(b, ')')
	case *Place:
		b = append(b, "(label "...)
		b = append(b, x.Label.String()...)
		return append(b, ')')
	default:
		panic(x)
	}
}

func (x *Int) String() string     { return Format(x) }
func (x *Addr) String() string    { return Format(x) }
func (x *Temp) String() string    { return Format(x) }
func (x *BinOp) String() string   { return Format(x) }
func (x *Mem) String() string     { return Format(x) }
func (x *Call) String() string    { return Format(x) }
func (x *ESeq) String() string    { return Format(x) }
func (x *Move) String() string    { return Format(x) }
func (x *ExpStmt) String() string { return Format(x) }
func (x *Jump) String() string    { return Format(x) }
func (x *CJump) String() string   { return Format(x) }
func (x *Seq) String() string     { return Format(x) }
func (x *Place) String() string   { return Format(x) }
