package ir

type (
	// Loc is a storage location: a register if Reg is set,
	// otherwise a word at Off relative to the frame pointer.
	Loc struct {
		Reg *Reg
		Off int64
	}

	Frame struct {
		Label *Label

		Params []Loc
		Parent *Loc // parent frame pointer, if the function has one

		FP *Reg

		Word int64
		Size int64 // bytes allocated below FP
	}

	Func struct {
		Frame *Frame

		Body   Stmt
		Result Expr // nil for procedures
	}

	Program struct {
		Env   *Env
		Funcs []*Func

		Entry *Func
	}
)

// AllocSlot reserves a new word in the frame.
func (f *Frame) AllocSlot() Loc {
	w := f.Word
	if w == 0 {
		w = 8
	}

	f.Size += w

	return Loc{Off: -f.Size}
}

// Expr returns an expression reading the location.
func (l Loc) Expr(fp *Reg) Expr {
	if l.Reg != nil {
		return &Temp{Reg: l.Reg}
	}

	return &Mem{Addr: &BinOp{Op: Plus, L: &Temp{Reg: fp}, R: &Int{Value: l.Off}}}
}

func (l Loc) InReg() bool { return l.Reg != nil }
