package arm64

import (
	"strconv"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Target is the AArch64 code generator using the AAPCS64 calling convention.
	Target struct {
		env *ir.Env
		cat *asm.Catalog

		x0, x9 *ir.Reg
		fp, sp *ir.Reg
	}
)

var (
	arith = []struct {
		op ir.Op
		mn string
	}{
		{ir.Plus, "ADD"},
		{ir.Minus, "SUB"},
		{ir.Mul, "MUL"},
		{ir.Div, "SDIV"},
		{ir.And, "AND"},
		{ir.Or, "ORR"},
		{ir.Xor, "EOR"},
		{ir.Shl, "LSL"},
		{ir.Shr, "LSR"},
		{ir.Sar, "ASR"},
	}

	conds = [ir.NumConds]string{
		ir.Eq:  "EQ",
		ir.Ne:  "NE",
		ir.Lt:  "LT",
		ir.Le:  "LE",
		ir.Gt:  "GT",
		ir.Ge:  "GE",
		ir.Ult: "LO",
		ir.Ule: "LS",
		ir.Ugt: "HI",
		ir.Uge: "HS",
	}
)

const (
	Word = 8

	// stack arguments are pushed one per 16 bytes to keep SP aligned
	stackSlot = 16
)

// New creates machine registers in env and builds the template catalog.
func New(env *ir.Env) *Target {
	var machine, callerSave, calleeSave []*ir.Reg

	for i := 0; i <= 28; i++ {
		if i >= 16 && i <= 18 {
			continue
		}

		r := env.NamedReg("X" + strconv.Itoa(i))

		machine = append(machine, r)

		if i < 16 {
			callerSave = append(callerSave, r)
		} else {
			calleeSave = append(calleeSave, r)
		}
	}

	t := &Target{env: env}

	t.fp = env.NamedReg("FP")
	t.sp = env.NamedReg("SP")

	c := asm.NewCatalog("arm64", append(machine, t.fp, t.sp)...)

	c.Regs = machine
	c.Params = machine[:8]
	c.CallerSave = callerSave
	c.CalleeSave = calleeSave
	c.Result = machine[0]

	t.x0 = machine[0]
	t.x9 = machine[9]
	t.cat = c

	templates(c, callerSave)

	return t
}

func (t *Target) Name() string { return "arm64" }

func (t *Target) Catalog() *asm.Catalog { return t.cat }

func (t *Target) FP() *ir.Reg { return t.fp }

func templates(c *asm.Catalog, callerSave []*ir.Reg) {
	var (
		reg = &ir.Temp{}
		num = &ir.Int{}
		lab = &ir.Addr{}

		mem    = &ir.Mem{Addr: reg}
		memOff = &ir.Mem{Addr: &ir.BinOp{Op: ir.Plus, L: reg, R: num}}
	)

	s := func(text string) asm.Skel { return asm.Skel{Text: text} }
	mv := func(text string) asm.Skel { return asm.Skel{Text: text, Move: true} }
	br := func(text string) asm.Skel { return asm.Skel{Text: text, Branch: true} }

	call := asm.Skel{Call: true}

	for _, r := range callerSave {
		call.Defs = append(call.Defs, r.Name)
	}

	// values

	c.MustAdd(num, s("LDR {out}, ={0}"))
	c.MustAdd(lab, s("ADR {out}, {0}"))
	c.MustAdd(reg, mv("MOV {out}, {0}"))

	c.MustAdd(mem, s("LDR {out}, [{0}]"))
	c.MustAdd(memOff, s("LDR {out}, [{0}, #{1}]"))
	c.MustAdd(&ir.Mem{Addr: lab}, s("LDR {out}, {0}"))

	for _, a := range arith {
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: reg}, s(a.mn+" {out}, {0}, {1}"))
	}

	c.MustAdd(&ir.BinOp{Op: ir.Plus, L: reg, R: num}, s("ADD {out}, {0}, #{1}"))
	c.MustAdd(&ir.BinOp{Op: ir.Minus, L: reg, R: num}, s("SUB {out}, {0}, #{1}"))
	c.MustAdd(&ir.BinOp{Op: ir.Shl, L: reg, R: num}, s("LSL {out}, {0}, #{1}"))
	c.MustAdd(&ir.BinOp{Op: ir.Shr, L: reg, R: num}, s("LSR {out}, {0}, #{1}"))
	c.MustAdd(&ir.BinOp{Op: ir.Sar, L: reg, R: num}, s("ASR {out}, {0}, #{1}"))

	call.Text = "BL {0}"
	c.MustAdd(&ir.Call{Func: lab}, call, mv("MOV {out}, {in:X0}"))

	call.Text = "BLR {0}"
	c.MustAdd(&ir.Call{Func: reg}, call, mv("MOV {out}, {in:X0}"))

	// statements

	c.MustAdd(&ir.Move{Dst: reg, Src: num}, s("LDR {=0}, ={1}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: lab}, s("ADR {=0}, {1}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: reg}, mv("MOV {=0}, {1}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: mem}, s("LDR {=0}, [{1}]"))
	c.MustAdd(&ir.Move{Dst: reg, Src: memOff}, s("LDR {=0}, [{1}, #{2}]"))
	c.MustAdd(&ir.Move{Dst: reg, Src: &ir.BinOp{Op: ir.Plus, L: reg, R: num}}, s("ADD {=0}, {1}, #{2}"))

	c.MustAdd(&ir.Move{Dst: mem, Src: reg}, s("STR {1}, [{0}]"))
	c.MustAdd(&ir.Move{Dst: memOff, Src: reg}, s("STR {2}, [{0}, #{1}]"))

	c.MustAdd(&ir.Jump{Dst: lab}, br("B {0}"))
	c.MustAdd(&ir.Jump{Dst: reg}, br("BR {0}"))

	for cond, cc := range conds {
		cond := ir.Cond(cond)

		c.MustAdd(&ir.CJump{Cond: cond, L: reg, R: num}, s("CMP {0}, #{1}"), br("B."+cc+" {true}"))
		c.MustAdd(&ir.CJump{Cond: cond, L: reg, R: reg}, s("CMP {0}, {1}"), br("B."+cc+" {true}"))
	}

	c.MustAdd(&ir.Place{}, s("{label}:"))
}
