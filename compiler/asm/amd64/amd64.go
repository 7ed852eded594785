package amd64

import (
	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Target is the x86-64 System V code generator.
	Target struct {
		env *ir.Env
		cat *asm.Catalog

		rax, rcx, rsp, rbp, r10 *ir.Reg
	}
)

var (
	regNames = []string{
		"%rax", "%rdx", "%rcx", "%rbx", "%rsi", "%rdi", "%r8", "%r9",
		"%r10", "%r11", "%r12", "%r13", "%r14", "%r15",
	}

	paramNames      = []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}
	callerSaveNames = []string{"%rax", "%rcx", "%rdx", "%rsi", "%rdi", "%r8", "%r9", "%r10", "%r11"}
	calleeSaveNames = []string{"%rbx", "%r12", "%r13", "%r14", "%r15"}

	arith = []struct {
		op ir.Op
		mn string
	}{
		{ir.Plus, "addq"},
		{ir.Minus, "subq"},
		{ir.Mul, "imulq"},
		{ir.And, "andq"},
		{ir.Or, "orq"},
		{ir.Xor, "xorq"},
	}

	shifts = []struct {
		op ir.Op
		mn string
	}{
		{ir.Shl, "salq"},
		{ir.Shr, "shrq"},
		{ir.Sar, "sarq"},
	}

	jumps = [ir.NumConds]string{
		ir.Eq:  "je",
		ir.Ne:  "jne",
		ir.Lt:  "jl",
		ir.Le:  "jle",
		ir.Gt:  "jg",
		ir.Ge:  "jge",
		ir.Ult: "jb",
		ir.Ule: "jbe",
		ir.Ugt: "ja",
		ir.Uge: "jae",
	}
)

// Word is the machine word size in bytes.
const Word = 8

// New creates machine registers in env and builds the template catalog.
func New(env *ir.Env) *Target {
	var machine []*ir.Reg

	for _, n := range regNames {
		machine = append(machine, env.NamedReg(n))
	}

	t := &Target{env: env}

	t.rbp = env.NamedReg("%rbp")
	t.rsp = env.NamedReg("%rsp")

	c := asm.NewCatalog("amd64", append(machine, t.rbp, t.rsp)...)

	c.Regs = machine
	c.Params = regs(c, paramNames)
	c.CallerSave = regs(c, callerSaveNames)
	c.CalleeSave = regs(c, calleeSaveNames)
	c.Result = c.Reg("%rax")

	t.rax = c.Result
	t.rcx = c.Reg("%rcx")
	t.r10 = c.Reg("%r10")
	t.cat = c

	c.Imm = imm32

	templates(c)

	return t
}

func (t *Target) Name() string { return "amd64" }

func (t *Target) Catalog() *asm.Catalog { return t.cat }

// FP is the frame pointer register. It's never allocated.
func (t *Target) FP() *ir.Reg { return t.rbp }

// imm32 reports whether v fits a sign-extended 32 bit immediate or displacement.
func imm32(v int64) bool { return v == int64(int32(v)) }

func regs(c *asm.Catalog, names []string) (r []*ir.Reg) {
	for _, n := range names {
		r = append(r, c.Reg(n))
	}

	return r
}

func templates(c *asm.Catalog) {
	var (
		reg = &ir.Temp{}
		num = &ir.Int{}
		lab = &ir.Addr{}

		mem    = &ir.Mem{Addr: reg}
		memOff = &ir.Mem{Addr: &ir.BinOp{Op: ir.Plus, L: reg, R: num}}
		memLab = &ir.Mem{Addr: lab}
	)

	s := func(text string) asm.Skel { return asm.Skel{Text: text} }
	mv := func(text string) asm.Skel { return asm.Skel{Text: text, Move: true} }
	br := func(text string) asm.Skel { return asm.Skel{Text: text, Branch: true} }

	call := asm.Skel{Call: true, Defs: callerSaveNames}

	// values

	c.MustAdd(num, s("movq ${0}, {out}"))
	c.MustAddWide(num, s("movabsq ${0}, {out}"))
	c.MustAdd(lab, s("leaq {0}(%rip), {out}"))
	c.MustAdd(reg, mv("movq {0}, {out}"))

	c.MustAdd(mem, s("movq ({0}), {out}"))
	c.MustAdd(memOff, s("movq {1}({0}), {out}"))
	c.MustAdd(memLab, s("movq {0}(%rip), {out}"))
	c.MustAdd(&ir.Mem{Addr: num}, s("movq {0}, {out}"))

	c.MustAdd(&ir.BinOp{Op: ir.Plus, L: reg, R: num}, s("leaq {1}({0}), {out}"))

	for _, a := range arith {
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: num}, mv("movq {0}, {out}"), s(a.mn+" ${1}, {+out}"))
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: reg}, mv("movq {0}, {out}"), s(a.mn+" {1}, {+out}"))
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: mem}, mv("movq {0}, {out}"), s(a.mn+" ({1}), {+out}"))
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: memOff}, mv("movq {0}, {out}"), s(a.mn+" {2}({1}), {+out}"))
	}

	for _, a := range shifts {
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: num}, mv("movq {0}, {out}"), s(a.mn+" ${1}, {+out}"))
		c.MustAdd(&ir.BinOp{Op: a.op, L: reg, R: reg},
			mv("movq {1}, {out:%rcx}"),
			mv("movq {0}, {out}"),
			asm.Skel{Text: a.mn + " %cl, {+out}", Uses: []string{"%rcx"}},
		)
	}

	c.MustAdd(&ir.BinOp{Op: ir.Div, L: reg, R: reg},
		mv("movq {0}, {out:%rax}"),
		asm.Skel{Text: "cqto", Uses: []string{"%rax"}, Defs: []string{"%rdx"}},
		asm.Skel{Text: "idivq {1}", Uses: []string{"%rax", "%rdx"}, Defs: []string{"%rax", "%rdx"}},
		mv("movq {in:%rax}, {out}"),
	)

	call.Text = "call {0}"
	c.MustAdd(&ir.Call{Func: lab}, call, mv("movq {in:%rax}, {out}"))

	call.Text = "call *{0}"
	c.MustAdd(&ir.Call{Func: reg}, call, mv("movq {in:%rax}, {out}"))

	// statements

	c.MustAdd(&ir.Move{Dst: reg, Src: num}, s("movq ${1}, {=0}"))
	c.MustAddWide(&ir.Move{Dst: reg, Src: num}, s("movabsq ${1}, {=0}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: lab}, s("leaq {1}(%rip), {=0}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: reg}, mv("movq {1}, {=0}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: mem}, s("movq ({1}), {=0}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: memOff}, s("movq {2}({1}), {=0}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: memLab}, s("movq {1}(%rip), {=0}"))
	c.MustAdd(&ir.Move{Dst: reg, Src: &ir.BinOp{Op: ir.Plus, L: reg, R: num}}, s("leaq {2}({1}), {=0}"))

	c.MustAdd(&ir.Move{Dst: mem, Src: reg}, s("movq {1}, ({0})"))
	c.MustAdd(&ir.Move{Dst: mem, Src: num}, s("movq ${1}, ({0})"))
	c.MustAdd(&ir.Move{Dst: memOff, Src: reg}, s("movq {2}, {1}({0})"))
	c.MustAdd(&ir.Move{Dst: memOff, Src: num}, s("movq ${2}, {1}({0})"))
	c.MustAdd(&ir.Move{Dst: memLab, Src: reg}, s("movq {1}, {0}(%rip)"))

	c.MustAdd(&ir.Jump{Dst: lab}, br("jmp {0}"))
	c.MustAdd(&ir.Jump{Dst: reg}, br("jmp *{0}"))

	for cond, j := range jumps {
		cond := ir.Cond(cond)

		c.MustAdd(&ir.CJump{Cond: cond, L: reg, R: num}, s("cmpq ${1}, {0}"), br(j+" {true}"))
		c.MustAdd(&ir.CJump{Cond: cond, L: reg, R: reg}, s("cmpq {1}, {0}"), br(j+" {true}"))
		c.MustAdd(&ir.CJump{Cond: cond, L: reg, R: mem}, s("cmpq ({1}), {0}"), br(j+" {true}"))
		c.MustAdd(&ir.CJump{Cond: cond, L: reg, R: memOff}, s("cmpq {2}({1}), {0}"), br(j+" {true}"))
	}

	c.MustAdd(&ir.Place{}, s("{label}:"))
}
