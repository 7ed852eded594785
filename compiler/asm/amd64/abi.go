package amd64

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/ir"
)

// NewFrame describes a function with the given number of parameters.
// The first six come in registers, the rest are on the stack above the return address.
// Nested functions receive the parent frame pointer in %r10.
func (t *Target) NewFrame(name string, params int, nested bool) *ir.Frame {
	f := &ir.Frame{
		Label: t.env.NamedLabel(name),
		FP:    t.rbp,
		Word:  Word,
	}

	for i := 0; i < params; i++ {
		if i < len(t.cat.Params) {
			f.Params = append(f.Params, ir.Loc{Reg: t.env.NewReg()})
			continue
		}

		f.Params = append(f.Params, ir.Loc{Off: 2*Word + int64(i-len(t.cat.Params))*Word})
	}

	if nested {
		f.Parent = &ir.Loc{Reg: t.env.NewReg()}
	}

	return f
}

func (t *Target) PlaceCallArgs(args []*ir.Reg, fp *ir.Reg) (code asm.Code, used []*ir.Reg) {
	n := len(args)
	if n > len(t.cat.Params) {
		n = len(t.cat.Params)
	}

	if (len(args)-n)%2 != 0 {
		code = append(code, &asm.Instr{Text: string(hfmt.Appendf(nil, "subq $%d, %s", Word, t.rsp.String()))})
	}

	for i := len(args) - 1; i >= n; i-- {
		code = append(code, &asm.Instr{Text: "pushq &i0", In: []*ir.Reg{args[i]}})
	}

	for i, a := range args[:n] {
		p := t.cat.Params[i]

		code = append(code, move(p, a))
		used = append(used, p)
	}

	if fp != nil {
		code = append(code, move(t.r10, fp))
		used = append(used, t.r10)
	}

	return code, used
}

func (t *Target) RemoveCallArgs(args []*ir.Reg) asm.Code {
	n := len(args) - len(t.cat.Params)
	if n <= 0 {
		return nil
	}

	// keep the stack 16 byte aligned at the call
	n += n % 2

	return asm.Code{{Text: string(hfmt.Appendf(nil, "addq $%d, %s", n*Word, t.rsp.String()))}}
}

// Prologue places the function label, moves parameters to their locations
// and saves callee-save registers into fresh registers.
func (t *Target) Prologue(f *ir.Frame) (code asm.Code, saved []*ir.Reg) {
	code = append(code, &asm.Instr{Text: f.Label.String() + ":", Label: f.Label})

	for i, p := range f.Params {
		if i >= len(t.cat.Params) {
			break
		}

		code = append(code, t.store(f, p, t.cat.Params[i]))
	}

	if f.Parent != nil {
		code = append(code, t.store(f, *f.Parent, t.r10))
	}

	for _, r := range t.cat.CalleeSave {
		s := t.env.NewReg()

		code = append(code, move(s, r))
		saved = append(saved, s)
	}

	return code, saved
}

// Epilogue restores callee-save registers and returns.
func (t *Target) Epilogue(f *ir.Frame, saved []*ir.Reg, result bool) (code asm.Code) {
	for i, r := range t.cat.CalleeSave {
		code = append(code, move(r, saved[i]))
	}

	ret := &asm.Instr{Text: "ret", In: append([]*ir.Reg{}, t.cat.CalleeSave...)}

	if result {
		ret.In = append(ret.In, t.rax)
	}

	return append(code, ret)
}

// FinishFunc sets up the frame once its size is known.
// Code must start with the function label and end with ret.
func (t *Target) FinishFunc(f *ir.Frame, code asm.Code) asm.Code {
	size := (f.Size + 15) &^ 15

	res := make(asm.Code, 0, len(code)+4)

	i := 0
	if len(code) != 0 && code[0].Label == f.Label {
		res = append(res, code[0])
		i = 1
	}

	res = append(res, &asm.Instr{Text: "pushq %rbp"}, &asm.Instr{Text: "movq %rsp, %rbp"})

	if size != 0 {
		res = append(res, &asm.Instr{Text: string(hfmt.Appendf(nil, "subq $%d, %s", size, t.rsp.String()))})
	}

	last := len(code)
	if last > i {
		last--
	}

	res = append(res, code[i:last]...)
	res = append(res, &asm.Instr{Text: "leave"})
	res = append(res, code[last:]...)

	return res
}

// ProgramEntry is emitted before all functions.
func (t *Target) ProgramEntry(main *ir.Label) asm.Code {
	return asm.Code{
		{Text: ".text"},
		{Text: ".globl " + main.String()},
	}
}

func (t *Target) DataSection() string { return ".section .rodata" }

// Spill moves r to a new frame slot.
func (t *Target) Spill(f *ir.Frame, code asm.Code, r *ir.Reg) asm.Code {
	slot := f.AllocSlot()

	return asm.Rewrite(t.env, code, r, func(tmp *ir.Reg) *asm.Instr {
		return t.load(f, slot, tmp)
	}, func(tmp *ir.Reg) *asm.Instr {
		return t.store(f, slot, tmp)
	})
}

func (t *Target) load(f *ir.Frame, l ir.Loc, dst *ir.Reg) *asm.Instr {
	if l.InReg() {
		return move(dst, l.Reg)
	}

	return &asm.Instr{
		Text: string(hfmt.Appendf(nil, "movq %d(&i0), &o0", l.Off)),
		In:   []*ir.Reg{f.FP},
		Out:  []*ir.Reg{dst},
	}
}

func (t *Target) store(f *ir.Frame, l ir.Loc, src *ir.Reg) *asm.Instr {
	if l.InReg() {
		return move(l.Reg, src)
	}

	return &asm.Instr{
		Text: string(hfmt.Appendf(nil, "movq &i0, %d(&i1)", l.Off)),
		In:   []*ir.Reg{src, f.FP},
	}
}

func move(dst, src *ir.Reg) *asm.Instr {
	return &asm.Instr{
		Text: "movq &i0, &o0",
		In:   []*ir.Reg{src},
		Out:  []*ir.Reg{dst},
		Move: true,
	}
}
