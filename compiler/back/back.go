package back

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/munch/compiler/asm"
	"github.com/slowlang/munch/compiler/canon"
	"github.com/slowlang/munch/compiler/ir"
	"github.com/slowlang/munch/compiler/regalloc"
)

type (
	// Target is a machine the backend generates code for.
	Target interface {
		Name() string
		Catalog() *asm.Catalog

		// FP is the register frame pointer values are mapped to.
		FP() *ir.Reg

		NewFrame(name string, params int, nested bool) *ir.Frame

		asm.ABI
		regalloc.Spiller

		Prologue(f *ir.Frame) (code asm.Code, saved []*ir.Reg)
		Epilogue(f *ir.Frame, saved []*ir.Reg, result bool) asm.Code
		FinishFunc(f *ir.Frame, code asm.Code) asm.Code

		ProgramEntry(main *ir.Label) asm.Code
		DataSection() string
	}

	Config struct {
		K         int
		MaxRounds int
	}

	Compiler struct {
		env *ir.Env
		t   Target
		cfg Config
	}

	Func struct {
		Frame *ir.Frame
		Code  asm.Code
		Map   ir.RegMap

		Alloc    *regalloc.Result
		Warnings []canon.Warning
	}

	Program struct {
		Target string

		Entry asm.Code
		Funcs []*Func
		Data  asm.Code
	}
)

const blobLine = 16

// New makes a compiler for programs built in env.
// The target must have been created in the same env.
func New(env *ir.Env, t Target, cfg Config) *Compiler {
	return &Compiler{
		env: env,
		t:   t,
		cfg: cfg,
	}
}

func (c *Compiler) Target() Target { return c.t }

// Program compiles the entry function, every other function and the static data.
// An entry function without a result exits with zero.
func (c *Compiler) Program(ctx context.Context, p *ir.Program) (res *Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "program", "target", c.t.Name(), "funcs", len(p.Funcs))
	defer tr.Finish("err", &err)

	if p.Env != nil && p.Env != c.env {
		return nil, errors.New("program built in another env")
	}

	if p.Entry == nil {
		return nil, errors.New("no entry function")
	}

	entry := p.Entry

	if entry.Result == nil {
		cp := *entry
		cp.Result = &ir.Int{}
		entry = &cp
	}

	res = &Program{
		Target: c.t.Name(),
		Entry:  c.t.ProgramEntry(entry.Frame.Label),
	}

	f, err := c.Func(ctx, entry)
	if err != nil {
		return nil, errors.Wrap(err, "entry %v", entry.Frame.Label)
	}

	res.Funcs = append(res.Funcs, f)

	for _, fn := range p.Funcs {
		if fn == p.Entry {
			continue
		}

		f, err := c.Func(ctx, fn)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fn.Frame.Label)
		}

		res.Funcs = append(res.Funcs, f)
	}

	res.Data = c.data()

	return res, nil
}

// Func compiles one function: canonicalization, trace ordering,
// instruction selection, register allocation and frame setup.
func (c *Compiler) Func(ctx context.Context, fn *ir.Func) (res *Func, err error) {
	f := fn.Frame

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "func", "name", f.Label, "params", len(f.Params))
	defer tr.Finish("err", &err)

	cat := c.t.Catalog()
	cn := canon.New(c.env)

	body := fn.Body
	if body == nil {
		body = &ir.Seq{}
	}

	var result *ir.Reg

	if fn.Result != nil {
		result = c.env.NewReg()
		body = ir.NewSeq(body, &ir.Move{Dst: &ir.Temp{Reg: result}, Src: fn.Result})
	}

	body, err = cn.Stmt(body)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalize")
	}

	seq, err := cn.ArrangeJumps(body)
	if err != nil {
		return nil, errors.Wrap(err, "arrange jumps")
	}

	for _, w := range cn.Warnings() {
		tr.Printw("warning", "pos", w.Pos, "msg", w.Msg)
	}

	if tr.If("dump_canon") {
		tr.Printw("canonical", "body", ir.Format(seq))
	}

	s := asm.NewSelector(c.env, cat, c.t)

	pro, saved := c.t.Prologue(f)
	s.Emit(pro...)

	if err = s.Stmt(seq); err != nil {
		return nil, errors.Wrap(err, "select")
	}

	if result != nil {
		err = s.Stmt(&ir.Move{Dst: &ir.Temp{Reg: cat.Result}, Src: &ir.Temp{Reg: result}})
		if err != nil {
			return nil, errors.Wrap(err, "select result")
		}
	}

	s.Emit(c.t.Epilogue(f, saved, result != nil)...)

	code := s.Take()

	if tr.If("dump_code") {
		tr.Printw("selected", "instrs", len(code), "code", string(code.Append(nil, nil)))
	}

	alloc, err := regalloc.Allocate(ctx, code, f, cat, c.t, regalloc.Config{
		K:         c.cfg.K,
		MaxRounds: c.cfg.MaxRounds,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate")
	}

	m := alloc.Map

	if f.FP != c.t.FP() {
		m.Map(f.FP, c.t.FP())
	}

	res = &Func{
		Frame:    f,
		Code:     c.t.FinishFunc(f, alloc.Code),
		Map:      m,
		Alloc:    alloc,
		Warnings: cn.Warnings(),
	}

	tr.Printw("compiled", "instrs", len(res.Code), "frame", f.Size, "rounds", alloc.Rounds, "spilled", len(alloc.Spilled))

	return res, nil
}

func (c *Compiler) data() (code asm.Code) {
	if len(c.env.Blobs) == 0 {
		return nil
	}

	code = append(code, &asm.Instr{Text: c.t.DataSection()})

	for _, b := range c.env.Blobs {
		code = append(code, &asm.Instr{Text: b.Label.String() + ":", Label: b.Label})

		for i := 0; i < len(b.Data); i += blobLine {
			end := i + blobLine
			if end > len(b.Data) {
				end = len(b.Data)
			}

			text := []byte(".byte ")

			for j, x := range b.Data[i:end] {
				if j != 0 {
					text = append(text, ", "...)
				}

				text = hfmt.Appendf(text, "0x%02x", x)
			}

			code = append(code, &asm.Instr{Text: string(text)})
		}
	}

	return code
}

// Append appends the function listing with registers resolved.
func (f *Func) Append(b []byte) []byte {
	return f.Code.Append(b, f.Map)
}

// Append appends the whole program listing.
func (p *Program) Append(b []byte) []byte {
	b = p.Entry.Append(b, nil)

	for _, f := range p.Funcs {
		b = append(b, '\n')
		b = f.Append(b)
	}

	if len(p.Data) != 0 {
		b = append(b, '\n')
		b = p.Data.Append(b, nil)
	}

	return b
}
