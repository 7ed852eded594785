package asm

import (
	"tlog.app/go/errors"

	"github.com/slowlang/munch/compiler/ir"
)

type (
	// Catalog describes a target: its registers and instruction templates.
	Catalog struct {
		Name string

		// Regs are allocatable registers. Register index is its color.
		Regs []*ir.Reg

		Params     []*ir.Reg
		CallerSave []*ir.Reg
		CalleeSave []*ir.Reg

		Result *ir.Reg

		// Imm reports whether a constant fits an instruction immediate.
		// Templates added by Add match only such constants. Nil accepts any.
		Imm func(v int64) bool

		names map[string]*ir.Reg

		kinds  [numKinds][]*Template
		binops [ir.NumOps][]*Template
		cjumps [ir.NumConds][]*Template
	}

	kind int
)

const (
	kindNone kind = iota
	kindInt
	kindAddr
	kindTemp
	kindMem
	kindCall
	kindMove
	kindJump
	kindPlace

	numKinds
)

var kindNames = [...]string{"none", "integer", "label address", "register", "memory", "call", "move", "jump", "label placement"}

// NewCatalog makes an empty catalog knowing machine registers by names.
func NewCatalog(name string, machine ...*ir.Reg) *Catalog {
	c := &Catalog{
		Name:  name,
		names: make(map[string]*ir.Reg, len(machine)),
	}

	for _, r := range machine {
		c.names[r.Name] = r
	}

	return c
}

// Reg returns a machine register by name.
func (c *Catalog) Reg(name string) *ir.Reg {
	return c.names[name]
}

// Color returns allocatable register index or -1.
func (c *Catalog) Color(r *ir.Reg) int {
	for i, x := range c.Regs {
		if x == r {
			return i
		}
	}

	return -1
}

// Machine reports whether r is one of the catalog registers.
func (c *Catalog) Machine(r *ir.Reg) bool {
	return c.names[r.Name] == r
}

// Add registers a template. Templates added earlier win ties.
func (c *Catalog) Add(pattern any, skels ...Skel) error {
	return c.add(&Template{Pattern: pattern, Skels: skels})
}

// AddWide registers a template accepting constants of any size.
func (c *Catalog) AddWide(pattern any, skels ...Skel) error {
	return c.add(&Template{Pattern: pattern, Skels: skels, Wide: true})
}

func (c *Catalog) add(t *Template) error {
	pattern := t.Pattern

	if err := checkPattern(pattern, true); err != nil {
		return errors.Wrap(err, "template %v", t)
	}

	if err := t.compile(c); err != nil {
		return errors.Wrap(err, "template %v", t)
	}

	switch p := pattern.(type) {
	case *ir.BinOp:
		c.binops[p.Op] = append(c.binops[p.Op], t)
	case *ir.CJump:
		c.cjumps[p.Cond] = append(c.cjumps[p.Cond], t)
	default:
		k := kindOf(pattern)
		c.kinds[k] = append(c.kinds[k], t)
	}

	return nil
}

// MustAdd is Add that panics. For static catalogs.
func (c *Catalog) MustAdd(pattern any, skels ...Skel) {
	if err := c.Add(pattern, skels...); err != nil {
		panic(err)
	}
}

func (c *Catalog) MustAddWide(pattern any, skels ...Skel) {
	if err := c.AddWide(pattern, skels...); err != nil {
		panic(err)
	}
}

// Templates returns candidate templates for the node.
func (c *Catalog) Templates(x any) []*Template {
	switch x := x.(type) {
	case *ir.BinOp:
		return c.binops[x.Op]
	case *ir.CJump:
		return c.cjumps[x.Cond]
	}

	return c.kinds[kindOf(x)]
}

func (c *Catalog) Len() (n int) {
	for _, l := range c.kinds {
		n += len(l)
	}

	for _, l := range c.binops {
		n += len(l)
	}

	for _, l := range c.cjumps {
		n += len(l)
	}

	return n
}

func checkPattern(p any, root bool) error {
	switch p := p.(type) {
	case *ir.Int, *ir.Addr, *ir.Temp, *ir.Place:
		return nil
	case *ir.BinOp:
		if p.Op < 0 || int(p.Op) >= ir.NumOps {
			return errors.Wrap(ErrBadTemplate, "bad op %d", p.Op)
		}

		if err := checkPattern(p.L, false); err != nil {
			return err
		}

		return checkPattern(p.R, false)
	case *ir.Mem:
		return checkPattern(p.Addr, false)
	case *ir.Call:
		if !root {
			return errors.Wrap(ErrBadTemplate, "call must be the pattern root")
		}

		return checkPattern(p.Func, false)
	case *ir.Move:
		switch p.Dst.(type) {
		case *ir.Temp, *ir.Mem:
		default:
			return errors.Wrap(ErrBadTemplate, "move to %T", p.Dst)
		}

		if err := checkPattern(p.Dst, false); err != nil {
			return err
		}

		return checkPattern(p.Src, false)
	case *ir.Jump:
		return checkPattern(p.Dst, false)
	case *ir.CJump:
		if p.Cond < 0 || int(p.Cond) >= ir.NumConds {
			return errors.Wrap(ErrBadTemplate, "bad cond %d", p.Cond)
		}

		if err := checkPattern(p.L, false); err != nil {
			return err
		}

		return checkPattern(p.R, false)
	}

	return errors.Wrap(ErrBadTemplate, "unsupported pattern node %T", p)
}

func kindOf(x any) kind {
	switch x.(type) {
	case *ir.Int:
		return kindInt
	case *ir.Addr:
		return kindAddr
	case *ir.Temp:
		return kindTemp
	case *ir.Mem:
		return kindMem
	case *ir.Call:
		return kindCall
	case *ir.Move:
		return kindMove
	case *ir.Jump:
		return kindJump
	case *ir.Place:
		return kindPlace
	}

	return kindNone
}

func (k kind) String() string {
	return kindNames[k]
}
