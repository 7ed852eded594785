package ir

import (
	"strconv"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"
)

type (
	// Env allocates labels and registers for one compilation session.
	// Not safe for concurrent use.
	Env struct {
		labels int
		regs   int

		Blobs []Blob
	}

	Blob struct {
		Label *Label
		Data  []byte
	}

	RegMap map[int]*Reg
)

func NewEnv() *Env {
	return &Env{}
}

func (e *Env) NewLabel() *Label {
	return e.NamedLabel("")
}

func (e *Env) NamedLabel(name string) *Label {
	l := &Label{ID: e.labels, Name: name}
	e.labels++

	return l
}

func (e *Env) NewReg() *Reg {
	return e.NamedReg("")
}

func (e *Env) NamedReg(name string) *Reg {
	r := &Reg{ID: e.regs, Name: name}
	e.regs++

	return r
}

func (e *Env) AddBlob(data []byte) *Label {
	l := e.NewLabel()

	e.Blobs = append(e.Blobs, Blob{Label: l, Data: data})

	tlog.V("blob").Printw("blob added", "label", l, "size", len(data), "from", loc.Caller(1))

	return l
}

func (l *Label) String() string {
	if l == nil {
		return "_"
	}

	if l.Name != "" {
		return l.Name
	}

	return ".L" + strconv.Itoa(l.ID)
}

func (r *Reg) String() string {
	if r == nil {
		return "_"
	}

	if r.Name != "" {
		return r.Name
	}

	return "t" + strconv.Itoa(r.ID)
}

func (l *Label) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if l == nil {
		return e.AppendNil(b)
	}

	return e.AppendString(b, l.String())
}

func (r *Reg) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if r == nil {
		return e.AppendNil(b)
	}

	return e.AppendString(b, r.String())
}

func (m RegMap) Map(v, phys *Reg) {
	m[v.ID] = phys
}

// Get returns the physical register assigned to v or nil.
func (m RegMap) Get(v *Reg) *Reg {
	return m[v.ID]
}

func (m RegMap) Merge(x RegMap) {
	for id, r := range x {
		m[id] = r
	}
}
