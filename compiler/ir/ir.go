package ir

type (
	Expr interface {
		expr()
	}

	Stmt interface {
		stmt()
	}

	Op   int
	Cond int

	Label struct {
		ID   int
		Name string
	}

	Reg struct {
		ID   int
		Name string
	}

	// Expressions.

	Int struct {
		Value int64
	}

	Addr struct {
		Label *Label
	}

	Temp struct {
		Reg *Reg
	}

	BinOp struct {
		Op   Op
		L, R Expr

		Pos int // source position for diagnostics
	}

	Mem struct {
		Addr Expr
	}

	Call struct {
		Func Expr
		Args []Expr

		FP Expr // callee parent frame pointer, optional
	}

	// ESeq runs Stmt for effect and then yields Value.
	ESeq struct {
		Stmt  Stmt
		Value Expr
	}

	// Statements.

	Move struct {
		Dst Expr
		Src Expr
	}

	ExpStmt struct {
		Expr Expr
	}

	Jump struct {
		Dst     Expr
		Targets []*Label
	}

	CJump struct {
		Cond        Cond
		L, R        Expr
		True, False *Label
	}

	Seq struct {
		List []Stmt
	}

	Place struct {
		Label *Label
	}
)

const (
	Plus Op = iota
	Minus
	Mul
	Div
	And
	Or
	Xor
	Shl
	Shr
	Sar

	numOps
)

const (
	Eq Cond = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Ult
	Ule
	Ugt
	Uge

	numConds
)

const (
	NumOps   = int(numOps)
	NumConds = int(numConds)
)

var (
	opNames   = [...]string{"+", "-", "*", "/", "&", "|", "^", "<<", ">>", ">>>"}
	condNames = [...]string{"==", "!=", "<", "<=", ">", ">=", "u<", "u<=", "u>", "u>="}

	inverse = [...]Cond{Ne, Eq, Ge, Gt, Le, Lt, Uge, Ugt, Ule, Ult}
)

func (*Int) expr()   {}
func (*Addr) expr()  {}
func (*Temp) expr()  {}
func (*BinOp) expr() {}
func (*Mem) expr()   {}
func (*Call) expr()  {}
func (*ESeq) expr()  {}

func (*Move) stmt()    {}
func (*ExpStmt) stmt() {}
func (*Jump) stmt()    {}
func (*CJump) stmt()   {}
func (*Seq) stmt()     {}
func (*Place) stmt()   {}

// NewJump makes an unconditional jump to a single known label.
func NewJump(l *Label) *Jump {
	return &Jump{
		Dst:     &Addr{Label: l},
		Targets: []*Label{l},
	}
}

func NewSeq(list ...Stmt) *Seq {
	return &Seq{List: list}
}

func (op Op) String() string {
	if op < 0 || op >= numOps {
		return "op?"
	}

	return opNames[op]
}

func (op Op) Commutative() bool {
	switch op {
	case Plus, Mul, And, Or, Xor:
		return true
	}

	return false
}

// Eval computes x op y the way the target does.
// ok is false if the result is undefined (division by zero, shift out of range).
func (op Op) Eval(x, y int64) (r int64, ok bool) {
	switch op {
	case Plus:
		return x + y, true
	case Minus:
		return x - y, true
	case Mul:
		return x * y, true
	case Div:
		if y == 0 {
			return 0, false
		}

		return x / y, true
	case And:
		return x & y, true
	case Or:
		return x | y, true
	case Xor:
		return x ^ y, true
	}

	if y < 0 || y > 63 {
		return 0, false
	}

	switch op {
	case Shl:
		return x << y, true
	case Shr:
		return int64(uint64(x) >> y), true
	case Sar:
		return x >> y, true
	}

	return 0, false
}

func (c Cond) String() string {
	if c < 0 || c >= numConds {
		return "cond?"
	}

	return condNames[c]
}

func (c Cond) Inverse() Cond {
	return inverse[c]
}

func (c Cond) Eval(x, y int64) bool {
	ux, uy := uint64(x), uint64(y)

	switch c {
	case Eq:
		return x == y
	case Ne:
		return x != y
	case Lt:
		return x < y
	case Le:
		return x <= y
	case Gt:
		return x > y
	case Ge:
		return x >= y
	case Ult:
		return ux < uy
	case Ule:
		return ux <= uy
	case Ugt:
		return ux > uy
	case Uge:
		return ux >= uy
	}

	panic(c)
}
