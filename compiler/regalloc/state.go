package regalloc

import (
	"tlog.app/go/tlog/tlwire"
)

type (
	NodeState int
	MoveState int
)

const (
	Unprocessed NodeState = iota
	Precolored
	Removable
	Freezeable
	Spillable
	Spilled
	Coalesced
	Colored
	Selected

	numNodeStates
)

const (
	MoveNone MoveState = iota
	MoveCoalesced
	MoveConstrained
	MoveFrozen
	MoveCoalescable
	MoveActive

	numMoveStates
)

var nodeStateNames = [...]string{"unprocessed", "precolored", "removable", "freezeable", "spillable", "spilled", "coalesced", "colored", "selected"}

var moveStateNames = [...]string{"none", "coalesced", "constrained", "frozen", "coalescable", "active"}

// worklists keeps every node and move on exactly one list of its state.
// Lists preserve insertion order.
type worklists struct {
	node  []NodeState
	nodes [numNodeStates][]int

	move  []MoveState
	moves [numMoveStates][]int
}

func (w *worklists) init(nodes, moves int) {
	w.node = make([]NodeState, nodes)
	w.move = make([]MoveState, moves)
}

func (w *worklists) addNode(n int, s NodeState) {
	w.node[n] = s
	w.nodes[s] = append(w.nodes[s], n)
}

func (w *worklists) setNode(n int, s NodeState) {
	old := w.node[n]

	w.nodes[old] = remove(w.nodes[old], n, old == Selected)

	w.addNode(n, s)
}

func (w *worklists) addMove(m int, s MoveState) {
	w.move[m] = s
	w.moves[s] = append(w.moves[s], m)
}

func (w *worklists) setMove(m int, s MoveState) {
	old := w.move[m]

	w.moves[old] = remove(w.moves[old], m, false)

	w.addMove(m, s)
}

// remove deletes x keeping the order. Selected stack is searched from the top.
func remove(list []int, x int, fromEnd bool) []int {
	i := -1

	if fromEnd {
		for j := len(list) - 1; j >= 0; j-- {
			if list[j] == x {
				i = j
				break
			}
		}
	} else {
		for j, y := range list {
			if y == x {
				i = j
				break
			}
		}
	}

	if i < 0 {
		return list
	}

	copy(list[i:], list[i+1:])

	return list[:len(list)-1]
}

func (s NodeState) String() string {
	if s < 0 || s >= numNodeStates {
		return "bad"
	}

	return nodeStateNames[s]
}

func (s MoveState) String() string {
	if s < 0 || s >= numMoveStates {
		return "bad"
	}

	return moveStateNames[s]
}

func (s NodeState) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder
	return e.AppendString(b, s.String())
}

func (s MoveState) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder
	return e.AppendString(b, s.String())
}
