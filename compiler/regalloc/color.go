package regalloc

import (
	"math"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/munch/compiler/df"
	"github.com/slowlang/munch/compiler/set"
)

type (
	// coloring is one attempt to color the interference graph of a function.
	coloring struct {
		live *df.Liveness

		k      int // colors available to virtual registers
		colors int // all colors, including precolored beyond k

		worklists

		adj  []set.Bitmap
		list [][]int // adjacency lists, not kept for precolored nodes

		degree []int
		orig   []int

		related [][]int // move instructions of the node
		alias   []int
		color   []int

		noSpill set.Bitmap

		tr tlog.Span
	}

	candidate struct {
		node int
		cost float64
	}

	spillQueue struct {
		heap.Heap[candidate]
	}
)

func newColoring(l *df.Liveness, k, colors int, tr tlog.Span) *coloring {
	n := len(l.Regs)

	c := &coloring{
		live:    l,
		k:       k,
		colors:  colors,
		adj:     make([]set.Bitmap, n),
		list:    make([][]int, n),
		degree:  make([]int, n),
		related: make([][]int, n),
		alias:   make([]int, n),
		color:   make([]int, n),
		tr:      tr,
	}

	c.worklists.init(n, len(l.Uses))

	for i := range c.adj {
		c.adj[i] = set.MakeBitmap(n)
		c.alias[i] = -1
		c.color[i] = -1
	}

	c.noSpill = set.MakeBitmap(n)

	return c
}

func (c *coloring) precolor(n, color int) {
	c.color[n] = color
	c.addNode(n, Precolored)
}

// run colors the graph. Nodes without a color end up Spilled.
func (c *coloring) run() {
	c.build()
	c.classify()

	for {
		switch {
		case len(c.nodes[Removable]) != 0:
			c.simplify()
		case len(c.moves[MoveCoalescable]) != 0:
			c.coalesce()
		case len(c.nodes[Freezeable]) != 0:
			c.freeze()
		case len(c.nodes[Spillable]) != 0:
			c.selectSpill()
		default:
			c.assign()
			return
		}
	}
}

func (c *coloring) build() {
	l := c.live

	for i := range l.Uses {
		src := -1

		if l.Move[i] {
			u, d := l.Uses[i][0], l.Defs[i][0]

			if u != d {
				src = u

				c.addMove(i, MoveCoalescable)
				c.related[u] = append(c.related[u], i)
				c.related[d] = append(c.related[d], i)
			}
		}

		for _, d := range l.Defs[i] {
			l.LiveAfter[i].Range(func(v int) bool {
				if v != d && v != src {
					c.connect(d, v)
				}

				return true
			})
		}
	}

	c.orig = append([]int{}, c.degree...)
}

func (c *coloring) connect(a, b int) {
	if a == b || c.adj[a].IsSet(b) {
		return
	}

	c.adj[a].Set(b)
	c.adj[b].Set(a)

	if c.node[a] != Precolored {
		c.list[a] = append(c.list[a], b)
		c.degree[a]++
	}

	if c.node[b] != Precolored {
		c.list[b] = append(c.list[b], a)
		c.degree[b]++
	}
}

func (c *coloring) classify() {
	for n := range c.node {
		if c.node[n] == Precolored {
			continue
		}

		switch {
		case c.degree[n] >= c.k:
			c.addNode(n, Spillable)
		case len(c.related[n]) != 0:
			c.addNode(n, Freezeable)
		default:
			c.addNode(n, Removable)
		}
	}

	if c.tr.If("regalloc_dump") {
		c.dump("classified")
	}
}

func (c *coloring) adjacent(n int) (r []int) {
	for _, m := range c.list[n] {
		if s := c.node[m]; s != Selected && s != Coalesced {
			r = append(r, m)
		}
	}

	return r
}

func (c *coloring) nodeMoves(n int) (r []int) {
	for _, m := range c.related[n] {
		if s := c.move[m]; s == MoveCoalescable || s == MoveActive {
			r = append(r, m)
		}
	}

	return r
}

func (c *coloring) moveRelated(n int) bool {
	for _, m := range c.related[n] {
		if s := c.move[m]; s == MoveCoalescable || s == MoveActive {
			return true
		}
	}

	return false
}

func (c *coloring) simplify() {
	n := c.nodes[Removable][0]

	c.tr.V("regalloc").Printw("simplify", "reg", c.live.Regs[n], "degree", c.degree[n])

	c.setNode(n, Selected)

	for _, m := range c.adjacent(n) {
		c.decrement(m)
	}
}

func (c *coloring) decrement(n int) {
	if c.node[n] == Precolored {
		return
	}

	c.degree[n]--

	if c.degree[n] != c.k-1 {
		return
	}

	c.enableMoves(n)

	for _, m := range c.adjacent(n) {
		c.enableMoves(m)
	}

	if c.node[n] != Spillable {
		return
	}

	if c.moveRelated(n) {
		c.setNode(n, Freezeable)
	} else {
		c.setNode(n, Removable)
	}
}

func (c *coloring) enableMoves(n int) {
	for _, m := range c.nodeMoves(n) {
		if c.move[m] == MoveActive {
			c.setMove(m, MoveCoalescable)
		}
	}
}

func (c *coloring) find(n int) int {
	for c.node[n] == Coalesced {
		n = c.alias[n]
	}

	return n
}

func (c *coloring) coalesce() {
	m := c.moves[MoveCoalescable][0]

	u := c.find(c.live.Uses[m][0])
	v := c.find(c.live.Defs[m][0])

	if c.node[v] == Precolored {
		u, v = v, u
	}

	tr := c.tr.V("regalloc")

	switch {
	case u == v:
		c.setMove(m, MoveCoalesced)
		c.unfreeze(u)
	case c.node[v] == Precolored || c.adj[u].IsSet(v) || c.node[u] == Precolored && c.color[u] >= c.k:
		tr.Printw("constrained move", "dst", c.live.Regs[v], "src", c.live.Regs[u])

		c.setMove(m, MoveConstrained)
		c.unfreeze(u)
		c.unfreeze(v)
	case c.node[u] == Precolored && c.george(u, v) || c.node[u] != Precolored && c.briggs(u, v):
		tr.Printw("coalesce", "keep", c.live.Regs[u], "merge", c.live.Regs[v])

		c.setMove(m, MoveCoalesced)
		c.combine(u, v)
		c.unfreeze(u)
	default:
		c.setMove(m, MoveActive)
	}
}

func (c *coloring) unfreeze(n int) {
	if c.node[n] == Freezeable && !c.moveRelated(n) && c.degree[n] < c.k {
		c.setNode(n, Removable)
	}
}

func (c *coloring) significant(n int) bool {
	return c.node[n] == Precolored || c.degree[n] >= c.k
}

// george tests every neighbor of v is harmless for precolored u.
func (c *coloring) george(u, v int) bool {
	for _, t := range c.adjacent(v) {
		if c.degree[t] >= c.k && c.node[t] != Precolored && !c.adj[t].IsSet(u) {
			return false
		}
	}

	return true
}

// briggs tests the merged node has less than k significant neighbors.
func (c *coloring) briggs(u, v int) bool {
	seen := set.MakeBitmap(len(c.node))
	cnt := 0

	for _, l := range [2][]int{c.adjacent(u), c.adjacent(v)} {
		for _, t := range l {
			if seen.IsSet(t) {
				continue
			}

			seen.Set(t)

			if c.significant(t) {
				cnt++
			}
		}
	}

	return cnt < c.k
}

func (c *coloring) combine(u, v int) {
	c.setNode(v, Coalesced)
	c.alias[v] = u

	c.related[u] = append(c.related[u], c.nodeMoves(v)...)

	for _, t := range c.adjacent(v) {
		c.connect(t, u)
		c.decrement(t)
	}

	if c.degree[u] >= c.k && c.node[u] == Freezeable {
		c.setNode(u, Spillable)
	}
}

func (c *coloring) freeze() {
	n := c.nodes[Freezeable][0]

	c.tr.V("regalloc").Printw("freeze", "reg", c.live.Regs[n])

	c.setNode(n, Removable)
	c.freezeMoves(n)
}

func (c *coloring) freezeMoves(n int) {
	n = c.find(n)

	for _, m := range c.nodeMoves(n) {
		x := c.find(c.live.Uses[m][0])
		y := c.find(c.live.Defs[m][0])

		other := y
		if y == n {
			other = x
		}

		c.setMove(m, MoveFrozen)

		if c.node[other] == Freezeable && !c.moveRelated(other) && c.degree[other] < c.k {
			c.setNode(other, Removable)
		}
	}
}

// cost is uses and defs per interference. Spill temporaries are never chosen first.
func (c *coloring) cost(n int) float64 {
	if c.noSpill.IsSet(n) {
		return math.Inf(1)
	}

	d := c.orig[n]
	if d == 0 {
		d = c.degree[n]
	}

	if d == 0 {
		return math.Inf(1)
	}

	return float64(c.live.Count[n]) / float64(d)
}

func (c *coloring) selectSpill() {
	q := spillQueue{Heap: heap.Heap[candidate]{Less: candidateLess}}

	for _, n := range c.nodes[Spillable] {
		q.Push(candidate{node: n, cost: c.cost(n)})
	}

	x := q.Pop()

	c.tr.V("regalloc").Printw("potential spill", "reg", c.live.Regs[x.node], "cost", x.cost, "candidates", q.Len()+1)

	c.setNode(x.node, Removable)
	c.freezeMoves(x.node)
}

func candidateLess(d []candidate, i, j int) bool {
	if d[i].cost != d[j].cost {
		return d[i].cost < d[j].cost
	}

	return d[i].node < d[j].node
}

func (c *coloring) assign() {
	used := set.MakeBitmap(c.colors)

	for len(c.nodes[Selected]) != 0 {
		n := c.nodes[Selected][len(c.nodes[Selected])-1]

		used.Reset()

		for _, t := range c.list[n] {
			a := c.find(t)

			if s := c.node[a]; s == Precolored || s == Colored {
				used.Set(c.color[a])
			}
		}

		color := -1

		for i := 0; i < c.k; i++ {
			if !used.IsSet(i) {
				color = i
				break
			}
		}

		if color < 0 {
			c.setNode(n, Spilled)
			continue
		}

		c.color[n] = color
		c.setNode(n, Colored)
	}

	for _, n := range c.nodes[Coalesced] {
		c.color[n] = c.color[c.find(n)]
	}

	if c.tr.If("regalloc_dump") {
		c.dump("colored")
	}
}

// check verifies no defined register shares a color with a register live after the definition.
func (c *coloring) check() error {
	l := c.live

	for i := range l.Uses {
		src := -1

		if l.Move[i] && l.Uses[i][0] != l.Defs[i][0] {
			src = l.Uses[i][0]
		}

		for _, d := range l.Defs[i] {
			if c.color[d] < 0 {
				continue
			}

			var err error

			l.LiveAfter[i].Range(func(v int) bool {
				if v == d || v == src || c.color[v] != c.color[d] {
					return true
				}

				err = errors.Wrap(ErrInvariant, "instruction %d: %v defined while %v is live, both colored %d", i, c.live.Regs[d], c.live.Regs[v], c.color[d])

				return false
			})

			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *coloring) dump(msg string) {
	for n, r := range c.live.Regs {
		var adj []string

		c.adj[n].Range(func(i int) bool {
			adj = append(adj, c.live.Regs[i].String())
			return true
		})

		c.tr.Printw(msg, "reg", r, "state", c.node[n], "color", c.color[n], "degree", c.degree[n], "interferes", adj)
	}

	for m, s := range c.move {
		if s == MoveNone {
			continue
		}

		c.tr.Printw(msg, "move", m, "dst", c.live.Regs[c.live.Defs[m][0]], "src", c.live.Regs[c.live.Uses[m][0]], "state", s)
	}
}
