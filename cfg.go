package armrecon

import (
	"fmt"
	"sort"

	"armrecon/syscalls"
)

// NodeKind tags what a CFG Node represents.
type NodeKind int

const (
	// NodeKindNode is a regular basic-block anchor inside the function.
	NodeKindNode NodeKind = iota
	// NodeKindFunction represents a call or jump-out target outside the
	// function, rendered as a labelled box.
	NodeKindFunction
	// NodeKindSyscall represents a syscall target.
	NodeKindSyscall
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindFunction:
		return "FUNCTION"
	case NodeKindSyscall:
		return "SYSFUNCTION"
	default:
		return "NODE"
	}
}

// Node is one vertex of a function's control-flow graph. Child1/Child2 are
// indices into CFG.Nodes, or -1 when absent.
type Node struct {
	Addr   Address
	Kind   NodeKind
	Stm    *Statement
	Child1 int
	Child2 int
	Show   bool

	// Label names a FUNCTION/SYSFUNCTION node for rendering: the callee's
	// name, or the syscall name.
	Label string
}

// CFG is the control-flow graph of one function.
type CFG struct {
	Function *Function
	Nodes    []Node
	Entry    int
	Exit     int
}

// CFGBuilder constructs a CFG for a single function, per spec §4.5.
type CFGBuilder struct {
	prog *Program
}

// NewCFGBuilder creates a CFGBuilder that resolves call/jump targets
// against prog's function table.
func NewCFGBuilder(prog *Program) *CFGBuilder {
	return &CFGBuilder{prog: prog}
}

// Build constructs the CFG for f.
func (b *CFGBuilder) Build(f *Function) *CFG {
	c := &CFG{Function: f}

	b.seedNodes(c, f)
	b.sortAndDedupe(c)
	b.attachStatements(c, f)
	b.buildEdges(c, f)
	b.pruneTrivialNodes(c)
	b.hideUnreachableExit(c)

	return c
}

func (b *CFGBuilder) seedNodes(c *CFG, f *Function) {
	add := func(addr Address, kind NodeKind, label string) {
		c.Nodes = append(c.Nodes, Node{Addr: addr, Kind: kind, Label: label, Child1: -1, Child2: -1, Show: true})
	}

	add(f.VaddrStart, NodeKindNode, "")
	add(f.VaddrEnd, NodeKindNode, "")

	for i := range f.Statements {
		s := &f.Statements[i]
		switch {
		case s.Kind == Branch && s.BrKind == Jump:
			add(s.Addr, NodeKindNode, "")
			if s.ToAddr != 0 && !f.Contains(s.ToAddr) {
				add(s.Addr, NodeKindFunction, b.calleeLabel(s))
			} else if s.ToAddr != 0 {
				add(s.ToAddr, NodeKindNode, "")
			}
			if s.Cond == Conditional {
				add(s.Addr+4, NodeKindNode, "")
			}

		case s.Kind == Branch && s.BrKind == Call:
			add(s.Addr, NodeKindNode, "")
			add(s.Addr, NodeKindFunction, b.calleeLabel(s))
			add(s.Addr+4, NodeKindNode, "")

		case s.Kind == Syscall:
			add(s.Addr, NodeKindNode, "")
			add(s.Addr, NodeKindSyscall, syscallLabel(s))
			add(s.Addr+4, NodeKindNode, "")

		case s.Kind == Branch && s.BrKind == Return:
			add(s.Addr, NodeKindNode, "")
		}
	}

	c.Entry = 0
	c.Exit = 1
}

// calleeLabel names the FUNCTION node for s's call/jump-out target: the
// resolved callee's name, or "?" when the target isn't statically known
// (e.g. a dynamic BX/BLX with to_function unset), matching the original's
// rp_dump_cfg_for_function FUNCTION-node branch rather than rendering a
// fabricated address.
func (b *CFGBuilder) calleeLabel(s *Statement) string {
	if s.ToFunction == NoFunction || s.ToAddr == 0 || b.prog == nil {
		return "?"
	}
	if id := s.ToFunction; id >= 0 && id < len(b.prog.Functions) {
		return b.prog.Functions[id].Name
	}
	if id := b.prog.FunctionByVaddr(s.ToAddr); id != -1 {
		return b.prog.Functions[id].Name
	}
	return "?"
}

func syscallLabel(s *Statement) string {
	n := SyscallValue(*s)
	return fmt.Sprintf("syscall #%d\n%s", n, syscalls.Name(n))
}

func (b *CFGBuilder) sortAndDedupe(c *CFG) {
	// Entry and exit must keep their slots (index 0 and 1), but a sort
	// preserving them as the first two entries works only once the whole
	// slice is sorted consistently, so sort everything by (addr, kind) and
	// recompute Entry/Exit afterward.
	entryAddr, exitAddr := c.Nodes[c.Entry].Addr, c.Nodes[c.Exit].Addr

	sort.SliceStable(c.Nodes, func(i, j int) bool {
		if c.Nodes[i].Addr != c.Nodes[j].Addr {
			return c.Nodes[i].Addr < c.Nodes[j].Addr
		}
		return c.Nodes[i].Kind < c.Nodes[j].Kind
	})

	deduped := c.Nodes[:0]
	for i, n := range c.Nodes {
		if i > 0 {
			p := deduped[len(deduped)-1]
			if p.Addr == n.Addr && p.Kind == n.Kind {
				continue
			}
		}
		deduped = append(deduped, n)
	}
	c.Nodes = deduped

	for i, n := range c.Nodes {
		if n.Addr == entryAddr && n.Kind == NodeKindNode {
			c.Entry = i
			break
		}
	}
	for i, n := range c.Nodes {
		if n.Addr == exitAddr && n.Kind == NodeKindNode {
			c.Exit = i
			break
		}
	}
}

func (b *CFGBuilder) attachStatements(c *CFG, f *Function) {
	for i := range c.Nodes {
		n := &c.Nodes[i]
		for j := range f.Statements {
			if f.Statements[j].Addr == n.Addr {
				n.Stm = &f.Statements[j]
				break
			}
		}
	}
}

// firstNodeAtOrAfter returns the index of the first node (in address
// order) whose address is >= addr, or -1.
func firstNodeAtOrAfter(c *CFG, addr Address) int {
	for i, n := range c.Nodes {
		if n.Addr >= addr {
			return i
		}
	}
	return -1
}

// nodeAt returns the index of the NODE-kind node at exactly addr, or -1.
func nodeAt(c *CFG, addr Address) int {
	for i, n := range c.Nodes {
		if n.Addr == addr && n.Kind == NodeKindNode {
			return i
		}
	}
	return -1
}

// colocated returns the index of the FUNCTION/SYSFUNCTION node sharing n's
// address, or -1.
func colocated(c *CFG, addr Address) int {
	for i, n := range c.Nodes {
		if n.Addr == addr && n.Kind != NodeKindNode {
			return i
		}
	}
	return -1
}

func (b *CFGBuilder) buildEdges(c *CFG, f *Function) {
	for i := range c.Nodes {
		if i == c.Exit {
			continue
		}
		n := &c.Nodes[i]

		if n.Stm == nil {
			n.Child1 = firstNodeAtOrAfter(c, n.Addr+4)
			continue
		}

		s := n.Stm
		hasFallthrough := s.Cond == Conditional || n.Kind != NodeKindNode
		if n.Kind == NodeKindFunction && s.Kind == Branch && s.BrKind == Jump {
			// Tail call: no fall-through, control does not return here.
			hasFallthrough = false
		}
		if hasFallthrough {
			n.Child1 = firstNodeAtOrAfter(c, n.Addr+4)
		}

		if n.Kind != NodeKindNode {
			continue
		}

		switch {
		case s.Kind == Branch && s.BrKind == Return:
			n.Child2 = c.Exit
		case s.Kind == Branch && s.BrKind == Jump && s.ToAddr != 0 && f.Contains(s.ToAddr):
			n.Child2 = nodeAt(c, s.ToAddr)
		case s.Kind == Branch && (s.BrKind == Jump || s.BrKind == Call), s.Kind == Syscall:
			n.Child2 = colocated(c, n.Addr)
		}
	}
}

// pruneTrivialNodes hides interior NODE-kind nodes that add no information:
// exactly one parent, at most one child, and either endpoint being a plain
// NODE. Runs to a fixed point, rerouting the parent's pointer through the
// pruned node each time.
func (b *CFGBuilder) pruneTrivialNodes(c *CFG) {
	for {
		changed := false

		for i := range c.Nodes {
			if i == c.Entry || i == c.Exit || !c.Nodes[i].Show {
				continue
			}
			if c.Nodes[i].Kind != NodeKindNode {
				continue
			}

			parents := parentsOf(c, i)
			if len(parents) != 1 {
				continue
			}
			parent := parents[0]

			childCount := 0
			var only int = -1
			if c.Nodes[i].Child1 != -1 {
				childCount++
				only = c.Nodes[i].Child1
			}
			if c.Nodes[i].Child2 != -1 {
				childCount++
				only = c.Nodes[i].Child2
			}
			if childCount > 1 {
				continue
			}

			parentIsNode := c.Nodes[parent].Kind == NodeKindNode
			childIsNode := only == -1 || c.Nodes[only].Kind == NodeKindNode
			if !parentIsNode && !childIsNode {
				continue
			}

			if c.Nodes[parent].Child1 == i {
				c.Nodes[parent].Child1 = only
			}
			if c.Nodes[parent].Child2 == i {
				c.Nodes[parent].Child2 = only
			}
			c.Nodes[i].Show = false
			c.Nodes[i].Child1 = -1
			c.Nodes[i].Child2 = -1
			changed = true
		}

		if !changed {
			break
		}
	}
}

func parentsOf(c *CFG, idx int) []int {
	var parents []int
	for i, n := range c.Nodes {
		if !n.Show || i == idx {
			continue
		}
		if n.Child1 == idx || n.Child2 == idx {
			parents = append(parents, i)
		}
	}
	return parents
}

// hideUnreachableExit hides the exit node if, after pruning, nothing
// points to it.
func (b *CFGBuilder) hideUnreachableExit(c *CFG) {
	for i, n := range c.Nodes {
		if i == c.Exit || !n.Show {
			continue
		}
		if n.Child1 == c.Exit || n.Child2 == c.Exit {
			return
		}
	}
	c.Nodes[c.Exit].Show = false
}
