// Package report renders a reconstructed armrecon.Program as text: function
// dumps in three compacities, a whole-program call graph, and a
// per-function control-flow graph, both graphs in Graphviz dot format.
package report

import (
	"fmt"
	"io"

	"armrecon"
	"armrecon/syscalls"
)

// Compacity selects how much detail DumpFunctions prints per function.
type Compacity int

const (
	// Debug prints every statement in the function body.
	Debug Compacity = iota
	// Compact prints one line per function: name, range, and callees.
	Compact
	// VeryCompact prints only the function's address range.
	VeryCompact
)

// DumpFunctions writes every function in prog to w, in address-table
// insertion order, skipping stdlib functions unless showStdlib is set.
func DumpFunctions(w io.Writer, prog *armrecon.Program, showStdlib bool, c Compacity) {
	for i := range prog.Functions {
		f := &prog.Functions[i]
		if !showStdlib && f.FromStdlib {
			continue
		}
		dumpFunction(w, prog, f, c)
	}
}

// DumpFunctionByAddr writes only the function starting at vaddr, in any
// compacity, regardless of its stdlib flag. Returns false if no function
// starts at vaddr.
func DumpFunctionByAddr(w io.Writer, prog *armrecon.Program, vaddr armrecon.Address, c Compacity) bool {
	id := prog.FunctionByVaddr(vaddr)
	if id == -1 {
		return false
	}
	dumpFunction(w, prog, &prog.Functions[id], c)
	return true
}

func dumpFunction(w io.Writer, prog *armrecon.Program, f *armrecon.Function, c Compacity) {
	switch {
	case c >= VeryCompact:
		fmt.Fprintf(w, "0x%08x\t0x%08x\n", uint32(f.VaddrStart), uint32(f.VaddrEnd))

	case c == Compact:
		fmt.Fprintf(w, "%s\t0x%08x\t0x%08x\t", f.Name, uint32(f.VaddrStart), uint32(f.VaddrEnd))
		seen := map[int]bool{}
		first := true
		for _, s := range f.Statements {
			if s.Kind == armrecon.Branch && s.ToFunction != armrecon.NoFunction && !seen[s.ToFunction] {
				if !first {
					fmt.Fprint(w, ",")
				}
				fmt.Fprint(w, prog.Functions[s.ToFunction].Name)
				seen[s.ToFunction] = true
				first = false
			}
		}
		fmt.Fprintln(w)

	default:
		stdlibSuffix := ""
		if f.FromStdlib {
			stdlibSuffix = " (stdlib)"
		}
		fmt.Fprintf(w, "%s%s\n", f.Name, stdlibSuffix)
		fmt.Fprintf(w, "\t%05x {\n", uint32(f.VaddrStart))
		for _, s := range f.Statements {
			switch s.Kind {
			case armrecon.Branch:
				fmt.Fprintf(w, "\t%05x   BRANCH (%s)  %s  %s", uint32(s.Addr), s.BrKind, s.Cond, staticityLabel(s.Staticity))
				if s.ToAddr != 0 {
					fmt.Fprintf(w, "  -> %05x", uint32(s.ToAddr))
				}
				if s.ToFunction != armrecon.NoFunction {
					fmt.Fprintf(w, " (%s)", prog.Functions[s.ToFunction].Name)
				}
				fmt.Fprintln(w)
			case armrecon.Word:
				fmt.Fprintf(w, "\t%05x   WORD     %08x\n", uint32(s.Addr), s.Value)
			case armrecon.Syscall:
				n := armrecon.SyscallValue(s)
				fmt.Fprintf(w, "\t%05x   SYSCALL  #%d (%s)\n", uint32(s.Addr), n, syscalls.Name(n))
			}
		}
		fmt.Fprintf(w, "\t%05x }\n", uint32(f.VaddrEnd))
	}
}

func staticityLabel(s armrecon.Staticity) string {
	if s == armrecon.Static {
		return "STATIC"
	}
	return "DYNAMIC"
}

// DumpCallGraph writes the whole program's call graph in dot format:
// one box per function, one gray box per distinct syscall number each
// function reaches, and edges for calls and jumps recorded via ToFunction.
func DumpCallGraph(w io.Writer, prog *armrecon.Program, showStdlib bool) {
	fmt.Fprintln(w, "digraph G {")

	for i := range prog.Functions {
		f := &prog.Functions[i]
		if !showStdlib && f.FromStdlib {
			continue
		}
		fmt.Fprintf(w, "\tF%d [label=\"%s\"];\n", i, f.Name)

		seenF := map[int]bool{}
		seenS := map[int]bool{}
		for j, s := range f.Statements {
			switch {
			case s.Kind == armrecon.Branch && s.ToFunction != armrecon.NoFunction:
				if !seenF[s.ToFunction] {
					fmt.Fprintf(w, "\tF%d -> F%d;\n", i, s.ToFunction)
					seenF[s.ToFunction] = true
				}
			case s.Kind == armrecon.Syscall:
				n := armrecon.SyscallValue(s)
				if !seenS[n] {
					fmt.Fprintf(w, "\tS%d_%d [label=\"syscall #%d\\n%s\", shape=box, style=filled, fillcolor=gray50];\n",
						i, j, n, syscalls.Name(n))
					fmt.Fprintf(w, "\tF%d -> S%d_%d;\n", i, i, j)
					seenS[n] = true
				}
			}
		}
	}

	fmt.Fprintln(w, "}")
}

// DumpCFG writes c in dot format: one node per visible CFG node, labelled
// by role (ENTRY/EXIT/address/callee name/syscall), and edges for every
// surviving Child1/Child2 pointer.
func DumpCFG(w io.Writer, c *armrecon.CFG) {
	fmt.Fprintln(w, "digraph G {")

	for _, n := range c.Nodes {
		if !n.Show {
			continue
		}

		switch n.Kind {
		case armrecon.NodeKindNode:
			label := fmt.Sprintf("0x%x", uint32(n.Addr))
			switch {
			case n.Addr == c.Function.VaddrStart:
				label = fmt.Sprintf("ENTRY\\n0x%x", uint32(n.Addr))
			case n.Addr == c.Function.VaddrEnd:
				label = fmt.Sprintf("EXIT\\n0x%x", uint32(n.Addr))
			}
			fmt.Fprintf(w, "\tN_%d_%x [label=\"%s\"];\n", n.Kind, uint32(n.Addr), label)

		case armrecon.NodeKindFunction:
			label := n.Label
			if label == "" {
				label = "?"
			}
			fmt.Fprintf(w, "\tN_%d_%x [label=\"%s\", shape=box, style=filled, fillcolor=gray75];\n",
				n.Kind, uint32(n.Addr), label)

		case armrecon.NodeKindSyscall:
			fmt.Fprintf(w, "\tN_%d_%x [label=\"%s\", shape=box, style=filled, fillcolor=gray50];\n",
				n.Kind, uint32(n.Addr), n.Label)
		}
	}

	for _, n := range c.Nodes {
		if !n.Show {
			continue
		}
		if n.Child1 >= 0 && c.Nodes[n.Child1].Show {
			target := c.Nodes[n.Child1]
			fmt.Fprintf(w, "\tN_%d_%x -> N_%d_%x;\n", n.Kind, uint32(n.Addr), target.Kind, uint32(target.Addr))
		}
		if n.Child2 >= 0 && c.Nodes[n.Child2].Show {
			target := c.Nodes[n.Child2]
			fmt.Fprintf(w, "\tN_%d_%x -> N_%d_%x;\n", n.Kind, uint32(n.Addr), target.Kind, uint32(target.Addr))
		}
	}

	fmt.Fprintln(w, "}")
}
