package armrecon

import "sort"

// Reconstructor groups a flat, walked statement list into functions: it
// assigns start/end addresses, names functions from the symbol table,
// annotates call/jump edges with their callee function id, reconciles any
// functions whose provisional ranges overlap, and attaches syscalls.
type Reconstructor struct {
	loader Loader
}

// NewReconstructor creates a Reconstructor that looks up symbol names
// through loader.
func NewReconstructor(loader Loader) *Reconstructor {
	return &Reconstructor{loader: loader}
}

// Reconstruct builds prog.Functions from prog.Statements (which must
// already hold the walker's output, including the artificial entry-seed
// statement at index 0). stdlibAddrs, if non-nil, flags any function
// starting at one of those addresses as Function.FromStdlib.
func (r *Reconstructor) Reconstruct(prog *Program, stdlibAddrs map[Address]bool) error {
	if len(prog.Statements) == 0 {
		return nil
	}

	// Step 1: sort statements by address, stable (spec invariant 4).
	sort.SliceStable(prog.Statements, func(i, j int) bool {
		return prog.Statements[i].Addr < prog.Statements[j].Addr
	})

	// Step 2: seed the first function from the first statement's ToAddr,
	// which is the entry point (the walker prepends an artificial seed
	// branch whose target is the entry address).
	entryAddr := prog.Statements[0].ToAddr
	entryID := r.getOrCreateFunction(prog, entryAddr)
	prog.Statements[0].ToFunction = entryID
	prog.EntryFunc = entryID

	// Step 3: function discovery loop. len(prog.Functions) grows as new
	// callees are discovered; re-reading it each iteration lets the range
	// expand to cover them.
	for fID := 0; fID < len(prog.Functions); fID++ {
		r.discoverFunction(prog, fID)
	}

	// Step 4: overlap reconciliation.
	reconcileOverlaps(prog.Functions)

	// Step 5: syscall discovery.
	if err := r.discoverSyscalls(prog); err != nil {
		return err
	}

	if stdlibAddrs != nil {
		for i := range prog.Functions {
			if stdlibAddrs[prog.Functions[i].VaddrStart] {
				prog.Functions[i].FromStdlib = true
			}
		}
	}

	return nil
}

// getOrCreateFunction returns the index of the function starting at
// vaddr, creating and naming it first if it does not exist yet.
func (r *Reconstructor) getOrCreateFunction(prog *Program, vaddr Address) int {
	if id := prog.FunctionByVaddr(vaddr); id != -1 {
		return id
	}

	id := len(prog.Functions)
	f := Function{
		ID:         id,
		VaddrStart: vaddr,
	}
	f.Name = r.nameFunction(id, vaddr)
	prog.Functions = append(prog.Functions, f)
	return id
}

func (r *Reconstructor) nameFunction(id int, vaddr Address) string {
	if name, ok := r.loader.SymbolName(vaddr); ok {
		if len(name) > MaxFunctionNameLength {
			name = name[:MaxFunctionNameLength]
		}
		return name
	}
	return syntheticFunctionName(id)
}

func syntheticFunctionName(id int) string {
	return "f" + itoa(id)
}

// itoa avoids pulling in strconv for the single synthesized-name callsite
// above.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// discoverFunction scans the statement list starting at the function's
// first in-range statement, appending statements to it until it finds the
// function's end, per spec §4.4 step 3.
func (r *Reconstructor) discoverFunction(prog *Program, fID int) {
	f := &prog.Functions[fID]

	j := 0
	for j < len(prog.Statements) && prog.Statements[j].Addr < f.VaddrStart {
		j++
	}

	var fEnd Address

	for i := j; i < len(prog.Statements); i++ {
		s := &prog.Statements[i]
		a := s.Addr

		switch {
		case s.Kind == NOP || s.Kind == Word:
			if fEnd <= a+4 {
				f.VaddrEnd = a
				return
			}
			// Otherwise: this NOP/WORD is still inside the presumed body;
			// skip it without appending (spec §4.4 step 3c).

		case s.Kind == Branch && s.BrKind == Return:
			f.AddStatement(*s)
			if fEnd <= a+4 {
				f.VaddrEnd = a + 4
				return
			}

		case s.Kind == Branch && s.BrKind == Jump && s.Cond == Unconditional:
			if fEnd <= a+4 {
				f.VaddrEnd = a + 4
				if s.ToAddr != 0 && (s.ToAddr < f.VaddrStart || s.ToAddr >= a+4) {
					calleeID := r.getOrCreateFunction(prog, s.ToAddr)
					s.ToFunction = calleeID
					// The append may have moved prog.Functions.
					f = &prog.Functions[fID]
				}
				f.AddStatement(*s)
				return
			}
			if s.ToAddr != 0 && fEnd < s.ToAddr+4 {
				fEnd = s.ToAddr + 4
			}
			f.AddStatement(*s)

		case s.Kind == Branch && s.BrKind == Jump && s.ToAddr != 0:
			// Conditional jump with a known target: extend the lower bound
			// on where the function may end. (An unconditional jump still
			// inside the presumed body is handled, and extends the bound the
			// same way, in the case above.)
			if fEnd < s.ToAddr+4 {
				fEnd = s.ToAddr + 4
			}
			f.AddStatement(*s)

		case s.Kind == Branch && s.BrKind == Call && s.ToAddr != 0:
			calleeID := r.getOrCreateFunction(prog, s.ToAddr)
			s.ToFunction = calleeID
			f = &prog.Functions[fID]
			f.AddStatement(*s)

		default:
			f.AddStatement(*s)
		}
	}
}

// reconcileOverlaps truncates every pair of provisionally-overlapping
// functions so no two function ranges overlap afterward (spec §4.4 step
// 4). The earlier-starting function loses its tail.
func reconcileOverlaps(functions []Function) {
	for i := range functions {
		for j := i + 1; j < len(functions); j++ {
			f, g := &functions[i], &functions[j]
			if f.VaddrEnd > g.VaddrStart && f.VaddrStart < g.VaddrEnd {
				if f.VaddrStart < g.VaddrStart {
					f.VaddrEnd = g.VaddrStart
				} else {
					g.VaddrEnd = f.VaddrStart
				}
			}
		}
	}
}

// discoverSyscalls scans each function's address range for SWI/SVC
// instructions, inspecting the preceding one or two instructions for the
// "mov r7, #imm" that sets the syscall number (spec §4.4 step 5).
func (r *Reconstructor) discoverSyscalls(prog *Program) error {
	for fi := range prog.Functions {
		f := &prog.Functions[fi]

		for pc := f.VaddrStart; pc < f.VaddrEnd; pc += 4 {
			instr, err := r.loader.ReadInstruction(pc)
			if err != nil {
				return err
			}
			if !IsSoftwareInterrupt(instr) {
				continue
			}

			value := int64(-1)
			if pc >= 4 {
				prev, err := r.loader.ReadInstruction(pc - 4)
				if err != nil {
					return err
				}
				if imm, ok := MovR7Immediate(prev); ok {
					value = int64(imm)
				} else if pc >= 8 {
					prev2, err := r.loader.ReadInstruction(pc - 8)
					if err != nil {
						return err
					}
					if imm, ok := MovR7Immediate(prev2); ok {
						value = int64(imm)
					}
				}
			}

			var st Statement
			st.Addr = pc
			st.Kind = Syscall
			if value >= 0 {
				st.Value = uint32(value)
			} else {
				st.Value = uint32(0xffffffff)
			}
			f.AddStatement(st)
		}

		sort.SliceStable(f.Statements, func(i, j int) bool {
			return f.Statements[i].Addr < f.Statements[j].Addr
		})
	}

	return nil
}

// SyscallValue returns s.Value reinterpreted as the spec's signed -1
// sentinel for "not statically recoverable", or the syscall number.
func SyscallValue(s Statement) int {
	if s.Value == 0xffffffff {
		return -1
	}
	return int(s.Value)
}
