package armrecon

// Loader is the program-loader interface the walker needs: random-access
// reads of 32-bit words at any address, the declared entry point, and
// symbol lookups in both directions. armrecon/elfimage implements this
// over a debug/elf-loaded ARM ELF executable.
type Loader interface {
	ReadInstruction(addr Address) (uint32, error)
	EntryPoint() Address
	SymbolName(addr Address) (string, bool)
	SymbolAddress(name string) (Address, bool)
}

// StartupHeuristic configures the optional glibc _start/__libc_start_main
// detection pass (spec §4.3). The offsets are specific to one toolchain's
// startup code layout; the zero value disables the heuristic entirely, so
// a binary linked with a different libc simply shows no stdlib functions
// instead of misidentifying arbitrary code as startup code.
type StartupHeuristic struct {
	// Enabled gates the whole heuristic.
	Enabled bool
	// StartupCallOffset is the expected offset, from the entry point, of
	// the call to __libc_start_main inside _start.
	StartupCallOffset Address
	// LibcStartMainCallOffset is the expected offset, from
	// __libc_start_main's address, of its call to main.
	LibcStartMainCallOffset Address
	// MainPointerAddress is the fixed address of the data word holding
	// main's address, as laid out by this toolchain's _start.
	MainPointerAddress Address
}

// DefaultStartupHeuristic reproduces the constants the original
// implementation hard-coded for its one test toolchain.
func DefaultStartupHeuristic() StartupHeuristic {
	return StartupHeuristic{
		Enabled:                  true,
		StartupCallOffset:        0x28,
		LibcStartMainCallOffset:  0x1a8,
		MainPointerAddress:       0x8184,
	}
}

// Walker performs the reachability walk from spec §4.3: starting at one or
// more seed addresses, it follows sequential execution, recursively
// explores statically-resolvable branch targets, and records every
// statement it classifies along the way.
type Walker struct {
	loader Loader
	prog   *Program
}

// NewWalker creates a Walker that deposits statements into prog, reading
// instructions through loader.
func NewWalker(loader Loader, prog *Program) *Walker {
	return &Walker{loader: loader, prog: prog}
}

// Walk explores the program from entryAddr and, if heur is enabled and the
// entry walk has the conventional _start shape, launches a second walk
// from main and remembers every function discovered in the entry walk as
// "startup/stdlib" via the returned set of addresses. Function
// Reconstructor (reconstruct.go) uses that set to flag Function.FromStdlib
// once functions exist.
func (w *Walker) Walk(entryAddr Address, heur StartupHeuristic) (stdlibAddrs map[Address]bool, err error) {
	// The reconstructor expects the first statement's ToAddr to be the
	// entry point (spec §4.4 step 2): prepend an artificial seed branch,
	// exactly as the original decompiler's decompile() does.
	w.prog.Statements = append(w.prog.Statements, NewBranchStatement(0, Jump, Unconditional, entryAddr))

	entryStart := len(w.prog.Statements)
	if err := w.walkFrom(entryAddr); err != nil {
		return nil, err
	}

	if !heur.Enabled {
		return nil, nil
	}

	contains, callToMain, _ := detectStdlibShape(w.prog.Statements, entryStart, heur)
	if !contains {
		return nil, nil
	}

	mainAddr, err := w.loader.ReadInstruction(heur.MainPointerAddress)
	if err != nil {
		// The fixed-offset heuristic failed to find its data word: degrade
		// gracefully to "no stdlib shown" rather than aborting the run.
		return nil, nil
	}

	stdlibAddrs = make(map[Address]bool)
	for _, s := range w.prog.Statements {
		if s.Kind == Branch && s.ToAddr != 0 {
			stdlibAddrs[s.ToAddr] = true
		}
	}

	w.prog.Statements[callToMain].ToAddr = Address(mainAddr)
	if err := w.walkFrom(Address(mainAddr)); err != nil {
		return nil, err
	}

	return stdlibAddrs, nil
}

// detectStdlibShape looks for the typical glibc _start shape: the second
// BRANCH statement observed is an unconditional CALL at
// entry+StartupCallOffset (identifying __libc_start_main), and some later
// unconditional CALL sits at libcStartMain+LibcStartMainCallOffset
// (identifying the call to main). Mirrors decompile()'s detection loop in
// the original C implementation statement for statement.
func detectStdlibShape(statements []Statement, from int, heur StartupHeuristic) (contains bool, callToMain int, libcStartMain Address) {
	branchIndex := 0
	entryTarget := statements[0].ToAddr

	for i := from; i < len(statements); i++ {
		s := statements[i]
		if s.Kind != Branch {
			continue
		}
		// The artificial entry-seed statement (index 0, not iterated here)
		// already counts as the walk's first BRANCH; the first real branch
		// this loop sees is therefore the walk's second, matching the
		// original decompiler's "j == 1" check.
		if branchIndex == 0 && s.BrKind == Call && s.Cond == Unconditional &&
			s.Addr == entryTarget+heur.StartupCallOffset {
			libcStartMain = s.ToAddr
			contains = true
		} else if contains && s.BrKind == Call && s.Cond == Unconditional &&
			s.Addr == libcStartMain+heur.LibcStartMainCallOffset {
			callToMain = i
			return contains, callToMain, libcStartMain
		}
		branchIndex++
	}
	return false, 0, 0
}

// walkFrom runs the linear-scan-with-worklist algorithm from a single seed
// address, appending every statement it classifies to w.prog.Statements
// and recording explored ranges in w.prog.Explored.
func (w *Walker) walkFrom(seed Address) error {
	worklist := []Address{seed}

	for wi := 0; wi < len(worklist); wi++ {
		var instrPrev uint32
		havePrev := false

		for pc := worklist[wi]; ; pc += 4 {
			if w.prog.Explored.Contains(pc) {
				break
			}
			if err := w.prog.Explored.Add(pc, pc+4); err != nil {
				return err
			}

			instr, err := w.loader.ReadInstruction(pc)
			if err != nil {
				return err
			}

			isBr, target, err := IsBranch(pc, instr)
			if err != nil {
				return err
			}

			if isBr {
				var brKind BranchKind
				switch {
				case IsReturn(instr):
					brKind = Return
				case IsBL(instr) || (havePrev && instrPrev == 0xe1a0e00f):
					brKind = Call
				default:
					brKind = Jump
				}

				cond := Conditional
				if IsUnconditional(instr) {
					cond = Unconditional
				}

				st := NewBranchStatement(pc, brKind, cond, target)
				w.prog.Statements = append(w.prog.Statements, st)

				if target != 0 {
					worklist = append(worklist, target)
				}

				if brKind == Return || (brKind == Jump && cond == Unconditional) {
					break
				}
			} else if IsPCRelativeLoadStore(instr) {
				dataAddr := PCRelativeLoadStoreTarget(instr, pc)
				if !statementsContainWordAt(w.prog.Statements, dataAddr) {
					value, err := w.loader.ReadInstruction(dataAddr)
					if err != nil {
						return err
					}
					w.prog.Statements = append(w.prog.Statements, Statement{
						Addr:  dataAddr,
						Kind:  Word,
						Value: value,
					})
				}
				if err := w.prog.Explored.Add(dataAddr, dataAddr+4); err != nil {
					return err
				}
			}

			instrPrev = instr
			havePrev = true
		}
	}

	return nil
}

func statementsContainWordAt(statements []Statement, addr Address) bool {
	for _, s := range statements {
		if s.Kind == Word && s.Addr == addr {
			return true
		}
	}
	return false
}
