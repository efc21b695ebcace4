package armrecon

import "testing"

// buildWalkedProgram runs the walker over loader from entry and returns the
// resulting program, ready for reconstruction. Used by reconstruct_test.go
// and cfg_test.go to build realistic fixtures without hand-assembling
// statement lists.
func buildWalkedProgram(t *testing.T, loader *memLoader, entry Address) *Program {
	t.Helper()
	prog := &Program{EntryFunc: NoFunction}
	w := NewWalker(loader, prog)
	if _, err := w.Walk(entry, StartupHeuristic{}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return prog
}

// TestReconstructSingleFunction checks that a single straight-line
// function (nop; bx lr) reconstructs to exactly one function with the
// right bounds.
func TestReconstructSingleFunction(t *testing.T) {
	loader := newMemLoader(0x8000)
	loader.set(0x8000, 0xE1A00000) // nop
	loader.set(0x8004, 0xE12FFF1E) // bx lr

	prog := buildWalkedProgram(t, loader, 0x8000)

	rec := NewReconstructor(loader)
	if err := rec.Reconstruct(prog, nil); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if len(prog.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(prog.Functions))
	}
	f := prog.Functions[0]
	if f.VaddrStart != 0x8000 {
		t.Errorf("VaddrStart = %v, want 0x8000", f.VaddrStart)
	}
	if f.VaddrEnd != 0x8008 {
		t.Errorf("VaddrEnd = %v, want 0x8008", f.VaddrEnd)
	}
	if f.Name != "f0" {
		t.Errorf("Name = %q, want synthesized f0", f.Name)
	}
}

// TestReconstructCallCreatesCallee checks that a CALL statement causes a
// second function to be created at the callee's address and annotated on
// the statement via ToFunction.
func TestReconstructCallCreatesCallee(t *testing.T) {
	loader := newMemLoader(0x8000)
	loader.set(0x8000, 0xEB000000) // bl callee (target = pc+8 = 0x8008)
	loader.set(0x8004, 0xE12FFF1E) // bx lr (caller's own return)
	loader.set(0x8008, 0xE12FFF1E) // callee: bx lr

	prog := buildWalkedProgram(t, loader, 0x8000)

	rec := NewReconstructor(loader)
	if err := rec.Reconstruct(prog, nil); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if len(prog.Functions) != 2 {
		t.Fatalf("got %d functions, want 2 (caller + callee)", len(prog.Functions))
	}

	caller := &prog.Functions[0]
	var callStmt *Statement
	for i := range caller.Statements {
		if caller.Statements[i].Addr == 0x8000 {
			callStmt = &caller.Statements[i]
		}
	}
	if callStmt == nil {
		t.Fatal("expected the call statement in the caller's statement list")
	}
	if callStmt.ToFunction != 1 {
		t.Errorf("ToFunction = %d, want 1 (the callee)", callStmt.ToFunction)
	}
	if prog.Functions[1].VaddrStart != 0x8008 {
		t.Errorf("callee VaddrStart = %v, want 0x8008", prog.Functions[1].VaddrStart)
	}
}

// TestReconstructSyscallNumberFromPrecedingMov checks syscall-number
// backtracking through the immediately preceding "mov r7, #imm".
func TestReconstructSyscallNumberFromPrecedingMov(t *testing.T) {
	loader := newMemLoader(0x8000)
	loader.set(0x8000, 0xE3A07001) // mov r7, #1 (exit)
	loader.set(0x8004, 0xEF000000) // swi 0
	loader.set(0x8008, 0xE12FFF1E) // bx lr

	prog := buildWalkedProgram(t, loader, 0x8000)

	rec := NewReconstructor(loader)
	if err := rec.Reconstruct(prog, nil); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	f := prog.Functions[0]
	var sys *Statement
	for i := range f.Statements {
		if f.Statements[i].Kind == Syscall {
			sys = &f.Statements[i]
		}
	}
	if sys == nil {
		t.Fatal("expected a SYSCALL statement")
	}
	if SyscallValue(*sys) != 1 {
		t.Errorf("syscall value = %d, want 1", SyscallValue(*sys))
	}
}

// TestReconstructSyscallNumberUnrecoverable checks the -1 sentinel when no
// qualifying mov precedes the SWI.
func TestReconstructSyscallNumberUnrecoverable(t *testing.T) {
	loader := newMemLoader(0x8000)
	loader.set(0x7ffc, 0x00000000) // unrelated word before the function
	loader.set(0x8000, 0xE1A00000) // nop
	loader.set(0x8004, 0xEF000000) // swi 0
	loader.set(0x8008, 0xE12FFF1E) // bx lr

	prog := buildWalkedProgram(t, loader, 0x8000)

	rec := NewReconstructor(loader)
	if err := rec.Reconstruct(prog, nil); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	f := prog.Functions[0]
	var sys *Statement
	for i := range f.Statements {
		if f.Statements[i].Kind == Syscall {
			sys = &f.Statements[i]
		}
	}
	if sys == nil {
		t.Fatal("expected a SYSCALL statement")
	}
	if SyscallValue(*sys) != -1 {
		t.Errorf("syscall value = %d, want -1", SyscallValue(*sys))
	}
}

func TestReconcileOverlaps(t *testing.T) {
	functions := []Function{
		{ID: 0, VaddrStart: 0x8000, VaddrEnd: 0x8010},
		{ID: 1, VaddrStart: 0x8008, VaddrEnd: 0x8020},
	}
	reconcileOverlaps(functions)

	if functions[0].VaddrEnd != 0x8008 {
		t.Errorf("functions[0].VaddrEnd = %v, want 0x8008", functions[0].VaddrEnd)
	}
	if functions[1].VaddrStart != 0x8008 || functions[1].VaddrEnd != 0x8020 {
		t.Errorf("functions[1] unexpectedly modified: %+v", functions[1])
	}
}
