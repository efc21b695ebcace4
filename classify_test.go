package armrecon

import "testing"

func TestIsUnconditional(t *testing.T) {
	tests := []struct {
		instr uint32
		want  bool
	}{
		{0xEA000000, true},  // cond = 0xE
		{0xFA000000, true},  // cond = 0xF
		{0x0A000000, false}, // cond = 0x0 (EQ)
		{0x1A000000, false}, // cond = 0x1 (NE)
	}
	for _, tt := range tests {
		if got := IsUnconditional(tt.instr); got != tt.want {
			t.Errorf("IsUnconditional(0x%08x) = %v, want %v", tt.instr, got, tt.want)
		}
	}
}

func TestIsNOP(t *testing.T) {
	if !IsNOP(0xE1A00000) {
		t.Error("canonical NOP not recognized")
	}
	if IsNOP(0xE1A00001) {
		t.Error("non-NOP misclassified")
	}
}

func TestIsSoftwareInterrupt(t *testing.T) {
	if !IsSoftwareInterrupt(0xEF000001) {
		t.Error("SWI not recognized")
	}
	if IsSoftwareInterrupt(0xEA000000) {
		t.Error("branch misclassified as SWI")
	}
}

func TestMovR7Immediate(t *testing.T) {
	tests := []struct {
		name     string
		instr    uint32
		wantVal  uint32
		wantOK   bool
	}{
		{"mov r7, #1", 0xE3A07001, 1, true},
		{"mov r7, #0", 0xE3A07000, 0, true},
		{"mov r7, #4 with rotate", 0xE3A07E04, rotateImmediate(0x04, 0xE), true},
		{"not mov r7", 0xE3A08001, 0, false},
		{"not mov-immediate at all", 0xE1A00000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := MovR7Immediate(tt.instr)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && val != tt.wantVal {
				t.Errorf("val = 0x%x, want 0x%x", val, tt.wantVal)
			}
		})
	}
}

// rotateImmediate mirrors the decoder's own rotate math for test-vector
// construction: an 8-bit value rotated right by 2*rotateField bits.
func rotateImmediate(val uint32, rotateField uint32) uint32 {
	rotate := rotateField * 2
	if rotate == 0 {
		return val
	}
	return (val >> rotate) | (val << (32 - rotate))
}

func TestIsPCRelativeLoadStore(t *testing.T) {
	// ldr r1, [pc, #8]
	instr := uint32(0xE59F1008)
	if !IsPCRelativeLoadStore(instr) {
		t.Fatal("expected PC-relative load to be recognized")
	}
	pc := Address(0x8000)
	got := PCRelativeLoadStoreTarget(instr, pc)
	want := pc + 8 + 8
	if got != want {
		t.Errorf("target = %v, want %v", got, want)
	}

	if IsPCRelativeLoadStore(0xE5911008) { // ldr r1, [r1, #8], not PC-based
		t.Error("non-PC-relative load misclassified")
	}
}

func TestIsBranch(t *testing.T) {
	pc := Address(0x8000)

	tests := []struct {
		name       string
		instr      uint32
		wantBranch bool
		wantTarget Address
		wantErr    bool
	}{
		{"b forward", 0xEA000000, true, pc + 8, false},
		{"b backward (self, br target == pc)", 0xEAFFFFFE, true, pc, false},
		{"bx lr (return)", 0xE12FFF1E, true, 0, false},
		{"bl", 0xEB000000, true, pc + 8, false},
		{"non-branch add", 0xE0811002, false, 0, false},
		{"ldr pc, [...]", 0xE59FF008, true, 0, false},
		{"blx(1) unsupported", 0xFA000000, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isBr, target, err := IsBranch(pc, tt.instr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if isBr != tt.wantBranch {
				t.Fatalf("isBranch = %v, want %v", isBr, tt.wantBranch)
			}
			if isBr && target != tt.wantTarget {
				t.Errorf("target = %v, want %v", target, tt.wantTarget)
			}
		})
	}
}

func TestIsReturn(t *testing.T) {
	if !IsReturn(0xE12FFF1E) {
		t.Error("bx lr not recognized as return")
	}
	if !IsReturn(0xE8BD8800) {
		t.Error("ldmfd sp!,{pc} not recognized as return")
	}
	if IsReturn(0xEA000000) {
		t.Error("plain branch misclassified as return")
	}
}

func TestIsBL(t *testing.T) {
	if !IsBL(0xEB000000) {
		t.Error("bl not recognized")
	}
	if IsBL(0xEA000000) {
		t.Error("plain b misclassified as bl")
	}
}
