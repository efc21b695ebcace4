package armrecon

import "math/bits"

// IsUnconditional reports whether instr's condition field (bits[31:28])
// selects the "always" condition (0xE) or above (0xF, unpredictable on
// ARMv5 but treated the same way the reference decoder does).
func IsUnconditional(instr uint32) bool {
	return (instr>>28)&0xf >= 0xe
}

// IsNOP reports whether instr is exactly the canonical "mov r0, r0"
// encoding GCC/GAS emit for NOP.
func IsNOP(instr uint32) bool {
	return instr == 0xe1a00000
}

// IsSoftwareInterrupt reports whether instr is an SWI/SVC.
func IsSoftwareInterrupt(instr uint32) bool {
	return (instr>>24)&0xf == 0xf
}

// MovR7Immediate decodes "mov r7, #imm" and returns its immediate value
// and true. Returns (0, false) if instr is not that instruction.
//
// The ARM immediate-operand encoding packs an 8-bit value and a 4-bit
// rotate count; the decoded operand is the 8-bit value rotated right by
// twice the rotate count, as a 32-bit rotation. A rotate count of zero is
// the identity (no rotation occurs; this matters because rotating an
// unsigned value right by a literal 32 is undefined behavior in C, which
// is why the original decoder special-cases it here too).
func MovR7Immediate(instr uint32) (uint32, bool) {
	if instr&0xfffff000 != 0xe3a07000 {
		return 0, false
	}
	rotate := ((instr >> 8) & 0xf) * 2
	val := instr & 0xff
	if rotate == 0 {
		return val, true
	}
	return bits.RotateLeft32(val, -int(rotate)), true
}

// IsPCRelativeLoadStore reports whether instr is a load/store with an
// immediate offset from PC (register 15), the only addressing form this
// release resolves statically. Only the positive-offset encoding is
// recognized; the negative-offset form is inert by design (spec open
// question, carried from the original implementation).
func IsPCRelativeLoadStore(instr uint32) bool {
	return (instr>>20)&0xff == 0x59 && (instr>>16)&0xf == 15
}

// PCRelativeLoadStoreTarget computes the referenced data address for an
// instruction IsPCRelativeLoadStore accepted. pc is the address of the
// instruction itself; the ARM pipeline means PC reads as pc+8 during
// execution.
func PCRelativeLoadStoreTarget(instr uint32, pc Address) Address {
	return pc + Address(instr&0xfff) + 8
}

// IsBranch reports whether instr writes to PC (R15) and, if a static
// target can be computed, returns it; the target is 0 when the write is
// data-dependent (register-indexed, loaded from memory, or similar).
//
// Dispatches on bits[27:25] exactly as the ARM encoding table does:
// data-processing (register and immediate), load/store (immediate and
// register offset), load/store multiple, and B/BL. BX/BXJ/BLX(2) are
// detected as the opcode==9 subcase of the data-processing-register class.
func IsBranch(pc Address, instr uint32) (bool, Address, error) {
	threeBits := (instr >> 25) & 7
	opcode := (instr >> 21) & 0xf
	rd := (instr >> 12) & 0xf
	l := (instr >> 20) & 1

	switch threeBits {
	case 0: // Data-processing register (or BX/BXJ/BLX(2) subcase)
		if opcode>>2 != 2 && rd == 15 {
			return true, 0, nil
		}
		if opcode == 9 && (instr>>6)&3 == 0 && (instr>>4)&3 > 0 {
			return true, 0, nil
		}
		return false, 0, nil

	case 1: // Data-processing immediate
		if opcode>>2 != 2 && rd == 15 {
			return true, 0, nil
		}
		return false, 0, nil

	case 2: // Load/store immediate offset
		if l == 1 && rd == 15 {
			return true, 0, nil
		}
		return false, 0, nil

	case 3: // Load/store register offset
		if l == 1 && rd == 15 {
			return true, 0, nil
		}
		return false, 0, nil

	case 4: // Load/store multiple
		if l == 1 && (instr>>15)&1 == 1 {
			return true, 0, nil
		}
		return false, 0, nil

	case 5: // B / BL (or BLX(1), unsupported)
		if (instr>>28)&0xf == 0xf {
			return false, 0, &FatalDecodeError{PC: pc, Message: "BLX(1) instruction requires Thumb, unsupported on ARMv5 input"}
		}
		var immediate uint32
		if instr&0x800000 != 0 {
			immediate = 0xfe000000 | ((instr & 0x7fffff) << 2)
		} else {
			immediate = (instr & 0xffffff) << 2
		}
		target := pc + 8 + Address(immediate)
		return true, target, nil
	}

	return false, 0, nil
}

// IsBL reports whether a branch instr (one IsBranch already accepted) is a
// "branch with link" (sets the link register): BL for the B/BL class, or
// BLX(2) for the BX/BXJ/BLX(2) subcase.
func IsBL(instr uint32) bool {
	if (instr>>25)&7 == 5 {
		return (instr>>24)&1 == 1
	}
	if (instr>>20)&0xff == 0x12 && (instr>>6)&3 == 0 && (instr>>4)&3 > 0 {
		return (instr>>4)&3 == 3
	}
	return false
}

// IsReturn reports whether instr is the canonical "bx lr" or
// "ldmfd sp!, {pc}" return idiom.
func IsReturn(instr uint32) bool {
	return instr == 0xe12fff1e || instr == 0xe8bd8800
}
