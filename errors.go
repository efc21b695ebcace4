package armrecon

import "fmt"

// FatalDecodeError is returned when the classifier encounters an
// instruction form this release does not support, such as BLX(1), which
// requires a Thumb target and therefore cannot occur in ARMv5 input.
type FatalDecodeError struct {
	PC      Address
	Message string
}

func (e *FatalDecodeError) Error() string {
	return fmt.Sprintf("decode error at pc=0x%08x: %s", uint32(e.PC), e.Message)
}

// FatalMemoryError is returned when a read is attempted at an address
// outside every loaded, allocatable section of the program image.
type FatalMemoryError struct {
	Addr Address
}

func (e *FatalMemoryError) Error() string {
	return fmt.Sprintf("read at invalid address 0x%08x", uint32(e.Addr))
}

// UsageError indicates a missing or contradictory CLI argument.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// UnresolvedSymbolError indicates a -f argument that is neither a parsable
// hex address nor a known symbol name.
type UnresolvedSymbolError struct {
	Name string
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("function not found: %q", e.Name)
}

// InvariantViolationError indicates a bug: a precondition the caller was
// responsible for upholding did not hold. IntervalSet.Add is the only
// caller in this package that can raise it.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Message)
}
