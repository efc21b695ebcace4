// Package syscalls maps ARM EABI syscall numbers to their names, for
// report text only; armrecon never interprets syscall behavior.
package syscalls

// names holds the subset of the ARM EABI (OABI-compatible) unistd.h
// syscall table most commonly seen in statically-linked ARMv5 binaries.
// Extend as needed; an unrecognized number renders as "unknown" rather
// than failing the run.
var names = map[int]string{
	1:   "exit",
	2:   "fork",
	3:   "read",
	4:   "write",
	5:   "open",
	6:   "close",
	9:   "link",
	10:  "unlink",
	11:  "execve",
	12:  "chdir",
	13:  "time",
	14:  "mknod",
	15:  "chmod",
	19:  "lseek",
	20:  "getpid",
	33:  "access",
	37:  "kill",
	38:  "rename",
	39:  "mkdir",
	40:  "rmdir",
	41:  "dup",
	42:  "pipe",
	45:  "brk",
	54:  "ioctl",
	63:  "dup2",
	64:  "getppid",
	90:  "mmap",
	91:  "munmap",
	114: "wait4",
	120: "clone",
	122: "uname",
	125: "mprotect",
	140: "_llseek",
	146: "writev",
	162: "nanosleep",
	174: "rt_sigaction",
	183: "getcwd",
	186: "sigaltstack",
	192: "mmap2",
	195: "stat64",
	197: "fstat64",
	199: "getuid32",
	200: "getgid32",
	224: "gettid",
	240: "futex",
	248: "exit_group",
	268: "tgkill",
}

// Name returns the name of syscall number n, or "unknown" if n is
// unrecognized or negative (the sentinel for "not statically recoverable").
func Name(n int) string {
	if name, ok := names[n]; ok {
		return name
	}
	return "unknown"
}
