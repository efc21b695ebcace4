// Command armrecon statically reconstructs functions and control-flow
// graphs from a 32-bit ARMv5 ELF executable.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v2"
	"github.com/kr/pretty"

	"armrecon"
	"armrecon/elfimage"
	"armrecon/report"
)

func main() {
	app := cli.NewApp()
	app.Name = "armrecon"
	app.Usage = "reconstruct functions and control-flow graphs from an ARMv5 ELF executable"
	app.ArgsUsage = "image"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:      "fn",
			Usage:     "dump functions",
			ArgsUsage: "image",
			Flags:     flags(),
			Action:    runFn,
		},
		{
			Name:      "cg",
			Usage:     "dump the whole-program call graph, in dot format",
			ArgsUsage: "image",
			Flags:     flags(),
			Action:    runCG,
		},
		{
			Name:      "cfg",
			Usage:     "dump one function's control-flow graph, in dot format (requires -f)",
			ArgsUsage: "image",
			Flags:     flags(),
			Action:    runCFG,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, formatErr(err))
		os.Exit(1)
	}
}

// compactCount holds the number of times -c was given on the current
// invocation; urfave/cli/v2's BoolFlag.Count increments it per occurrence,
// the same way the original's getopt loop did "case 'c': compacity++".
var compactCount int

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "s", Usage: "include startup/stdlib functions"},
		&cli.StringFlag{Name: "f", Usage: "restrict to one function (name or 0x hex address)"},
		&cli.BoolFlag{Name: "c", Usage: "compact (repeat for very-compact)", Count: &compactCount},
		&cli.BoolFlag{Name: "debug", Usage: "fn only: dump the raw program model with kr/pretty before reporting"},
	}
}

// formatErr prefixes the message so automation can tell a malformed input
// binary (fatal*, InvariantViolation) apart from a plain usage mistake.
func formatErr(err error) string {
	switch err.(type) {
	case *armrecon.FatalDecodeError, *armrecon.FatalMemoryError, *armrecon.InvariantViolationError:
		return "fatal: " + err.Error()
	default:
		return err.Error()
	}
}

func buildProgram(file string) (*armrecon.Program, armrecon.Loader, error) {
	loader, err := elfimage.Open(file)
	if err != nil {
		return nil, nil, err
	}

	prog := &armrecon.Program{EntryFunc: armrecon.NoFunction}
	walker := armrecon.NewWalker(loader, prog)
	stdlibAddrs, err := walker.Walk(loader.EntryPoint(), armrecon.DefaultStartupHeuristic())
	if err != nil {
		return nil, nil, err
	}

	rec := armrecon.NewReconstructor(loader)
	if err := rec.Reconstruct(prog, stdlibAddrs); err != nil {
		return nil, nil, err
	}

	return prog, loader, nil
}

func compacity(c *cli.Context) report.Compacity {
	switch {
	case compactCount >= 2:
		return report.VeryCompact
	case compactCount == 1:
		return report.Compact
	default:
		return report.Debug
	}
}

// resolveFunctionFlag implements the original's symbol-or-hex resolution
// for -f: try a 0x-prefixed hex address first, then fall back to the
// symbol table.
func resolveFunctionFlag(loader armrecon.Loader, value string) (armrecon.Address, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		n, err := strconv.ParseUint(value[2:], 16, 32)
		if err != nil {
			return 0, &armrecon.UnresolvedSymbolError{Name: value}
		}
		return armrecon.Address(n), nil
	}
	if addr, ok := loader.SymbolAddress(value); ok {
		return addr, nil
	}
	return 0, &armrecon.UnresolvedSymbolError{Name: value}
}

func imageArg(c *cli.Context) (string, error) {
	if c.Args().Len() < 1 {
		return "", &armrecon.UsageError{Message: "missing image argument"}
	}
	return c.Args().First(), nil
}

func runFn(c *cli.Context) error {
	file, err := imageArg(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	prog, loader, err := buildProgram(file)
	if err != nil {
		return cli.Exit(formatErr(err), 1)
	}

	if c.Bool("debug") {
		fmt.Fprintf(os.Stdout, "%# v\n", pretty.Formatter(prog))
	}

	comp := compacity(c)
	showStdlib := c.Bool("s")

	if name := c.String("f"); name != "" {
		addr, err := resolveFunctionFlag(loader, name)
		if err != nil {
			return cli.Exit(err, 1)
		}
		if !report.DumpFunctionByAddr(os.Stdout, prog, addr, comp) {
			return cli.Exit(&armrecon.UnresolvedSymbolError{Name: name}, 1)
		}
		return nil
	}

	report.DumpFunctions(os.Stdout, prog, showStdlib, comp)
	return nil
}

func runCG(c *cli.Context) error {
	file, err := imageArg(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	prog, _, err := buildProgram(file)
	if err != nil {
		return cli.Exit(formatErr(err), 1)
	}

	report.DumpCallGraph(os.Stdout, prog, c.Bool("s"))
	return nil
}

func runCFG(c *cli.Context) error {
	file, err := imageArg(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	name := c.String("f")
	if name == "" {
		return cli.Exit(&armrecon.UsageError{Message: "cfg requires -f"}, 1)
	}

	prog, loader, err := buildProgram(file)
	if err != nil {
		return cli.Exit(formatErr(err), 1)
	}

	addr, err := resolveFunctionFlag(loader, name)
	if err != nil {
		return cli.Exit(err, 1)
	}

	id := prog.FunctionByVaddr(addr)
	if id == -1 {
		return cli.Exit(&armrecon.UnresolvedSymbolError{Name: name}, 1)
	}

	builder := armrecon.NewCFGBuilder(prog)
	cfg := builder.Build(&prog.Functions[id])
	report.DumpCFG(os.Stdout, cfg)
	return nil
}
