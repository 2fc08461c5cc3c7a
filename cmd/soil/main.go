// Command soil runs a Soil executable: <prog> <binary-file> [<program
// args>...] (spec.md §6). It picks the JIT backend when the host supports
// it, falls back to the interpreter otherwise, and always honors -interp
// to force the fallback regardless of host support.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/compiler"
	"github.com/MarcelGarus/soil-sub000/internal/interp"
	"github.com/MarcelGarus/soil-sub000/internal/platform"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/trace"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdErr *os.File) int {
	flags := flag.NewFlagSet("soil", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var useInterp bool
	flags.BoolVar(&useInterp, "interp", false, "Use the interpreter backend even when the JIT is available.")

	var configPath string
	flags.StringVar(&configPath, "config", "", "Path to a YAML file overriding the default VM configuration.")

	var noCrashDump bool
	flags.BoolVar(&noCrashDump, "no-crash-dump", false, "Disable writing a crash dump on an uncaught panic.")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "usage: soil [flags] <binary-file> [<program args>...]")
		flags.PrintDefaults()
		return 2
	}
	binPath := flags.Arg(0)
	progArgs := flags.Args()[1:]

	cfg := vm.DefaultConfig()
	if configPath != "" {
		loaded, err := vm.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(stdErr, "soil: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	f, err := os.Open(binPath)
	if err != nil {
		fmt.Fprintf(stdErr, "soil: %v\n", err)
		return 1
	}
	prog, err := binary.Load(f, cfg.MemSize)
	f.Close()
	if err != nil {
		fmt.Fprintf(stdErr, "soil: %v\n", err)
		return 1
	}

	v := vm.New(prog, cfg, progArgs)
	table := syscalls.NewTable()

	var runErr error
	if !useInterp && platform.CompilerSupported() {
		runErr = compiler.Run(v, table)
	} else {
		runErr = interp.New(v, table).Run()
	}

	if runErr == nil {
		return v.ExitCode
	}

	var frames []trace.Frame
	var regs trace.Registers
	var cause error
	var fatalInterp *interp.FatalError
	var fatalCompiler *compiler.FatalError
	switch {
	case errors.As(runErr, &fatalInterp):
		frames, regs, cause = fatalInterp.Frames, fatalInterp.Registers, fatalInterp.Cause
	case errors.As(runErr, &fatalCompiler):
		frames, regs, cause = fatalCompiler.Frames, fatalCompiler.Registers, fatalCompiler.Cause
	default:
		fmt.Fprintf(stdErr, "soil: %v\n", runErr)
		return 1
	}

	fmt.Fprintf(stdErr, "soil: uncaught panic: %v\n", cause)
	text := trace.Format(prog.Labels, frames, regs)
	fmt.Fprint(stdErr, text)

	if !noCrashDump {
		if err := os.WriteFile("crash", v.Mem[:cfg.MemSize], 0o644); err != nil {
			fmt.Fprintf(stdErr, "soil: writing crash dump: %v\n", err)
		}
	}

	return 1
}
