// Mythos CLI - the main entry point for running Mythos programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/mythos/engine"
	"github.com/chazu/mythos/manifest"
	"github.com/chazu/mythos/server"
	"github.com/chazu/mythos/vm"
)

const version = "0.1.0"

func main() {
	evalSource := flag.String("e", "", "Evaluate a one-line program and exit")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	build := flag.Bool("build", false, "Compile to a .mythosb artifact instead of running")
	output := flag.String("o", "", "Artifact path for -build (default: source path with .mythosb)")
	disasm := flag.Bool("disasm", false, "Print the compiled bytecode listing and exit")
	lsp := flag.Bool("lsp", false, "Start the language server on stdio")
	profile := flag.Bool("profile", false, "Print an execution profile to stderr after running")
	trace := flag.Bool("trace", false, "Trace every instruction to stderr")
	autopop := flag.Bool("autopop", false, "Pop bare expression statement values")
	depth := flag.Int("depth", 0, "Call depth limit (0: default)")
	initProject := flag.Bool("init", false, "Write a mythos.toml and starter program in the current directory")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "mythos %s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: mythos [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a .mythos program or a compiled .mythosb artifact.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mythos program.mythos            # Run a program\n")
		fmt.Fprintf(os.Stderr, "  mythos -e 'print(6 * 7)'         # One-liner\n")
		fmt.Fprintf(os.Stderr, "  mythos -i                        # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  mythos -build -o out.mythosb program.mythos\n")
		fmt.Fprintf(os.Stderr, "  mythos -disasm program.mythos    # Show bytecode\n")
		fmt.Fprintf(os.Stderr, "  mythos -lsp                      # Language server on stdio\n")
		fmt.Fprintf(os.Stderr, "  mythos -init                     # Scaffold a project\n")
	}
	flag.Parse()

	if *initProject {
		if err := scaffoldProject(); err != nil {
			fail(err)
		}
		return
	}

	cfg := engine.Config{}

	// Manifest values come first; explicitly set flags override them.
	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fail(err)
	}
	useCache := false
	if mf != nil {
		cfg.AutoPop = mf.Run.AutoPop
		cfg.MaxCallDepth = mf.Run.CallDepth
		useCache = mf.Run.UseCache
		if mf.Run.Trace {
			*trace = true
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "using manifest %s\n", filepath.Join(mf.Dir, manifest.FileName))
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "autopop":
			cfg.AutoPop = *autopop
		case "depth":
			cfg.MaxCallDepth = *depth
		}
	})

	if *lsp {
		if err := server.NewLSP(engine.New(cfg)).Run(); err != nil {
			fail(err)
		}
		return
	}

	eng := engine.New(cfg)

	var prof *vm.Profiler
	if *profile {
		prof = vm.NewProfiler()
		eng.VM().SetProfiler(prof)
	}
	if *trace {
		eng.VM().SetHook(func(machine *vm.VM, u *vm.Unit, ip int) error {
			fmt.Fprintf(os.Stderr, "[%s %04d] %s\n", u.Name, ip, u.Instructions[ip].String())
			return nil
		})
	}

	switch {
	case *evalSource != "":
		if _, err := eng.Eval(*evalSource); err != nil {
			fail(err)
		}

	case *interactive || (flag.NArg() == 0 && mf == nil):
		runREPL(cfg)
		return

	case flag.NArg() == 0:
		// A manifest without an explicit file runs the project entry.
		if err := runFile(eng, mf, mf.EntryPath(), *build, *disasm, *output, useCache, *verbose); err != nil {
			fail(err)
		}

	default:
		if err := runFile(eng, mf, flag.Arg(0), *build, *disasm, *output, useCache, *verbose); err != nil {
			fail(err)
		}
	}

	if prof != nil {
		fmt.Fprintln(os.Stderr)
		if err := prof.Report(os.Stderr); err != nil {
			fail(err)
		}
	}
}

// runFile handles the file-driven modes: run, -build, and -disasm, for
// both .mythos source and .mythosb artifacts.
func runFile(eng *engine.Engine, mf *manifest.Manifest, path string, build, disasm bool, output string, useCache, verbose bool) error {
	if strings.HasSuffix(path, ".mythosb") {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		unit, err := vm.UnmarshalUnit(data)
		if err != nil {
			return err
		}
		if disasm {
			fmt.Print(unit.Disassemble())
			return nil
		}
		if build {
			return errors.New("already a compiled artifact")
		}
		_, err = eng.Run(unit)
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	source := string(data)
	name := filepath.Base(path)

	unit, err := compileMaybeCached(eng, mf, source, name, useCache, verbose)
	if err != nil {
		return err
	}

	switch {
	case disasm:
		fmt.Print(unit.Disassemble())
		return nil
	case build:
		out := output
		if out == "" {
			out = strings.TrimSuffix(path, ".mythos") + ".mythosb"
		}
		artifact, err := unit.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, artifact, 0o644); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", out, len(artifact))
		}
		return nil
	default:
		_, err := eng.Run(unit)
		return err
	}
}

// compileMaybeCached consults the project's build cache when the manifest
// enables it.
func compileMaybeCached(eng *engine.Engine, mf *manifest.Manifest, source, name string, useCache, verbose bool) (*vm.Unit, error) {
	if !useCache || mf == nil {
		return eng.Compile(source, name)
	}

	cachePath := mf.CachePath()
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, err
	}
	cache, err := engine.OpenCache(cachePath)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	if unit, err := cache.Get(source); err == nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "cache hit for %s\n", name)
		}
		return unit, nil
	} else if !errors.Is(err, engine.ErrCacheMiss) {
		return nil, err
	}

	unit, err := eng.Compile(source, name)
	if err != nil {
		return nil, err
	}
	if err := cache.Put(source, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

// scaffoldProject writes a mythos.toml and a starter program.
func scaffoldProject() error {
	if _, err := os.Stat(manifest.FileName); err == nil {
		return fmt.Errorf("%s already exists", manifest.FileName)
	}

	manifestText := `[project]
name = "myproject"
version = "0.1.0"
entry = "main.mythos"

[build]
output = "main.mythosb"
cache = ".mythos/cache.db"

[run]
auto-pop = true
call-depth = 1000
use-cache = false
`
	starter := `# main.mythos

function greet(name) {
    return "Hello, " + name + "!"
}

print(greet("世界"))
`
	if err := os.WriteFile(manifest.FileName, []byte(manifestText), 0o644); err != nil {
		return err
	}
	if _, err := os.Stat("main.mythos"); os.IsNotExist(err) {
		if err := os.WriteFile("main.mythos", []byte(starter), 0o644); err != nil {
			return err
		}
	}
	fmt.Println("wrote mythos.toml and main.mythos")
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "mythos: %v\n", err)
	os.Exit(1)
}
