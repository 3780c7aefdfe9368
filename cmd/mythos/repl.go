package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chazu/mythos/engine"
)

// runREPL reads input line by line. Multi-line input accumulates until
// an empty line executes the buffer.
func runREPL(cfg engine.Config) {
	cfg.AutoPop = false
	cfg.ImplicitReturn = true
	eng := engine.New(cfg)

	fmt.Printf("Mythos %s REPL. Type :help for commands, exit to leave.\n", version)

	scanner := bufio.NewScanner(os.Stdin)
	var lineBuffer strings.Builder

	for {
		if lineBuffer.Len() == 0 {
			fmt.Print(">> ")
		} else {
			fmt.Print(".. ")
		}

		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if lineBuffer.Len() == 0 {
			if trimmed == "exit" || trimmed == "quit" {
				return
			}
			if strings.HasPrefix(trimmed, ":") {
				if handleREPLCommand(eng, trimmed) {
					return
				}
				continue
			}
		}

		if trimmed == "" {
			if lineBuffer.Len() > 0 {
				evalAndPrint(eng, lineBuffer.String())
				lineBuffer.Reset()
			}
			continue
		}

		lineBuffer.WriteString(line)
		lineBuffer.WriteString("\n")

		// Single complete lines execute immediately; an unclosed brace
		// keeps accumulating.
		if !wantsMore(lineBuffer.String()) {
			evalAndPrint(eng, lineBuffer.String())
			lineBuffer.Reset()
		}
	}
}

func evalAndPrint(eng *engine.Engine, source string) {
	v, err := eng.EvalNamed(source, "<repl>")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if v.IsNoValue() {
		return
	}
	fmt.Println(v.Display())
}

// handleREPLCommand processes ':' meta-commands. Returns true to exit.
func handleREPLCommand(eng *engine.Engine, cmd string) bool {
	name, rest, _ := strings.Cut(cmd, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case ":help":
		fmt.Println("Commands:")
		fmt.Println("  :help           show this help")
		fmt.Println("  :globals        list global bindings")
		fmt.Println("  :disasm <code>  show bytecode for an expression")
		fmt.Println("  :quit           leave the REPL (also: exit, quit)")
		fmt.Println("Finish multi-line input with an empty line.")
	case ":globals":
		globals := eng.Globals()
		names := make([]string, 0, len(globals))
		for n := range globals {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Printf("  %s = %s\n", n, globals[n].Display())
		}
	case ":disasm":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: :disasm <code>")
			return false
		}
		unit, err := eng.Compile(rest, "<repl>")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		fmt.Print(unit.Disassemble())
	case ":quit":
		return true
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s (try :help)\n", name)
	}
	return false
}

// wantsMore reports whether the buffered input has unclosed braces,
// brackets, or parens and should keep accumulating lines.
func wantsMore(source string) bool {
	depth := 0
	inString := false
	var quote byte
	for i := 0; i < len(source); i++ {
		ch := source[i]
		if inString {
			if ch == '\\' {
				i++
			} else if ch == quote {
				inString = false
			}
			continue
		}
		switch ch {
		case '"', '\'':
			inString = true
			quote = ch
		case '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		}
	}
	return depth > 0
}
