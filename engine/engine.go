package engine

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/mythos/compiler"
	"github.com/chazu/mythos/vm"
)

var log = commonlog.GetLogger("mythos.engine")

// ---------------------------------------------------------------------------
// Engine: the front-end facade over scan → parse → compile → run
// ---------------------------------------------------------------------------

// Config configures a new engine.
type Config struct {
	// AutoPop makes bare expression statements pop their value, so programs
	// end with an empty operand stack.
	AutoPop bool

	// ImplicitReturn makes a trailing bare expression the unit result. The
	// REPL turns this on.
	ImplicitReturn bool

	// MaxCallDepth bounds user recursion; 0 keeps the VM default.
	MaxCallDepth int

	// Output receives print output; nil means stdout.
	Output io.Writer
}

// Error is the engine's uniform error surface. Kind carries one of the
// language taxonomy names: LexError, SyntaxError, NameError, TypeError,
// ArithmeticError, LookupError. Column is 0 for runtime errors, which
// track lines only.
type Error struct {
	Kind    string
	Message string
	Line    int
	Column  int
}

func (e *Error) Error() string {
	switch {
	case e.Column > 0:
		return fmt.Sprintf("%s: %s (line %d, column %d)", e.Kind, e.Message, e.Line, e.Column)
	case e.Line > 0:
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Line)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Engine owns one VM. Globals persist across Eval calls, so one engine can
// back a REPL session. An Engine is not safe for concurrent use; wrap it in
// a Worker when multiple goroutines need it.
type Engine struct {
	vm   *vm.VM
	opts compiler.Options
}

// New creates an engine.
func New(cfg Config) *Engine {
	machine := vm.New()
	if cfg.Output != nil {
		machine.SetOutput(cfg.Output)
	} else {
		machine.SetOutput(os.Stdout)
	}
	machine.SetMaxCallDepth(cfg.MaxCallDepth)
	return &Engine{
		vm: machine,
		opts: compiler.Options{
			AutoPop:        cfg.AutoPop,
			ImplicitReturn: cfg.ImplicitReturn,
		},
	}
}

// Compile runs the front half of the pipeline only.
func (e *Engine) Compile(source, name string) (*vm.Unit, error) {
	unit, cerr := compiler.CompileSource(source, name, e.opts)
	if cerr != nil {
		return nil, convertError(cerr)
	}
	log.Debugf("compiled %q: %d instructions, %d constants",
		name, len(unit.Instructions), len(unit.Constants))
	return unit, nil
}

// Eval compiles and runs source against the engine's VM. The result is the
// unit's RETURN value, or the no-value marker when execution falls off the
// end.
func (e *Engine) Eval(source string) (vm.Value, error) {
	return e.EvalNamed(source, "<main>")
}

// EvalNamed is Eval with an explicit unit name for listings and errors.
func (e *Engine) EvalNamed(source, name string) (vm.Value, error) {
	unit, err := e.Compile(source, name)
	if err != nil {
		return vm.Value{}, err
	}
	return e.Run(unit)
}

// Run executes an already-compiled unit.
func (e *Engine) Run(unit *vm.Unit) (vm.Value, error) {
	result, err := e.vm.Run(unit)
	if err != nil {
		log.Errorf("run %q: %s", unit.Name, err.Error())
		return vm.Value{}, convertError(err)
	}
	return result, nil
}

// Globals returns a snapshot of the VM's global mapping.
func (e *Engine) Globals() map[string]vm.Value {
	return e.vm.GlobalsSnapshot()
}

// VM exposes the underlying VM for profiling, debugging, and scene/app
// inspection.
func (e *Engine) VM() *vm.VM {
	return e.vm
}

// convertError maps compile and runtime errors onto *Error. Sentinels like
// vm.ErrCallDepth pass through so callers can still branch on them.
func convertError(err error) error {
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		return &Error{
			Kind:    string(cerr.Kind),
			Message: cerr.Message,
			Line:    cerr.Pos.Line,
			Column:  cerr.Pos.Column,
		}
	}
	var rerr *vm.RuntimeError
	if errors.As(err, &rerr) {
		return &Error{
			Kind:    string(rerr.Kind),
			Message: rerr.Message,
			Line:    rerr.Line,
		}
	}
	return err
}
