package vm

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Profiler collects per-opcode execution counts and per-function call
// counts with cumulative time. Counters are atomic so a monitoring
// goroutine may read totals while the VM is mid-run; the VM itself writes
// from a single goroutine.

// FuncProfile holds profiling data for a single user function.
type FuncProfile struct {
	CallCount uint64 // atomic
	TotalNs   int64  // atomic, cumulative wall time
}

// Profiler attaches to a VM with SetProfiler.
type Profiler struct {
	opCounts [256]uint64 // atomic, indexed by opcode

	funcProfiles sync.Map // function name -> *FuncProfile
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

func (p *Profiler) countOp(op Opcode) {
	atomic.AddUint64(&p.opCounts[op], 1)
}

func (p *Profiler) countCall(name string, d time.Duration) {
	val, _ := p.funcProfiles.LoadOrStore(name, &FuncProfile{})
	profile := val.(*FuncProfile)
	atomic.AddUint64(&profile.CallCount, 1)
	atomic.AddInt64(&profile.TotalNs, d.Nanoseconds())
}

// OpCount returns the number of times an opcode has executed.
func (p *Profiler) OpCount(op Opcode) uint64 {
	return atomic.LoadUint64(&p.opCounts[op])
}

// TotalInstructions returns the total number of instructions executed.
func (p *Profiler) TotalInstructions() uint64 {
	var total uint64
	for i := range p.opCounts {
		total += atomic.LoadUint64(&p.opCounts[i])
	}
	return total
}

// FuncStats returns the call count and cumulative time for a function,
// or zeros when it was never called.
func (p *Profiler) FuncStats(name string) (calls uint64, total time.Duration) {
	val, ok := p.funcProfiles.Load(name)
	if !ok {
		return 0, 0
	}
	profile := val.(*FuncProfile)
	return atomic.LoadUint64(&profile.CallCount), time.Duration(atomic.LoadInt64(&profile.TotalNs))
}

// Report writes a formatted profile: opcodes by descending count, then
// functions by descending cumulative time.
func (p *Profiler) Report(w io.Writer) error {
	type opRow struct {
		op    Opcode
		count uint64
	}
	var ops []opRow
	for i := range p.opCounts {
		if c := atomic.LoadUint64(&p.opCounts[i]); c > 0 {
			ops = append(ops, opRow{Opcode(i), c})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].count != ops[j].count {
			return ops[i].count > ops[j].count
		}
		return ops[i].op < ops[j].op
	})

	if _, err := fmt.Fprintf(w, "instructions executed: %d\n", p.TotalInstructions()); err != nil {
		return err
	}
	for _, row := range ops {
		if _, err := fmt.Fprintf(w, "  %-18s %d\n", row.op, row.count); err != nil {
			return err
		}
	}

	type fnRow struct {
		name  string
		calls uint64
		total time.Duration
	}
	var fns []fnRow
	p.funcProfiles.Range(func(key, val any) bool {
		profile := val.(*FuncProfile)
		fns = append(fns, fnRow{
			name:  key.(string),
			calls: atomic.LoadUint64(&profile.CallCount),
			total: time.Duration(atomic.LoadInt64(&profile.TotalNs)),
		})
		return true
	})
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].total != fns[j].total {
			return fns[i].total > fns[j].total
		}
		return fns[i].name < fns[j].name
	})

	if len(fns) > 0 {
		if _, err := fmt.Fprintln(w, "functions:"); err != nil {
			return err
		}
		for _, row := range fns {
			if _, err := fmt.Fprintf(w, "  %-18s calls=%d total=%s\n", row.name, row.calls, row.total); err != nil {
				return err
			}
		}
	}
	return nil
}
