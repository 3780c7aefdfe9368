package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/mythos/vm"
)

// ErrWorkerStopped is returned by Do and Eval after Stop.
var ErrWorkerStopped = errors.New("worker stopped")

// request represents a unit of work to be executed on the engine goroutine.
type request struct {
	fn   func(*Engine) interface{}
	done chan result
}

// result holds the return value from an engine operation.
type result struct {
	value interface{}
	err   error
}

// Worker serializes all engine access through a single goroutine. The
// interpreter is single-threaded; concurrent hosts (the language server's
// request handlers in particular) must go through the worker to avoid data
// races.
type Worker struct {
	engine   *Engine
	requests chan request
	quit     chan struct{}
	stop     sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(e *Engine) *Worker {
	w := &Worker{
		engine:   e,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			// Fail any requests that were queued before Stop.
			for {
				select {
				case req := <-w.requests:
					req.done <- result{err: ErrWorkerStopped}
				default:
					return
				}
			}
		}
	}
}

// execute runs a function on the engine, recovering from panics.
func (w *Worker) execute(fn func(*Engine) interface{}) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%v", r)
			}
		}()
		res.value = fn(w.engine)
	}()
	return res
}

// Do submits a function for execution on the engine goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *Worker) Do(fn func(*Engine) interface{}) (interface{}, error) {
	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		// The worker may have finished the request just as it stopped.
		select {
		case res := <-req.done:
			return res.value, res.err
		default:
			return nil, ErrWorkerStopped
		}
	}
}

// Eval runs Engine.Eval on the worker goroutine.
func (w *Worker) Eval(source string) (vm.Value, error) {
	var evalErr error
	value, err := w.Do(func(e *Engine) interface{} {
		v, err := e.Eval(source)
		evalErr = err
		return v
	})
	if err != nil {
		return vm.Value{}, err
	}
	if evalErr != nil {
		return vm.Value{}, evalErr
	}
	return value.(vm.Value), nil
}

// Stop shuts down the worker goroutine. Requests in flight or queued fail
// with ErrWorkerStopped. Safe to call more than once.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
}
