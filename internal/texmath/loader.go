package texmath

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Loader.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// LoadFunc produces a ready Compiler. It runs at most once per successful
// initialization.
type LoadFunc func(ctx context.Context) (Compiler, error)

// Loader memoizes an asynchronous compiler initialization. Concurrent callers
// that arrive while a load is in flight share that load's result.
type Loader struct {
	load LoadFunc

	mu       sync.Mutex
	state    State
	pending  *future
	compiler Compiler

	loads atomic.Int64
}

type future struct {
	done     chan struct{}
	compiler Compiler
	err      error
}

// NewLoader creates a Loader around load.
func NewLoader(load LoadFunc) *Loader {
	return &Loader{load: load}
}

// DefaultLoader loads a treeblood Typesetter and checks it with a probe
// expression before reporting ready.
func DefaultLoader(opts ...Option) *Loader {
	return NewLoader(func(ctx context.Context) (Compiler, error) {
		t := New(opts...)
		if frag := t.Compile("x", Inline); frag.Fallback {
			return nil, fmt.Errorf("texmath: probe expression failed to compile")
		}
		return t, nil
	})
}

// Get returns the compiler, starting the load on first use. The load itself
// is detached from ctx: a caller giving up does not cancel it for others.
func (l *Loader) Get(ctx context.Context) (Compiler, error) {
	l.mu.Lock()
	switch l.state {
	case Ready:
		c := l.compiler
		l.mu.Unlock()
		return c, nil
	case Initializing:
		f := l.pending
		l.mu.Unlock()
		return f.wait(ctx)
	}
	f := &future{done: make(chan struct{})}
	l.state = Initializing
	l.pending = f
	l.mu.Unlock()

	go l.run(f)
	return f.wait(ctx)
}

func (l *Loader) run(f *future) {
	l.loads.Add(1)

	var (
		c   Compiler
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("texmath: loader panicked: %v", r)
			}
		}()
		c, err = l.load(context.Background())
	}()
	if err == nil && c == nil {
		err = fmt.Errorf("texmath: loader returned no compiler")
	}

	l.mu.Lock()
	if err != nil {
		l.state = Uninitialized
	} else {
		l.state = Ready
		l.compiler = c
	}
	l.pending = nil
	l.mu.Unlock()

	f.compiler, f.err = c, err
	close(f.done)
}

func (f *future) wait(ctx context.Context) (Compiler, error) {
	select {
	case <-f.done:
		return f.compiler, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State reports the current lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Loads reports how many times the underlying LoadFunc has run.
func (l *Loader) Loads() int64 {
	return l.loads.Load()
}
