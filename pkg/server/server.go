// Package server owns the shared service instance and the lifecycle of the
// protocol adapter tasks that expose it.
//
// A Builder is seeded with one service instance and a contract describing
// it. Protocol packages contribute Factory values; Build consumes every
// factory exactly once and starts one goroutine per resulting Task. The
// returned Runner blocks in Run until a shutdown signal, then cancels all
// tasks.
//
// All adapters dispatch method calls through the one Shared handle, which
// serializes every invocation behind a single mutex: at most one method body
// executes at a time, across all protocols and all connections. The lock is
// taken immediately before the call and released immediately after; it is
// never held across network I/O.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/triwire/triwire/pkg/contract"
	"github.com/triwire/triwire/pkg/log"
)

// ErrSpawnFailed is returned by Build when a protocol factory cannot
// produce its task.
var ErrSpawnFailed = errors.New("server: failed to spawn protocol task")

// Task is a long-running listener loop. It must return when ctx is
// cancelled; returning an error reports an adapter failure (such as a bind
// failure) that terminates that adapter only.
type Task func(ctx context.Context) error

// Factory defers construction of a protocol's Task until Build time, when
// the shared service handle exists. A Factory is consumed exactly once.
type Factory func(shared *Shared) (Task, error)

// Shared is the single synchronized ownership wrapper around the bound
// service instance. Every adapter invokes methods through it.
type Shared struct {
	mu      sync.Mutex
	binding *contract.Binding
}

// Lookup returns the bound method for a wire name.
func (s *Shared) Lookup(name string) (*contract.BoundMethod, bool) {
	return s.binding.Method(name)
}

// Methods returns all bound methods in registration order.
func (s *Shared) Methods() []*contract.BoundMethod {
	return s.binding.Methods()
}

// Invoke calls the method while holding the service lock. Decoding of
// arguments and encoding of the result happen outside the lock, in the
// calling adapter.
func (s *Shared) Invoke(ctx context.Context, m *contract.BoundMethod, args []any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.Call(ctx, args)
}

// Builder accumulates protocol factories around one service instance. It
// performs no I/O until Build.
type Builder struct {
	shared    *Shared
	factories []Factory
	logger    log.Logger
	built     bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used by the Builder and Runner.
func WithLogger(l log.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder binds the contract against the service instance and wraps it
// in the shared exclusive-access handle. Binding errors (missing methods,
// signature mismatches) surface here, before any listener exists.
func NewBuilder(c *contract.Contract, svc any, opts ...Option) (*Builder, error) {
	binding, err := contract.Bind(c, svc)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		shared: &Shared{binding: binding},
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Shared exposes the service handle, mainly so adapters can be exercised
// directly without going through Build.
func (b *Builder) Shared() *Shared {
	return b.shared
}

// AddProtocol appends a protocol factory. No I/O happens until Build.
func (b *Builder) AddProtocol(f Factory) *Builder {
	b.factories = append(b.factories, f)
	return b
}

// Build consumes every registered factory and starts one goroutine per
// produced task. A factory error fails the build before any later factory
// runs. Individual task failures after Build (for example a bind failure)
// are logged and terminate that task only.
func (b *Builder) Build() (*Runner, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already consumed", ErrSpawnFailed)
	}
	b.built = true

	tasks := make([]Task, 0, len(b.factories))
	for _, f := range b.factories {
		task, err := f(b.shared)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		tasks = append(tasks, task)
	}
	b.factories = nil

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cancel: cancel,
		logger: b.logger,
	}
	for _, task := range tasks {
		task := task
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("protocol task exited: " + err.Error())
			}
		}()
	}
	return r, nil
}

// Runner owns the spawned listener goroutines.
type Runner struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger
}

// Run blocks until an interrupt/termination signal arrives or ctx is
// cancelled, then aborts every task. In-flight requests are not drained.
func (r *Runner) Run(ctx context.Context) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sctx.Done()
	r.logger.Info("shutdown signal received, aborting protocol tasks")
	r.Shutdown()
	return nil
}

// Shutdown cancels all tasks and waits for their goroutines to return.
// Listeners close as part of cancellation, so this does not wait on
// in-flight requests beyond the currently executing method call.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}
