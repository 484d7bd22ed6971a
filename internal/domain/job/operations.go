// Package job holds the pure computations jobs execute and the registry that resolves them.
package job

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/target/jobqueue/internal/domain/model"
)

var (
	// ErrUnsupportedOperation indicates the operation is not registered.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrNonFiniteResult indicates a computation overflowed or produced NaN.
	ErrNonFiniteResult = errors.New("result is not a finite number")
)

// Outcome is the explicit result of running an operation: either a value or a failure reason.
type Outcome struct {
	value float64
	err   error
}

// Ok wraps a successful value.
func Ok(v float64) Outcome { return Outcome{value: v} }

// Err wraps a failure reason.
func Err(err error) Outcome {
	if err == nil {
		err = errors.New("operation failed")
	}
	return Outcome{err: err}
}

// IsOk reports whether the outcome carries a value.
func (o Outcome) IsOk() bool { return o.err == nil }

// Value returns the computed value. It is zero for failed outcomes.
func (o Outcome) Value() float64 { return o.value }

// Reason returns the failure reason, or nil for successful outcomes.
func (o Outcome) Reason() error { return o.err }

// Func is a pure computation over an ordered input sequence.
type Func func(input []float64) Outcome

// Registry maps operation names to their computations. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[model.Operation]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[model.Operation]Func)}
}

// DefaultRegistry returns a registry with square_sum and cube_sum.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(model.OperationSquareSum, PowerSum(2))
	r.MustRegister(model.OperationCubeSum, PowerSum(3))
	return r
}

// Register adds an operation. Registering the same name twice is an error.
func (r *Registry) Register(op model.Operation, fn Func) error {
	if op == "" {
		return errors.New("operation name is required")
	}
	if fn == nil {
		return fmt.Errorf("operation %q: func is required", op)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op]; exists {
		return fmt.Errorf("operation %q already registered", op)
	}
	r.ops[op] = fn
	return nil
}

// MustRegister is like Register but panics on error. Intended for static setup.
func (r *Registry) MustRegister(op model.Operation, fn Func) {
	if err := r.Register(op, fn); err != nil {
		panic(err)
	}
}

// Supports reports whether op is registered.
func (r *Registry) Supports(op model.Operation) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ops[op]
	return ok
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []model.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Operation, 0, len(r.ops))
	for op := range r.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs op over input. Unknown operations, panics and non-finite
// values are returned as failed outcomes.
func (r *Registry) Execute(op model.Operation, input []float64) (out Outcome) {
	r.mu.RLock()
	fn, ok := r.ops[op]
	r.mu.RUnlock()
	if !ok {
		return Err(fmt.Errorf("%w: %q", ErrUnsupportedOperation, op))
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = Err(fmt.Errorf("operation %q panicked: %v", op, rec))
		}
	}()

	out = fn(input)
	if out.IsOk() && (math.IsNaN(out.value) || math.IsInf(out.value, 0)) {
		return Err(ErrNonFiniteResult)
	}
	return out
}

// PowerSum returns a Func computing the sum of x^n over the input.
func PowerSum(n int) Func {
	return func(input []float64) Outcome {
		var sum float64
		for _, x := range input {
			sum += intPow(x, n)
		}
		return Ok(sum)
	}
}

func intPow(x float64, n int) float64 {
	out := 1.0
	for range n {
		out *= x
	}
	return out
}
