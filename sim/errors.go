package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrPartition indicates that an assignment places entities joined by a
	// same-step dependency into different components.
	ErrPartition = errors.New("partition error")

	// ErrUnsupportedOperator indicates an operator tag or neuron kind outside
	// the closed set the runtime executes.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrUnknownSignal indicates an operator references a signal that was
	// never registered.
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrCyclicDependency indicates the operator dependency graph has a cycle.
	ErrCyclicDependency = errors.New("cyclic operator dependency")

	// ErrConflictingWrites indicates a signal with more than one setter or
	// more than one updater.
	ErrConflictingWrites = errors.New("conflicting writes")

	// ErrStrategyViolation indicates a partition strategy returned an
	// assignment that breaks a co-location constraint. This is an internal
	// error of the strategy, never of the user's input.
	ErrStrategyViolation = errors.New("partition strategy violated constraints")

	// ErrInvalidState indicates a chunk operation issued in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid chunk state")
)

// PartitionError locates an assignment that splits a connection which must
// stay inside one component. When the split is found while compiling,
// Signal names the same-step signal read across components.
type PartitionError struct {
	Pre        string
	Post       string
	Connection string
	Signal     string
	Reason     string
	PreComp    int
	PostComp   int
}

// Error implements the error interface.
func (e *PartitionError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("partition error: signal %q of %q (component %d) is read by %q (component %d): %s",
			e.Signal, e.Pre, e.PreComp, e.Post, e.PostComp, e.Reason)
	}
	return fmt.Sprintf("partition error: connection %q from %q (component %d) to %q (component %d) spans components: %s",
		e.Connection, e.Pre, e.PreComp, e.Post, e.PostComp, e.Reason)
}

// Unwrap makes errors.Is(err, ErrPartition) hold.
func (e *PartitionError) Unwrap() error {
	return ErrPartition
}

// Reasons a connection forces co-location.
const (
	ReasonInstantaneous = "instantaneous connection (no synapse)"
	ReasonLearningRule  = "connection has a learning rule"
	ReasonProbed        = "connection is probed"
	ReasonSameStepRead  = "value is produced and consumed in the same step"
)
