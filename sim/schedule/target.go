package schedule

import "github.com/nengo-mpi/nmpi/sim"

// Target is the creation protocol of a runtime that executes a Program.
// Calls arrive in program order: every signal is added before any operator
// that references it.
type Target interface {
	AddSignal(key sim.SignalKey, label string, shape sim.Shape, data []float64) error

	CreateReset(dst sim.SignalKey, value float64) error
	CreateCopy(dst, src sim.SignalKey) error
	// CreateDotIncMV creates Y += A·X for a matrix A.
	CreateDotIncMV(a, x, y sim.SignalKey) error
	// CreateDotIncVV creates Y += A·X for vectors; a length-1 A scales X.
	CreateDotIncVV(a, x, y sim.SignalKey) error
	// CreateProdUpdate creates Y *= B, applied before the increments on Y.
	CreateProdUpdate(b, y sim.SignalKey) error
	CreateFilter(input, output sim.SignalKey, num, den []float64) error
	CreateLIF(n int, tauRC, tauRef, dt float64, j, output, voltage, refractory sim.SignalKey) error
	CreateLIFRate(n int, tauRC, tauRef float64, j, output sim.SignalKey) error
	// CreatePyFunc creates a call of a registered function. input is
	// sim.NoSignal for functions without input.
	CreatePyFunc(output sim.SignalKey, fn string, timeDependent bool, input sim.SignalKey) error

	AddProbe(label string, signal sim.SignalKey, period int) error

	// AddSend and AddRecv register the step-boundary exchange of a signal
	// with a peer component.
	AddSend(key sim.SignalKey, dst int) error
	AddRecv(key sim.SignalKey, src int) error
}
