package sim

import (
	"math"
	"sort"
	"sync"
)

// Func computes a node output from the simulation time and the node input.
// x is nil for nodes without input. The returned slice must have the node's
// size_out or a single element, which is broadcast to every output.
type Func func(t float64, x []float64) []float64

// Functions are referenced by name so compiled programs stay plain data and
// survive a round trip through the network file.
var (
	funcMu   sync.RWMutex
	funcRegs = map[string]Func{
		"sin": func(t float64, x []float64) []float64 {
			return []float64{math.Sin(2 * math.Pi * t)}
		},
		"cos": func(t float64, x []float64) []float64 {
			return []float64{math.Cos(2 * math.Pi * t)}
		},
		"ramp": func(t float64, x []float64) []float64 {
			return []float64{t}
		},
		"identity": func(t float64, x []float64) []float64 {
			return append([]float64(nil), x...)
		},
		"square": func(t float64, x []float64) []float64 {
			out := make([]float64, len(x))
			for i, v := range x {
				out[i] = v * v
			}
			return out
		},
	}
)

// RegisterFunc makes fn available to nodes under name, replacing any
// previous registration.
func RegisterFunc(name string, fn Func) {
	funcMu.Lock()
	defer funcMu.Unlock()
	funcRegs[name] = fn
}

// LookupFunc returns the function registered under name.
func LookupFunc(name string) (Func, bool) {
	funcMu.RLock()
	defer funcMu.RUnlock()
	fn, ok := funcRegs[name]
	return fn, ok
}

// FuncNames lists the registered function names in sorted order.
func FuncNames() []string {
	funcMu.RLock()
	defer funcMu.RUnlock()
	names := make([]string, 0, len(funcRegs))
	for name := range funcRegs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
