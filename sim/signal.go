package sim

import "fmt"

// SignalKey is the dense arena index of a Signal within a Model.
// Operator records reference signals only through keys.
type SignalKey int

// Shape is the dimensionality of a signal buffer: () for a scalar,
// (n,) for a vector and (rows, cols) for a matrix.
type Shape []int

// Size returns the number of elements described by the shape.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// NDim returns the number of dimensions.
func (s Shape) NDim() int {
	return len(s)
}

// IsScalar reports whether the shape is a true scalar: 0-d or (1,).
func (s Shape) IsScalar() bool {
	return len(s) == 0 || (len(s) == 1 && s[0] == 1)
}

// IsMatrix reports whether a buffer of this shape must be treated as a
// matrix: at least two dimensions and both of the first two exceed 1.
// A (1, n) or (n, 1) buffer is a vector under this rule.
func (s Shape) IsMatrix() bool {
	return len(s) >= 2 && s[0] > 1 && s[1] > 1
}

// Equal reports whether two shapes are identical.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	switch len(s) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", s[0])
	default:
		return fmt.Sprintf("(%d, %d)", s[0], s[1])
	}
}

// Signal is an addressable numeric buffer produced by the build step.
// Initial holds the row-major contents the buffer starts with; only the
// runtime copy of these contents mutates during stepping.
type Signal struct {
	Key     SignalKey
	Label   string
	Shape   Shape
	Initial []float64
	// Owner is the label of the structural entity the signal belongs to.
	Owner string
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal(%d, %s, %s)", s.Key, s.Label, s.Shape)
}
