// Package topology maps process ids to 3-D torus coordinates and computes
// hop distance between them.
package topology

import "fmt"

// Coord is a point in the torus coordinate space. Dimensionality is fixed by
// Table.Dims for a given table; the reference uses 3.
type Coord []int

// Table maps pid -> coord and the reverse coord -> pid (first-seen wins).
type Table struct {
	Wrap  int // torus wrap constant W
	Dims  int
	procs []Coord
	byKey map[string]int
}

// NewTable builds a topology table from a per-pid coordinate slice. A nil
// coords slice defaults every coordinate to the zero vector (placement
// degenerates to non-topology-aware, per spec); a non-nil slice must hold
// exactly numProcs coordinates.
func NewTable(coords []Coord, numProcs, wrap, dims int) (*Table, error) {
	if wrap <= 0 {
		return nil, fmt.Errorf("topology: wrap must be positive, got %d", wrap)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("topology: dims must be positive, got %d", dims)
	}

	procs := make([]Coord, numProcs)
	if coords == nil {
		for i := range procs {
			procs[i] = make(Coord, dims)
		}
	} else {
		if len(coords) != numProcs {
			return nil, fmt.Errorf("topology: expected %d coordinates, got %d", numProcs, len(coords))
		}
		for i, c := range coords {
			if len(c) != dims {
				return nil, fmt.Errorf("topology: coordinate for pid %d has %d axes, want %d", i, len(c), dims)
			}
			cp := make(Coord, dims)
			copy(cp, c)
			procs[i] = cp
		}
	}

	t := &Table{Wrap: wrap, Dims: dims, procs: procs, byKey: make(map[string]int, numProcs)}
	for pid, c := range procs {
		k := c.key()
		if _, exists := t.byKey[k]; !exists {
			t.byKey[k] = pid
		}
	}
	return t, nil
}

// NumProcs returns P, the size of the cluster this table describes.
func (t *Table) NumProcs() int { return len(t.procs) }

// CoordOf returns the coordinate assigned to pid.
func (t *Table) CoordOf(pid int) Coord { return t.procs[pid] }

// PidOf resolves the first-seen pid at coord, if any.
func (t *Table) PidOf(coord Coord) (int, bool) {
	pid, ok := t.byKey[coord.key()]
	return pid, ok
}

// HopDistance computes the Manhattan-like distance between two pids on the
// W-wrapped torus: for each axis, contribute min(|d|, W-|d|).
func (t *Table) HopDistance(a, b int) int {
	return t.hop(t.procs[a], t.procs[b])
}

func (t *Table) hop(a, b Coord) int {
	dist := 0
	for k := 0; k < t.Dims; k++ {
		d := a[k] - b[k]
		if d < 0 {
			d = -d
		}
		w := t.Wrap - d
		if w < d {
			dist += w
		} else {
			dist += d
		}
	}
	return dist
}

func (c Coord) key() string {
	// Coordinates are small fixed-width integers; a simple separated
	// string is cheap and collision-free for any realistic torus size.
	b := make([]byte, 0, 4*len(c))
	for i, v := range c {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendInt(b, v)
	}
	return string(b)
}

func appendInt(b []byte, v int) []byte {
	if v == 0 {
		return append(b, '0')
	}
	neg := v < 0
	if neg {
		v = -v
	}
	start := len(b)
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	if neg {
		b = append(b, '-')
	}
	// reverse the digits just appended
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}
