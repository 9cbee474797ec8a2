package partition

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// metisBinary is the METIS command-line partitioner looked up on PATH.
const metisBinary = "gpmetis"

// MetisAvailable reports whether the METIS partitioner can be invoked,
// without invoking it.
func MetisAvailable() bool {
	_, err := exec.LookPath(metisBinary)
	return err == nil
}

// Metis minimizes total cut weight under a balance constraint on cluster
// cost by delegating to the external gpmetis program. The graph is written
// in METIS format with vertex and edge weights; the partition vector is read
// back from gpmetis's output file.
type Metis struct {
	// Binary overrides the program name or path. Empty means gpmetis.
	Binary string
}

// Name implements Strategy.
func (m *Metis) Name() string { return "metis" }

// Partition implements Strategy for Metis.
func (m *Metis) Partition(ctx context.Context, g *ClusterGraph, k int) ([]int, error) {
	bin := m.Binary
	if bin == "" {
		bin = metisBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("metis unavailable: %w", err)
	}

	dir, err := os.MkdirTemp("", "nmpi-metis-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	graphFile := filepath.Join(dir, "clusters.graph")
	if err := writeMetisGraph(graphFile, g); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, graphFile, strconv.Itoa(k))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", bin, err, strings.TrimSpace(string(out)))
	}
	logrus.Debugf("gpmetis: %s", strings.TrimSpace(string(out)))

	return readMetisPartition(fmt.Sprintf("%s.part.%d", graphFile, k), g.Len())
}

// writeMetisGraph writes g in METIS graph format ("fmt" 011: vertex and
// edge weights). Vertices are 1-based; weights are rounded to positive
// integers as METIS requires.
func writeMetisGraph(path string, g *ClusterGraph) error {
	adj := make([][]*Edge, g.Len())
	edges := g.Edges()
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e)
		adj[e.To] = append(adj[e.To], e)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d %d 011\n", g.Len(), len(edges))
	for _, c := range g.Clusters() {
		fmt.Fprintf(w, "%d", metisWeight(c.Cost))
		for _, e := range adj[c.ID] {
			other := e.To
			if other == c.ID {
				other = e.From
			}
			fmt.Fprintf(w, " %d %d", other+1, metisWeight(e.Weight))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func metisWeight(w float64) int64 {
	return int64(math.Max(1, math.Round(w)))
}

// readMetisPartition reads one component id per line.
func readMetisPartition(path string, n int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading metis output: %w", err)
	}
	defer f.Close()

	out := make([]int, 0, n)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("metis output line %d: %w", len(out)+1, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) != n {
		return nil, fmt.Errorf("metis output has %d entries, want %d", len(out), n)
	}
	return out, nil
}
