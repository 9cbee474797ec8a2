package chunk

import (
	"context"
	"fmt"
)

// Transport carries step-boundary payloads between components. Payloads
// between one ordered pair of components arrive in the order sent.
type Transport interface {
	Send(ctx context.Context, src, dst int, payload []float64) error
	Recv(ctx context.Context, src, dst int) ([]float64, error)
}

// ChannelTransport connects components of one process with a buffered
// channel per ordered pair. One step's payload fits in the buffer, so
// every chunk can send before it receives.
type ChannelTransport struct {
	n     int
	links [][]chan []float64
}

// NewChannelTransport returns a transport for n components.
func NewChannelTransport(n int) *ChannelTransport {
	links := make([][]chan []float64, n)
	for src := range links {
		links[src] = make([]chan []float64, n)
		for dst := range links[src] {
			if src != dst {
				links[src][dst] = make(chan []float64, 1)
			}
		}
	}
	return &ChannelTransport{n: n, links: links}
}

func (t *ChannelTransport) link(src, dst int) (chan []float64, error) {
	if src < 0 || src >= t.n || dst < 0 || dst >= t.n || src == dst {
		return nil, fmt.Errorf("no link from component %d to %d", src, dst)
	}
	return t.links[src][dst], nil
}

// Send implements Transport. The payload is copied.
func (t *ChannelTransport) Send(ctx context.Context, src, dst int, payload []float64) error {
	ch, err := t.link(src, dst)
	if err != nil {
		return err
	}
	select {
	case ch <- append([]float64(nil), payload...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements Transport.
func (t *ChannelTransport) Recv(ctx context.Context, src, dst int) ([]float64, error) {
	ch, err := t.link(src, dst)
	if err != nil {
		return nil, err
	}
	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
