package chunk

// probe samples a signal every period steps. Samples are copies.
type probe struct {
	signal []float64
	period int
	data   [][]float64
}

func (p *probe) gather(step int) {
	if step%p.period == 0 {
		p.data = append(p.data, append([]float64(nil), p.signal...))
	}
}

// drain returns the samples taken since the previous drain.
func (p *probe) drain() [][]float64 {
	out := p.data
	p.data = nil
	if out == nil {
		out = [][]float64{}
	}
	return out
}
