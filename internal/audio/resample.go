package audio

import "math"

const (
	// ResampleWindow is the number of input frames buffered before the
	// resampler produces output.
	ResampleWindow = 4096
	// sincZeroCrossings is the filter half width in zero crossings of the
	// prototype sinc at the output band edge.
	sincZeroCrossings = 16
)

// Resampler converts a mono stream between sample rates with a polyphase
// windowed-sinc filter. Input is accepted in arbitrary blocks; only one
// window of pending input plus the filter history is retained.
type Resampler struct {
	inRate  int
	outRate int

	// up/down is the reduced out/in ratio; output k sits at input
	// position k*down/up.
	up   int64
	down int64

	halfLen int64
	phases  [][]float32

	window   int
	pending  []float32
	offset   int64
	consumed int64
	produced int64
}

// NewResampler prepares a resampler for the given rates. Equal rates pass
// samples through untouched.
func NewResampler(inRate, outRate int) *Resampler {
	r := &Resampler{
		inRate:  inRate,
		outRate: outRate,
		window:  ResampleWindow,
	}
	if inRate <= 0 || outRate <= 0 || inRate == outRate {
		return r
	}
	g := gcd(int64(inRate), int64(outRate))
	r.up = int64(outRate) / g
	r.down = int64(inRate) / g

	cutoff := math.Min(1, float64(outRate)/float64(inRate))
	r.halfLen = int64(math.Ceil(sincZeroCrossings / cutoff))
	r.phases = buildPhaseTable(r.up, r.halfLen, cutoff)
	r.pending = make([]float32, 0, r.window+int(2*r.halfLen))
	return r
}

// PassThrough reports whether the resampler copies input unchanged.
func (r *Resampler) PassThrough() bool {
	return r.up == 0
}

// Process consumes src and appends any completed output samples to dst.
func (r *Resampler) Process(dst, src []float32) []float32 {
	if r.PassThrough() {
		return append(dst, src...)
	}
	r.consumed += int64(len(src))
	for len(src) > 0 {
		room := r.window - len(r.pending)
		if room <= 0 {
			dst = r.drain(dst, false)
			continue
		}
		if room > len(src) {
			room = len(src)
		}
		r.pending = append(r.pending, src[:room]...)
		src = src[room:]
		if len(r.pending) >= r.window {
			dst = r.drain(dst, false)
		}
	}
	return dst
}

// Flush zero pads the final partial window and appends the remaining output,
// trimmed to floor(total_in*out/in) samples.
func (r *Resampler) Flush(dst []float32) []float32 {
	if r.PassThrough() {
		return dst
	}
	return r.drain(dst, true)
}

// OutputLength returns the exact number of samples produced for n input samples.
func (r *Resampler) OutputLength(n int64) int64 {
	if r.PassThrough() {
		return n
	}
	return n * r.up / r.down
}

func (r *Resampler) drain(dst []float32, final bool) []float32 {
	end := r.offset + int64(len(r.pending))
	target := r.OutputLength(r.consumed)
	for r.produced < target {
		pos := r.produced * r.down
		n := pos / r.up
		if !final && n+r.halfLen >= end {
			break
		}
		dst = append(dst, r.convolve(n, r.phases[pos%r.up], end))
		r.produced++
	}

	keepFrom := (r.produced*r.down)/r.up - r.halfLen + 1
	if drop := keepFrom - r.offset; drop > 0 {
		if drop > int64(len(r.pending)) {
			drop = int64(len(r.pending))
		}
		r.pending = append(r.pending[:0], r.pending[drop:]...)
		r.offset += drop
	}
	return dst
}

func (r *Resampler) convolve(n int64, taps []float32, end int64) float32 {
	var acc float32
	first := n - r.halfLen + 1
	for j, tap := range taps {
		idx := first + int64(j)
		if idx < r.offset || idx >= end {
			continue
		}
		acc += r.pending[idx-r.offset] * tap
	}
	return acc
}

// buildPhaseTable precomputes one normalized tap set per fractional offset
// p/up, covering input samples n-halfLen+1 .. n+halfLen.
func buildPhaseTable(up, halfLen int64, cutoff float64) [][]float32 {
	taps := int(2 * halfLen)
	table := make([][]float32, up)
	for p := int64(0); p < up; p++ {
		frac := float64(p) / float64(up)
		row := make([]float32, taps)
		var sum float64
		for j := 0; j < taps; j++ {
			d := float64(int64(j)-halfLen+1) - frac
			v := cutoff * sinc(cutoff*d) * blackman(d/float64(halfLen))
			row[j] = float32(v)
			sum += v
		}
		if sum != 0 {
			for j := range row {
				row[j] = float32(float64(row[j]) / sum)
			}
		}
		table[p] = row
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func blackman(x float64) float64 {
	if x <= -1 || x >= 1 {
		return 0
	}
	return 0.42 + 0.5*math.Cos(math.Pi*x) + 0.08*math.Cos(2*math.Pi*x)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
