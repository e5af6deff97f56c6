package indicator

import "liquidity-systemv1/internal/model"

// VolumeSMA calculates the simple moving average of bar volume over a rolling
// window. Same circular-buffer layout as ATR.
type VolumeSMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewVolumeSMA creates a volume SMA with the given period.
func NewVolumeSMA(period int) *VolumeSMA {
	return &VolumeSMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *VolumeSMA) Update(bar model.Bar) {
	v := bar.Volume

	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *VolumeSMA) Value() float64 { return s.current }
func (s *VolumeSMA) Ready() bool    { return s.count >= s.period }

// Reset clears the state for reuse.
func (s *VolumeSMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
