// Package battery maintains de-noised battery readings from high-frequency
// register sampling.
package battery

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/link"
	"deye-monitor/internal/registers"
)

// Plausibility bands. Readings outside these are sensor glitches and are
// discarded rather than clamped, so a glitch can never evict valid data.
const (
	minPlausibleVoltage = 46.0
	maxPlausibleVoltage = 58.0
	minPlausibleSOC     = 0
	maxPlausibleSOC     = 100
)

// Sampler reads the battery voltage and SOC registers on a short interval
// and keeps bounded rolling buffers of plausible values. Voltage smooths as
// the arithmetic mean; SOC as the median, which sheds single-sample spikes.
type Sampler struct {
	link     *link.Link
	regs     registers.Map
	interval time.Duration

	mu       sync.Mutex
	voltages *ringBuffer
	socs     *ringBuffer

	disabled bool
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

func NewSampler(l *link.Link, regs registers.Map, interval time.Duration, bufferSize int) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 6
	}
	return &Sampler{
		link:     l,
		regs:     regs,
		interval: interval,
		voltages: newRingBuffer(bufferSize),
		socs:     newRingBuffer(bufferSize),
	}
}

// Disable marks the sampler inert for systems without a battery: Start
// becomes a no-op and the getters keep reporting no data.
func (s *Sampler) Disable() {
	s.disabled = true
}

// Start launches the sampling loop. Call Stop to end it; Start after Stop is
// not supported.
func (s *Sampler) Start() {
	if s.disabled {
		logrus.Info("battery sampler: not starting, no battery configured")
		return
	}
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
}

// Stop signals the loop to finish its current iteration and exit.
func (s *Sampler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	<-s.done
}

func (s *Sampler) run() {
	defer close(s.done)
	for {
		s.sample()
		select {
		case <-s.stop:
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *Sampler) sample() {
	var rawV, rawSOC uint16
	err := s.link.Session(func(read link.ReadFunc) error {
		var err error
		if rawV, err = read(s.regs.BatteryVoltage); err != nil {
			return err
		}
		rawSOC, err = read(s.regs.BatterySOC)
		return err
	})
	if err != nil {
		logrus.Debugf("battery sampler: read failed: %v", err)
		return
	}

	voltage := float64(rawV) / 100
	soc := float64(rawSOC)

	s.mu.Lock()
	defer s.mu.Unlock()
	if voltage >= minPlausibleVoltage && voltage <= maxPlausibleVoltage {
		s.voltages.push(voltage)
	} else {
		logrus.Warnf("battery sampler: discarding implausible voltage %.2fV", voltage)
	}
	if soc >= minPlausibleSOC && soc <= maxPlausibleSOC {
		s.socs.push(soc)
	} else {
		logrus.Warnf("battery sampler: discarding implausible SOC %.0f%%", soc)
	}
}

// Voltage returns the mean of buffered voltages. ok is false while the buffer
// is empty; callers fall back to the raw register value, never to zero.
func (s *Sampler) Voltage() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltages.mean()
}

// SOC returns the median of buffered SOC readings.
func (s *Sampler) SOC() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.socs.median()
	return int(m), ok
}

// ringBuffer is a fixed-capacity FIFO of float64 samples.
type ringBuffer struct {
	values []float64
	cap    int
}

func newRingBuffer(cap int) *ringBuffer {
	return &ringBuffer{cap: cap}
}

func (b *ringBuffer) push(v float64) {
	b.values = append(b.values, v)
	if len(b.values) > b.cap {
		b.values = b.values[1:]
	}
}

func (b *ringBuffer) mean() (float64, bool) {
	if len(b.values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range b.values {
		sum += v
	}
	return sum / float64(len(b.values)), true
}

func (b *ringBuffer) median() (float64, bool) {
	if len(b.values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), b.values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return sorted[mid], true
}
