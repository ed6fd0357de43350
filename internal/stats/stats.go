// Package stats maintains rolling counters over 10s/1m/5m/15m/all-time
// windows (§4.9) and mirrors the sample, accepted, bad-CRC and CPR ok/bad
// counts as Prometheus counters (plus an aircraft-count gauge) for
// scraping, the way runZeroInc-sockstats exposes its socket counters.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	bucketSpan    = 10 // seconds
	bucketCount   = 90 // 15 minutes of 10s buckets
	rangeBuckets  = 76
)

// Bucket holds one 10-second window of counters.
type Bucket struct {
	SamplesProcessed int64
	SamplesDropped   int64
	Preambles        int64
	BadCRC           int64
	Accepted         int64
	CorrectedBits    [3]int64 // index = bits corrected (0,1,2)
	ModeAC           int64
	StrongSignal     int64
	BySource         map[int]int64
	CPROk            int64
	CPRBad           int64
	CPRSkipped       int64
	CPRRangeReject   int64
	CPRSpeedReject   int64
	RangeHistogram   [rangeBuckets]int64
}

func newBucket() Bucket {
	return Bucket{BySource: make(map[int]int64)}
}

// Stats is the rolling-window accumulator plus its Prometheus mirror.
type Stats struct {
	mu      sync.Mutex
	ring    [bucketCount]Bucket
	cur     int
	allTime Bucket
	maxRangeNM float64

	samplesTotal   prometheus.Counter
	acceptedTotal  prometheus.Counter
	badCRCTotal    prometheus.Counter
	cprOkTotal     prometheus.Counter
	cprBadTotal    prometheus.Counter
	aircraftGauge  prometheus.Gauge
}

func New(reg prometheus.Registerer, maxRangeNM float64) *Stats {
	s := &Stats{maxRangeNM: maxRangeNM}
	for i := range s.ring {
		s.ring[i] = newBucket()
	}
	s.allTime = newBucket()

	s.samplesTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "readsb", Name: "samples_processed_total"})
	s.acceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "readsb", Name: "messages_accepted_total"})
	s.badCRCTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "readsb", Name: "messages_bad_crc_total"})
	s.cprOkTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "readsb", Name: "cpr_ok_total"})
	s.cprBadTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "readsb", Name: "cpr_bad_total"})
	s.aircraftGauge = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "readsb", Name: "aircraft_tracked"})

	if reg != nil {
		reg.MustRegister(s.samplesTotal, s.acceptedTotal, s.badCRCTotal, s.cprOkTotal, s.cprBadTotal, s.aircraftGauge)
	}
	return s
}

func (s *Stats) current() *Bucket {
	return &s.ring[s.cur]
}

// Advance rotates to the next 10-second bucket and clears it, dropping the
// bucket that falls out of the 15-minute window; the all-time bucket is
// never rotated or cleared.
func (s *Stats) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = (s.cur + 1) % bucketCount
	s.ring[s.cur] = newBucket()
}

func (s *Stats) RecordAccepted(source int, correctedBits int, signalStrong bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.current()
	b.Accepted++
	s.allTime.Accepted++
	b.BySource[source]++
	s.allTime.BySource[source]++
	if correctedBits >= 0 && correctedBits <= 2 {
		b.CorrectedBits[correctedBits]++
		s.allTime.CorrectedBits[correctedBits]++
	}
	if signalStrong {
		b.StrongSignal++
		s.allTime.StrongSignal++
	}
	s.acceptedTotal.Inc()
}

// RecordPreamble counts one 2.4MHz-sample preamble candidate the demodulator
// found, regardless of whether it went on to score as a real message.
func (s *Stats) RecordPreamble() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current().Preambles++
	s.allTime.Preambles++
}

func (s *Stats) RecordBadCRC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current().BadCRC++
	s.allTime.BadCRC++
	s.badCRCTotal.Inc()
}

func (s *Stats) RecordSamples(processed, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.current()
	b.SamplesProcessed += processed
	b.SamplesDropped += dropped
	s.allTime.SamplesProcessed += processed
	s.allTime.SamplesDropped += dropped
	s.samplesTotal.Add(float64(processed))
}

func (s *Stats) RecordCPR(ok, bad, skipped, rangeReject, speedReject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.current()
	switch {
	case ok:
		b.CPROk++
		s.allTime.CPROk++
		s.cprOkTotal.Inc()
	case rangeReject:
		b.CPRRangeReject++
		s.allTime.CPRRangeReject++
		s.cprBadTotal.Inc()
	case speedReject:
		b.CPRSpeedReject++
		s.allTime.CPRSpeedReject++
		s.cprBadTotal.Inc()
	case skipped:
		b.CPRSkipped++
		s.allTime.CPRSkipped++
	case bad:
		b.CPRBad++
		s.allTime.CPRBad++
		s.cprBadTotal.Inc()
	}
}

// RecordRange adds a position sample at the given great-circle range (NM)
// to the range-coverage histogram.
func (s *Stats) RecordRange(rangeNM float64) {
	if s.maxRangeNM <= 0 {
		return
	}
	idx := int(rangeNM / s.maxRangeNM * rangeBuckets)
	if idx < 0 {
		idx = 0
	}
	if idx >= rangeBuckets {
		idx = rangeBuckets - 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current().RangeHistogram[idx]++
	s.allTime.RangeHistogram[idx]++
}

func (s *Stats) SetAircraftCount(n int) {
	s.aircraftGauge.Set(float64(n))
}

// Window sums the last n buckets (most recent first) into one aggregate,
// realizing the 1m/5m/15m rollups over the 10s ring.
func (s *Stats) Window(n int) Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > bucketCount {
		n = bucketCount
	}
	out := newBucket()
	for i := 0; i < n; i++ {
		idx := (s.cur - i + bucketCount) % bucketCount
		b := s.ring[idx]
		out.SamplesProcessed += b.SamplesProcessed
		out.SamplesDropped += b.SamplesDropped
		out.Accepted += b.Accepted
		out.BadCRC += b.BadCRC
		out.Preambles += b.Preambles
		out.ModeAC += b.ModeAC
		out.StrongSignal += b.StrongSignal
		for j := range b.CorrectedBits {
			out.CorrectedBits[j] += b.CorrectedBits[j]
		}
		out.CPROk += b.CPROk
		out.CPRBad += b.CPRBad
		out.CPRSkipped += b.CPRSkipped
		out.CPRRangeReject += b.CPRRangeReject
		out.CPRSpeedReject += b.CPRSpeedReject
		for k, v := range b.BySource {
			out.BySource[k] += v
		}
		for j := range b.RangeHistogram {
			out.RangeHistogram[j] += b.RangeHistogram[j]
		}
	}
	return out
}

// AllTime returns the never-rotated cumulative counters.
func (s *Stats) AllTime() Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allTime
}
