package monetdb

import "sort"

// counter/gauge indices, mirroring go-hdb/driver/metrics.go's shape.
const (
	gaugeConn = iota
	gaugeCursor
	numGauge
)

// roundtripBucketsMS are the histogram bucket boundaries, in
// milliseconds, for the round-trip timing histogram.
var roundtripBucketsMS = []uint64{1, 5, 10, 50, 100, 500, 1000, 5000}

type histogram struct {
	count  uint64
	sum    uint64
	keys   []uint64
	values []uint64
}

func newHistogram(keys []uint64) *histogram {
	return &histogram{keys: keys, values: make([]uint64, len(keys))}
}

func (h *histogram) add(ns int64) {
	h.count++
	if ns < 0 {
		return
	}
	h.sum += uint64(ns)
	ms := uint64(ns) / 1e6
	i := sort.Search(len(h.keys), func(i int) bool { return h.keys[i] >= ms })
	if i < len(h.keys) {
		h.values[i]++
	}
}

func (h *histogram) snapshot() *StatsHistogram {
	buckets := make(map[uint64]uint64, len(h.keys))
	for i, k := range h.keys {
		buckets[k] = h.values[i]
	}
	return &StatsHistogram{Count: h.count, Sum: h.sum / 1e6, Buckets: buckets}
}

type gaugeMsg struct {
	idx int
	v   int64
}

type counterMsg struct {
	v uint64
}

type roundtripMsg struct {
	ns int64
}

// metricsCollector is the singleton in-process metrics sink, following
// go-hdb/driver/metrics.go's channel-based collector goroutine: every
// Conn/Cursor lifecycle event and timed round-trip is posted to a
// buffered channel and folded into driver-wide counters by one
// goroutine, so StatsSnapshot() never contends with the hot path for a lock.
type metricsCollector struct {
	gauges    []int64
	queries   uint64
	roundtrip *histogram

	chGauge     chan gaugeMsg
	chQuery     chan counterMsg
	chRoundtrip chan roundtripMsg
	chReqStats  chan chan Stats
}

const chanBuffer = 256

func newMetricsCollector() *metricsCollector {
	m := &metricsCollector{
		gauges:      make([]int64, numGauge),
		roundtrip:   newHistogram(roundtripBucketsMS),
		chGauge:     make(chan gaugeMsg, chanBuffer),
		chQuery:     make(chan counterMsg, chanBuffer),
		chRoundtrip: make(chan roundtripMsg, chanBuffer),
		chReqStats:  make(chan chan Stats, 8),
	}
	go m.collect()
	return m
}

func (m *metricsCollector) collect() {
	for {
		select {
		case msg := <-m.chGauge:
			m.gauges[msg.idx] += msg.v
		case msg := <-m.chQuery:
			m.queries += msg.v
		case msg := <-m.chRoundtrip:
			m.roundtrip.add(msg.ns)
		case reply := <-m.chReqStats:
			reply <- Stats{
				OpenConnections: int(m.gauges[gaugeConn]),
				OpenCursors:     int(m.gauges[gaugeCursor]),
				Queries:         m.queries,
				RoundtripTimes:  m.roundtrip.snapshot(),
			}
		}
	}
}

func (m *metricsCollector) gauge(idx int, delta int64) { m.chGauge <- gaugeMsg{idx: idx, v: delta} }
func (m *metricsCollector) query()                      { m.chQuery <- counterMsg{v: 1} }
func (m *metricsCollector) observeRoundtrip(ns int64)   { m.chRoundtrip <- roundtripMsg{ns: ns} }

func (m *metricsCollector) stats() Stats {
	reply := make(chan Stats)
	m.chReqStats <- reply
	return <-reply
}

var defaultMetrics = newMetricsCollector()

// StatsSnapshot returns a snapshot of this package's driver-wide metrics.
func StatsSnapshot() Stats { return defaultMetrics.stats() }
