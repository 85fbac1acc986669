package monetdb

// StatsHistogram is a read-only snapshot of one latency histogram
// (spec.md expansion §4.N, mirrors go-hdb/driver.StatsHistogram).
type StatsHistogram struct {
	Count   uint64
	Sum     uint64 // milliseconds
	Buckets map[uint64]uint64
}

// Stats is a read-only snapshot of driver-wide metrics, returned by
// StatsSnapshot(). It mirrors go-hdb/driver.Stats, renamed to this driver's
// domain (no bulk/tx-specific counters, one round-trip histogram).
type Stats struct {
	OpenConnections int
	OpenCursors     int
	Queries         uint64
	RoundtripTimes  *StatsHistogram
}
