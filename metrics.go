package korpus

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    addCounter     prometheus.Counter
//	    queryHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordQuery(k int, duration time.Duration, err error) {
//	    p.queryHistogram.Observe(duration.Seconds())
//	    // ... record error state, k, etc.
//	}
type MetricsCollector interface {
	// RecordAdd is called after each batch ingestion. accepted, duplicates
	// and failed partition the batch; duration is the total time taken.
	RecordAdd(accepted, duplicates, failed int, duration time.Duration)

	// RecordQuery is called after each query. k is the number of results
	// requested, duration is the time taken, err is nil if successful.
	RecordQuery(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation. deleted is the
	// number of documents removed.
	RecordDelete(deleted int, duration time.Duration, err error)

	// RecordCompaction is called after each compaction run. reclaimed is
	// the number of tombstoned slots freed.
	RecordCompaction(reclaimed int, duration time.Duration, err error)

	// RecordSnapshot is called after each catalog save.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(int, int, int, time.Duration)     {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordCompaction(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount            atomic.Int64
	AddAccepted         atomic.Int64
	AddDuplicates       atomic.Int64
	AddFailed           atomic.Int64
	QueryCount          atomic.Int64
	QueryErrors         atomic.Int64
	QueryTotalNanos     atomic.Int64
	DeleteCount         atomic.Int64
	DeleteErrors        atomic.Int64
	DeletedDocuments    atomic.Int64
	CompactionCount     atomic.Int64
	CompactionErrors    atomic.Int64
	CompactionReclaimed atomic.Int64
	SnapshotCount       atomic.Int64
	SnapshotErrors      atomic.Int64
	SnapshotTotalNanos  atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(accepted, duplicates, failed int, duration time.Duration) {
	b.AddCount.Add(1)
	b.AddAccepted.Add(int64(accepted))
	b.AddDuplicates.Add(int64(duplicates))
	b.AddFailed.Add(int64(failed))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(k int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(deleted int, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeletedDocuments.Add(int64(deleted))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompaction(reclaimed int, duration time.Duration, err error) {
	b.CompactionCount.Add(1)
	b.CompactionReclaimed.Add(int64(reclaimed))
	if err != nil {
		b.CompactionErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	b.SnapshotTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:            b.AddCount.Load(),
		AddAccepted:         b.AddAccepted.Load(),
		AddDuplicates:       b.AddDuplicates.Load(),
		AddFailed:           b.AddFailed.Load(),
		QueryCount:          b.QueryCount.Load(),
		QueryErrors:         b.QueryErrors.Load(),
		QueryAvgNanos:       b.getAvgQueryNanos(),
		DeleteCount:         b.DeleteCount.Load(),
		DeleteErrors:        b.DeleteErrors.Load(),
		DeletedDocuments:    b.DeletedDocuments.Load(),
		CompactionCount:     b.CompactionCount.Load(),
		CompactionErrors:    b.CompactionErrors.Load(),
		CompactionReclaimed: b.CompactionReclaimed.Load(),
		SnapshotCount:       b.SnapshotCount.Load(),
		SnapshotErrors:      b.SnapshotErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount            int64
	AddAccepted         int64
	AddDuplicates       int64
	AddFailed           int64
	QueryCount          int64
	QueryErrors         int64
	QueryAvgNanos       int64
	DeleteCount         int64
	DeleteErrors        int64
	DeletedDocuments    int64
	CompactionCount     int64
	CompactionErrors    int64
	CompactionReclaimed int64
	SnapshotCount       int64
	SnapshotErrors      int64
}
