package orm

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// flushMetrics are kept in a per-manager set so that several managers can
// live in one process.
type flushMetrics struct {
	set      *metrics.Set
	flushes  *metrics.Counter
	failures *metrics.Counter
	created  *metrics.Counter
	updated  *metrics.Counter
	deleted  *metrics.Counter
	duration *metrics.Histogram
}

func newFlushMetrics() *flushMetrics {
	s := metrics.NewSet()
	return &flushMetrics{
		set:      s,
		flushes:  s.NewCounter("blazeorm_flushes_total"),
		failures: s.NewCounter("blazeorm_flush_errors_total"),
		created:  s.NewCounter(`blazeorm_records_total{op="create"}`),
		updated:  s.NewCounter(`blazeorm_records_total{op="update"}`),
		deleted:  s.NewCounter(`blazeorm_records_total{op="delete"}`),
		duration: s.NewHistogram("blazeorm_flush_duration_seconds"),
	}
}

func (fm *flushMetrics) observe(start time.Time, err error) {
	fm.flushes.Inc()
	if err != nil {
		fm.failures.Inc()
	}
	fm.duration.UpdateDuration(start)
}

func (fm *flushMetrics) records(created, updated, deleted int) {
	fm.created.Add(created)
	fm.updated.Add(updated)
	fm.deleted.Add(deleted)
}
