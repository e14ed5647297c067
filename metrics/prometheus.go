package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tankreplay"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) int64
}

// PromCollector exposes a Collector to Prometheus. Values are read from a
// fresh Snapshot on every scrape.
type PromCollector struct {
	source   *Collector
	counters []counterDesc
	byKind   *prometheus.Desc
}

// NewPromCollector creates a Prometheus collector over c.
func NewPromCollector(c *Collector) *PromCollector {
	labels := prometheus.Labels{}
	if c != nil {
		labels["source_backend"] = c.sourceBackend
		labels["malformed_policy"] = c.malformedPolicy
	}

	counter := func(name, help string, value func(Snapshot) int64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels),
			value: value,
		}
	}

	return &PromCollector{
		source: c,
		counters: []counterDesc{
			counter("polls_issued_total", "Chunk requests issued.", func(s Snapshot) int64 { return s.PollsIssued }),
			counter("transport_failures_total", "Chunk requests that failed in transport.", func(s Snapshot) int64 { return s.TransportFailures }),
			counter("incomplete_chunks_total", "Chunk responses without the completion sentinel.", func(s Snapshot) int64 { return s.IncompleteChunks }),
			counter("chunks_ingested_total", "Chunks applied to state.", func(s Snapshot) int64 { return s.ChunksIngested }),
			counter("duplicate_chunks_total", "Completed chunks that were already archived.", func(s Snapshot) int64 { return s.DuplicateChunks }),
			counter("late_responses_dropped_total", "Responses dropped because ingestion had finished.", func(s Snapshot) int64 { return s.LateResponsesDropped }),
			counter("rejected_chunks_total", "Complete chunks rejected by the malformed-line policy.", func(s Snapshot) int64 { return s.RejectedChunks }),
			counter("malformed_lines_total", "Record lines skipped because they failed to decode.", func(s Snapshot) int64 { return s.MalformedLines }),
			counter("timesteps_appended_total", "Timesteps appended to the canonical history.", func(s Snapshot) int64 { return s.TimestepsAppended }),
			counter("noop_frames_discarded_total", "Leading empty deltas discarded.", func(s Snapshot) int64 { return s.NoopFramesDiscarded }),
			counter("objects_created_total", "Objects entered into the creation table.", func(s Snapshot) int64 { return s.ObjectsCreated }),
			counter("objects_deleted_total", "Objects entered into the deletion table.", func(s Snapshot) int64 { return s.ObjectsDeleted }),
		},
		byKind: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "records_decoded_total"),
			"Records decoded, by variant.",
			[]string{"kind"}, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (p *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
	ch <- p.byKind
}

// Collect implements prometheus.Collector.
func (p *PromCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()
	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(snap)))
	}
	for kind, n := range snap.RecordsByKind {
		ch <- prometheus.MustNewConstMetric(p.byKind, prometheus.CounterValue, float64(n), kind)
	}
}

// NewRegistry returns a registry holding the session collector plus the
// standard Go and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewPromCollector(c),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

var _ prometheus.Collector = (*PromCollector)(nil)
