// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks how well the engine is collapsing reads. Efficiency is the
// ratio of bytes the caller needed to bytes actually fetched, capped at 1.
type Metrics struct {
	MetadataIOCalls    prometheus.Histogram
	MetadataEfficiency prometheus.Histogram
	FetchIOCalls       prometheus.Histogram
	FetchEfficiency    prometheus.Histogram
}

// NewMetrics registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MetadataIOCalls: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asynctiff_metadata_io_calls",
			Help:    "Ranged reads issued while parsing the header and IFD chain.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		MetadataEfficiency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asynctiff_metadata_read_efficiency",
			Help:    "Metadata bytes consumed over bytes fetched through the read-ahead cache.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		FetchIOCalls: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asynctiff_fetch_io_calls",
			Help:    "Ranged reads issued per tile batch after range merging.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		FetchEfficiency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asynctiff_fetch_read_efficiency",
			Help:    "Tile payload bytes over bytes fetched, including merge gap overhead.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func efficiency(requested, fetched uint64) float64 {
	if fetched == 0 {
		return 1
	}
	e := float64(requested) / float64(fetched)
	if e > 1 {
		e = 1
	}
	return e
}

func (t *TIFF) observeMetadata(ioCalls, requested, fetched uint64) {
	if t.metrics == nil {
		return
	}
	t.metrics.MetadataIOCalls.Observe(float64(ioCalls))
	t.metrics.MetadataEfficiency.Observe(efficiency(requested, fetched))
}

func (t *TIFF) observeFetch(ioCalls int, ranges []byteRange, merged []mergedRange) {
	if t.metrics == nil {
		return
	}
	var requested, fetched uint64
	for _, r := range ranges {
		requested += r.length
	}
	for _, m := range merged {
		fetched += m.length
	}
	t.metrics.FetchIOCalls.Observe(float64(ioCalls))
	t.metrics.FetchEfficiency.Observe(efficiency(requested, fetched))
}
