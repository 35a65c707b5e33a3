// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math"
	"math/rand/v2"
	"slices"
)

// StreamingMedianMetric implements a metric that keeps an approximate median of a metric from a streaming
// input, using reservoir sampling.
type StreamingMedianMetric struct {
	baseMetric
	maxNumSamples, samplesSeen int
	samples                    []float64
	rng                        *rand.Rand
}

var _ Interface = (*StreamingMedianMetric)(nil)

// NewMedianMetric creates a streaming median metric of valueFn.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMedianMetric(name, shortName, metricType string, valueFn ValueFn, prettyPrintFn PrettyPrintFn) *StreamingMedianMetric {
	return &StreamingMedianMetric{
		baseMetric: baseMetric{
			name:       name,
			shortName:  shortName,
			metricType: metricType,
			valueFn:    valueFn,
			pPrintFn:   prettyPrintFn,
		},
		maxNumSamples: 10_001,
	}
}

// NewMedianLoss returns a streaming median of the loss.
func NewMedianLoss(name, shortName string) *StreamingMedianMetric {
	return NewMedianMetric(name, shortName, LossMetricType, LossValue, lossPPrint)
}

// WithSampleSize configures the default number of random samples to keep to estimate the median.
func (m *StreamingMedianMetric) WithSampleSize(n int) *StreamingMedianMetric {
	m.maxNumSamples = n
	return m
}

// WithRand sets the random number generator used to sample, for reproducible results.
func (m *StreamingMedianMetric) WithRand(rng *rand.Rand) *StreamingMedianMetric {
	m.rng = rng
	return m
}

// Update adds the value of result to the samples and returns the current median.
func (m *StreamingMedianMetric) Update(result Result) float64 {
	m.add(m.valueFn(result))
	return m.Value()
}

// add keeps the reservoir of samples sorted, so the median is always at the middle.
func (m *StreamingMedianMetric) add(x float64) {
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m.samplesSeen++
	if len(m.samples) >= m.maxNumSamples {
		// We must decide whether to keep x, and which sample it replaces.
		if m.rng.Float64() >= float64(m.maxNumSamples)/float64(m.samplesSeen) {
			return
		}
		evict := m.rng.IntN(len(m.samples))
		m.samples = slices.Delete(m.samples, evict, evict+1)
	}
	pos, _ := slices.BinarySearch(m.samples, x)
	m.samples = slices.Insert(m.samples, pos, x)
}

// Value returns the median of the samples kept, or NaN if none was seen.
func (m *StreamingMedianMetric) Value() float64 {
	if len(m.samples) == 0 {
		return math.NaN()
	}
	return m.samples[len(m.samples)/2]
}

// Reset discards all samples.
func (m *StreamingMedianMetric) Reset() {
	m.samples = nil
	m.samplesSeen = 0
}
