// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds a library of metrics for the training loop and evaluation.
//
// Metrics are updated one example at a time, with the Result of a training step or of a prediction.
package metrics

import (
	"fmt"
	"math"
)

// Result of one example: the input to all metrics.
type Result struct {
	// Loss is 0.5 * sum((target-output)^2).
	Loss float64

	// Correct is true if the label had the largest output.
	Correct bool
}

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Moving-Average-Accuracy" and "Mean-Accuracy" would both have the same
	// "accuracy" metric type, and for instance, can be displayed on the same plot, sharing
	// the Y-axis.
	MetricType() string

	// Update the metric with a new example, and return its current value.
	Update(result Result) float64

	// Value returns the current value of the metric, or NaN if it has seen no examples.
	Value() float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new evaluation or training run.
	Reset()
}

const (
	// LossMetricType is the type of loss metrics.
	// Used to aggregate metrics of the same type in the same plot.
	LossMetricType = "loss"

	// AccuracyMetricType is the type of accuracy metrics.
	// Used to aggregate metrics of the same type in the same plot.
	AccuracyMetricType = "accuracy"
)

// ValueFn extracts the value of a metric from one example.
type ValueFn func(result Result) float64

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// LossValue is a ValueFn for the loss.
func LossValue(result Result) float64 { return result.Loss }

// AccuracyValue is a ValueFn that returns 1 for a correct example and 0 otherwise.
func AccuracyValue(result Result) float64 {
	if result.Correct {
		return 1
	}
	return 0
}

func lossPPrint(value float64) string {
	return fmt.Sprintf("%.4f", value)
}

func accuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", value*100.0)
}

// baseMetric holds the names and functions shared by all metrics.
type baseMetric struct {
	name, shortName, metricType string
	valueFn                     ValueFn
	pPrintFn                    PrettyPrintFn
}

func (m *baseMetric) Name() string       { return m.name }
func (m *baseMetric) ShortName() string  { return m.shortName }
func (m *baseMetric) MetricType() string { return m.metricType }

func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn == nil {
		return fmt.Sprintf("%.3g", value)
	}
	return m.pPrintFn(value)
}

// LastMetric reports the value of the last example only.
type LastMetric struct {
	baseMetric
	last float64
}

// NewLastMetric creates a metric that reports the value of the last example seen.
// pPrintFn can be left as nil, and a default will be used.
func NewLastMetric(name, shortName, metricType string, valueFn ValueFn, pPrintFn PrettyPrintFn) *LastMetric {
	return &LastMetric{
		baseMetric: baseMetric{name: name, shortName: shortName, metricType: metricType, valueFn: valueFn, pPrintFn: pPrintFn},
		last:       math.NaN(),
	}
}

func (m *LastMetric) Update(result Result) float64 {
	m.last = m.valueFn(result)
	return m.last
}

func (m *LastMetric) Value() float64 { return m.last }
func (m *LastMetric) Reset()         { m.last = math.NaN() }

// MeanMetric keeps the mean of a value over all examples seen since the last Reset.
type MeanMetric struct {
	baseMetric
	total float64
	count int
}

// NewMeanMetric creates a metric with the mean of valueFn over all examples.
// pPrintFn can be left as nil, and a default will be used.
func NewMeanMetric(name, shortName, metricType string, valueFn ValueFn, pPrintFn PrettyPrintFn) *MeanMetric {
	return &MeanMetric{
		baseMetric: baseMetric{name: name, shortName: shortName, metricType: metricType, valueFn: valueFn, pPrintFn: pPrintFn},
	}
}

func (m *MeanMetric) Update(result Result) float64 {
	m.total += m.valueFn(result)
	m.count++
	return m.Value()
}

func (m *MeanMetric) Value() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.total / float64(m.count)
}

// Count of examples seen since the last Reset.
func (m *MeanMetric) Count() int { return m.count }

func (m *MeanMetric) Reset() {
	m.total = 0
	m.count = 0
}

// movingAverageMetric behaves like a MeanMetric until 1/count drops below newExampleWeight, and from then
// on each new example has weight newExampleWeight.
type movingAverageMetric struct {
	baseMetric
	newExampleWeight float64
	mean             float64
	count            int
}

// NewExponentialMovingAverageMetric creates a metric that takes new examples with
// the given weight (newExampleWeight), and decays the rest to 1-newExampleWeight.
//
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
// pPrintFn can be left as nil, and a default will be used.
//
// This doesn't have a set prior, it will start being a normal average until there are enough terms, and it becomes
// an exponential moving average.
func NewExponentialMovingAverageMetric(
	name, shortName, metricType string,
	valueFn ValueFn,
	pPrintFn PrettyPrintFn,
	newExampleWeight float64,
) Interface {
	return &movingAverageMetric{
		baseMetric:       baseMetric{name: name, shortName: shortName, metricType: metricType, valueFn: valueFn, pPrintFn: pPrintFn},
		newExampleWeight: newExampleWeight,
	}
}

func (m *movingAverageMetric) Update(result Result) float64 {
	m.count++
	weight := max(m.newExampleWeight, 1.0/float64(m.count))
	m.mean = m.mean*(1-weight) + m.valueFn(result)*weight
	return m.mean
}

func (m *movingAverageMetric) Value() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.mean
}

func (m *movingAverageMetric) Reset() {
	m.mean = 0
	m.count = 0
}

// NewLastLoss returns a metric with the loss of the last training step.
func NewLastLoss(name, shortName string) *LastMetric {
	return NewLastMetric(name, shortName, LossMetricType, LossValue, lossPPrint)
}

// NewMeanLoss returns a metric with the mean loss.
func NewMeanLoss(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, LossMetricType, LossValue, lossPPrint)
}

// NewMovingAverageLoss returns a moving average of the loss.
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
func NewMovingAverageLoss(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, LossMetricType, LossValue, lossPPrint, newExampleWeight)
}

// NewMeanAccuracy returns a new accuracy metric with the given names.
func NewMeanAccuracy(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, AccuracyMetricType, AccuracyValue, accuracyPPrint)
}

// NewMovingAverageAccuracy returns a new accuracy metric with the given names.
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
func NewMovingAverageAccuracy(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(
		name, shortName, AccuracyMetricType, AccuracyValue, accuracyPPrint, newExampleWeight)
}
