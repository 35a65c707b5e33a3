// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/searchnet/pkg/ml/train/metrics"
	"github.com/gomlx/searchnet/pkg/support/sets"
	"github.com/gomlx/searchnet/ui/plots"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MetricsOptions selects what Metrics reports.
type MetricsOptions struct {
	// Table prints the metrics per global step, Labels prints the short names with their full names.
	Table, Labels bool

	// NamesMatcher, if set, selects the metrics whose name or short name matches.
	NamesMatcher *regexp.Regexp

	// Types, if set, selects the metrics of these types.
	Types sets.Set[string]

	// PlotDir, if set, is where PNG plots are written, one subdirectory per store.
	PlotDir string
}

// ModelNameAndMetric holds information on the store name and one of its metric.
type ModelNameAndMetric struct{ ModelName, MetricName, MetricType string }

// Metrics reports the plot points collected while training each of the stores.
func Metrics(w io.Writer, storePaths, names []string, opts MetricsOptions) error {
	points := make([][]plots.Point, len(storePaths))
	foundSomething := false
	for ii, storePath := range storePaths {
		var err error
		points[ii], err = plots.LoadPointsForStore(storePath)
		if err != nil {
			return err
		}
		if len(points[ii]) > 0 {
			foundSomething = true
		}
	}
	if !foundSomething {
		klog.Errorf("No metrics found for stores %v", storePaths)
	}

	shortToName := make(map[string]string)
	metricsUsed := sets.Make[ModelNameAndMetric]()
	for modelIdx, pointsPerModel := range points {
		for _, point := range pointsPerModel {
			shortToName[point.Short] = point.MetricName
			if opts.NamesMatcher != nil || opts.Types != nil {
				foundName := opts.NamesMatcher != nil &&
					(opts.NamesMatcher.MatchString(point.MetricName) || opts.NamesMatcher.MatchString(point.Short))
				foundType := opts.Types != nil && opts.Types.Has(point.MetricType)
				if !foundName && !foundType {
					continue
				}
			}
			metricsUsed.Insert(ModelNameAndMetric{names[modelIdx], point.Short, point.MetricType})
		}
	}

	// Column 0 is for the global step.
	metricsInOrder := slices.SortedFunc(maps.Keys(metricsUsed), func(a, b ModelNameAndMetric) int {
		if c := strings.Compare(a.MetricName, b.MetricName); c != 0 {
			return c
		}
		return strings.Compare(a.ModelName, b.ModelName)
	})
	metricsOrder := make(map[ModelNameAndMetric]int, len(metricsInOrder))
	for idx, nameMetric := range metricsInOrder {
		metricsOrder[nameMetric] = idx + 1
	}

	if opts.Labels {
		ReportMetricsLabels(w, shortToName)
	}
	if opts.Table {
		ReportMetrics(w, names, metricsOrder, points)
	}
	if opts.PlotDir != "" {
		for ii, pointsPerModel := range points {
			dir := filepath.Join(opts.PlotDir, filepath.Base(names[ii]))
			files, err := plots.SavePNGs(plots.NewPoints(pointsPerModel), dir, names[ii])
			if err != nil {
				return errors.WithMessagef(err, "plotting metrics of %q", names[ii])
			}
			_, _ = fmt.Fprintf(w, "Plots of %q: %v\n", names[ii], files)
		}
	}
	return nil
}

// ReportMetricsLabels list all metrics short and long names.
func ReportMetricsLabels(w io.Writer, shortToName map[string]string) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Metrics Labels"))
	table := newPlainTable(lipgloss.Center, lipgloss.Left)
	table.Headers("Short", "MetricName")
	for _, short := range slices.Sorted(maps.Keys(shortToName)) {
		table.Row(short, shortToName[short])
	}
	_, _ = fmt.Fprintln(w, table.Render())
}

// ReportMetrics prints one row per global step, and one column per store and metric.
func ReportMetrics(w io.Writer, names []string, metricsOrder map[ModelNameAndMetric]int, points [][]plots.Point) {
	numStores := len(names)
	_, _ = fmt.Fprintln(w, titleStyle.Render("Metrics Table"))
	table := newPlainTable(lipgloss.Right)
	header := make([]string, 1+len(metricsOrder))
	header[0] = "Global Step"
	for nameMetric, idx := range metricsOrder {
		if numStores == 1 {
			header[idx] = nameMetric.MetricName
		} else {
			header[idx] = fmt.Sprintf("%s: %s", nameMetric.ModelName, nameMetric.MetricName)
		}
	}
	table.Headers(header...)

	// Points of each store are in step order: merge them one global step at a time.
	pointsIndices := make([]int, numStores)
	nextGlobalStep := func() int64 {
		globalStep := int64(-1)
		for modelIdx, pointsPerModel := range points {
			if pointsIndices[modelIdx] < len(pointsPerModel) {
				step := int64(pointsPerModel[pointsIndices[modelIdx]].Step)
				if globalStep == -1 || step < globalStep {
					globalStep = step
				}
			}
		}
		return globalStep
	}

	for currentGlobalStep := nextGlobalStep(); currentGlobalStep != -1; currentGlobalStep = nextGlobalStep() {
		row := make([]string, 1+len(metricsOrder))
		row[0] = humanize.Comma(currentGlobalStep)
		for modelIdx, pointsPerModel := range points {
			nameMetric := ModelNameAndMetric{ModelName: names[modelIdx]}
			for pointsIndices[modelIdx] < len(pointsPerModel) {
				point := pointsPerModel[pointsIndices[modelIdx]]
				if int64(point.Step) != currentGlobalStep {
					break
				}
				pointsIndices[modelIdx]++
				nameMetric.MetricName = point.Short
				nameMetric.MetricType = point.MetricType
				colIdx, found := metricsOrder[nameMetric]
				if !found {
					continue
				}
				switch point.MetricType {
				case metrics.AccuracyMetricType:
					row[colIdx] = fmt.Sprintf("%.2f%%", 100.0*point.Value)
				default:
					row[colIdx] = fmt.Sprintf("%.3g", point.Value)
				}
			}
		}
		table.Row(row...)
	}
	_, _ = fmt.Fprintln(w, table.Render())
}
