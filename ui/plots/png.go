// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gomlx/searchnet/pkg/ml/train"
	"github.com/gomlx/searchnet/pkg/support/fsutil"
	"github.com/gomlx/searchnet/pkg/support/sets"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// PlotName is the name of the hooks registered by PNGPlotter.Attach.
const PlotName = "searchnet.ui.plots.png"

var (
	// PNGWidth and PNGHeight of the generated images.
	PNGWidth, PNGHeight = 12 * vg.Inch, 6 * vg.Inch
)

// PNGPlotter collects points and renders them as PNG line plots, one image per metric type.
//
// Optionally, points are also appended to a JSON-lines file (see WithPointsFile), so that plots
// can be continued when the training resumes from an existing store.
type PNGPlotter struct {
	mu     sync.Mutex
	title  string
	points []Point

	pointsWriter chan<- Point
	errReport    <-chan error

	numSamples, numIncomplete int
}

// NewPNGPlotter returns an empty PNGPlotter. The title is used in every image.
func NewPNGPlotter(title string) *PNGPlotter {
	return &PNGPlotter{title: title}
}

// WithPointsFile loads the points previously saved in filePath, if it exists, and appends new points to it.
func (p *PNGPlotter) WithPointsFile(filePath string) (*PNGPlotter, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return nil, err
	}
	if exists {
		previous, err := LoadPoints(filePath)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.points = append(previous, p.points...)
		p.mu.Unlock()
	} else if err = fsutil.CreateParentDir(filePath); err != nil {
		return nil, err
	}
	p.pointsWriter, p.errReport = CreatePointsWriter(filePath)
	return p, nil
}

// AddPoint implements Plotter.
func (p *PNGPlotter) AddPoint(point Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = append(p.points, point)
	if p.pointsWriter != nil {
		p.pointsWriter <- point
	}
}

// DynamicSampleDone implements Plotter.
func (p *PNGPlotter) DynamicSampleDone(incomplete bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numSamples++
	if incomplete {
		p.numIncomplete++
	}
}

// NumSamples returns the number of samples collected, and how many of them were incomplete.
func (p *PNGPlotter) NumSamples() (samples, incomplete int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numSamples, p.numIncomplete
}

// Points collected so far.
func (p *PNGPlotter) Points() Points {
	p.mu.Lock()
	defer p.mu.Unlock()
	return NewPoints(slices.Clone(p.points))
}

// LastStep returns the largest step of the points collected so far, or -1 if there are none.
// With WithPointsFile it can be used to resume the global step of a store being trained again.
func (p *PNGPlotter) LastStep() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := -1.0
	for _, point := range p.points {
		last = max(last, point.Step)
	}
	return last
}

// Close flushes the points file, if one was configured. The plotter can't be used after that.
func (p *PNGPlotter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pointsWriter == nil {
		return nil
	}
	close(p.pointsWriter)
	p.pointsWriter = nil
	return <-p.errReport
}

// Attach the plotter to the loop: the train metrics and the metrics of evalDatasets are collected n times
// during the loop (see train.NTimesDuringLoop), and at the end of the loop the images are written to
// outputDir, one per metric type, named "<metric_type>.png".
//
// If outputDir is empty, images are not written, and points are only collected.
func (p *PNGPlotter) Attach(ctx context.Context, loop *train.Loop, n int, outputDir string, evalDatasets ...train.Dataset) {
	train.NTimesDuringLoop(loop, n, PlotName, 0, func(loop *train.Loop, metrics []float64) error {
		return AddTrainAndEvalMetrics(ctx, p, loop, metrics, evalDatasets...)
	})
	if outputDir == "" {
		return
	}
	loop.OnEnd(PlotName, 0, func(_ *train.Loop, _ []float64) error {
		files, err := SavePNGs(p.Points(), outputDir, p.title)
		if err != nil {
			return err
		}
		klog.Infof("Plots saved to %v", files)
		return nil
	})
}

// SavePNGs draws one image per metric type found in points, with one line per metric of that type, and saves
// them to outputDir as "<metric_type>.png". It returns the paths of the files written.
func SavePNGs(points Points, outputDir, title string) (files []string, err error) {
	outputDir, err = fsutil.ReplaceTildeInDir(outputDir)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(outputDir, 0o777); err != nil {
		return nil, errors.Wrapf(err, "failed to create plots directory %q", outputDir)
	}

	metricTypes := sets.Make[string]()
	nameToType := make(map[string]string)
	points.Map(func(pt *Point) {
		metricTypes.Insert(pt.MetricType)
		nameToType[pt.MetricName] = pt.MetricType
	})
	names := points.MetricsNames()
	for _, metricType := range sets.Sorted(metricTypes) {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s: %s", title, metricType)
		p.X.Label.Text = "Global Step"
		p.Y.Label.Text = metricType
		p.Legend.Top = true
		p.Add(plotter.NewGrid())
		color := 0
		for _, name := range names {
			if nameToType[name] != metricType {
				continue
			}
			steps, values := points.Series(name)
			xys := make(plotter.XYs, len(steps))
			for ii := range steps {
				xys[ii].X, xys[ii].Y = steps[ii], values[ii]
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to plot metric %q", name)
			}
			line.Color = plotutil.Color(color)
			line.Dashes = plotutil.Dashes(color)
			color++
			p.Add(line)
			p.Legend.Add(name, line)
		}
		filePath := filepath.Join(outputDir, metricType+".png")
		if err = p.Save(PNGWidth, PNGHeight, filePath); err != nil {
			return nil, errors.Wrapf(err, "failed to save plot to %q", filePath)
		}
		files = append(files, filePath)
	}
	return files, nil
}
