// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package churn

import (
	"math/rand/v2"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/gomlx/searchnet/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pipeline configures how a daily file is turned into training records.
type Pipeline struct {
	// RetentionLow and RetentionHigh select the rows with RetentionLow < retention <= RetentionHigh.
	RetentionLow, RetentionHigh float64

	// Scale used to quantize standardized values.
	Scale float64

	// UnderSample balances the classes if set.
	UnderSample bool
}

// DefaultPipeline keeps users with 1 < retention <= 60, standardizes all features, and undersamples.
func DefaultPipeline() Pipeline {
	return Pipeline{
		RetentionLow:  1,
		RetentionHigh: 60,
		Scale:         DefaultScale,
		UnderSample:   true,
	}
}

// Records runs the pipeline over df, using rng for the undersampling.
func (p Pipeline) Records(df dataframe.DataFrame, rng *rand.Rand) ([]train.Record, error) {
	featureCols := FeatureColumns(df, IDCol, LabelCol)
	df, err := FilterRetention(df, RetentionCol, p.RetentionLow, p.RetentionHigh)
	if err != nil {
		return nil, err
	}
	if df.Nrow() == 0 {
		return nil, nil
	}
	if df, err = Standardize(df, featureCols); err != nil {
		return nil, err
	}
	if p.UnderSample {
		if df, err = UnderSample(df, LabelCol, rng); err != nil {
			return nil, err
		}
	}
	return ToRecords(df, featureCols, LabelCol, Outputs, p.Scale)
}

// LoadDays loads and prepares the training files in dir for every day from start to end, inclusive,
// concatenating their records in day order. Missing files are an error.
func (p Pipeline) LoadDays(dir string, start, end time.Time, rng *rand.Rand) ([]train.Record, error) {
	if end.Before(start) {
		return nil, errors.Errorf("LoadDays: end date %s is before start date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	var records []train.Record
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		filePath := TrainFileName(dir, day)
		df, err := LoadDataFrame(filePath)
		if err != nil {
			return nil, err
		}
		dayRecords, err := p.Records(df, rng)
		if err != nil {
			return nil, errors.WithMessagef(err, "preparing %q", filePath)
		}
		klog.V(1).Infof("%s: %d records out of %d rows", day.Format(time.DateOnly), len(dayRecords), df.Nrow())
		records = append(records, dayRecords...)
	}
	return records, nil
}
