// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package churn prepares daily user-activity CSV files into training records for a searchnet engine:
// filtering by retention, column-wise standardization, class-balancing by undersampling, and
// quantization of the standardized values into feature ids.
package churn

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/searchnet/pkg/ml/train"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/support/fsutil"
	"github.com/gomlx/searchnet/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Column names of the daily training files.
const (
	IDCol        = "user_profile_id"
	LabelCol     = "label"
	RetentionCol = "retention"
)

// DefaultScale used by Quantize: standardized values are rounded to 3 decimals.
const DefaultScale = 1000

// Outputs are the output ids of the binary classification: 0 (stays) and 1 (churns).
var Outputs = []store.ID{0, 1}

// TrainFileName returns the path of the training file of the given day in dir.
func TrainFileName(dir string, date time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("bks_appstore_train_%s.csv", date.Format("20060102")))
}

// ReadDataFrame parses a CSV with a header line.
func ReadDataFrame(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DetectTypes(true))
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "failed to parse CSV")
	}
	return df, nil
}

// LoadDataFrame reads the CSV file in filePath, which must have a header line. "~" is expanded.
func LoadDataFrame(filePath string) (dataframe.DataFrame, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	df, err := ReadDataFrame(f)
	if err != nil {
		return df, errors.WithMessagef(err, "loading %q", filePath)
	}
	klog.V(1).Infof("Loaded %q: %d rows x %d columns", filePath, df.Nrow(), df.Ncol())
	return df, nil
}

// FeatureColumns returns the names of all columns of df, in order, except the excluded ones.
func FeatureColumns(df dataframe.DataFrame, exclude ...string) []string {
	excluded := sets.MakeWith(exclude...)
	var cols []string
	for _, name := range df.Names() {
		if !excluded.Has(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

// FilterRetention returns the rows of df for which lo < df[col] <= hi.
func FilterRetention(df dataframe.DataFrame, col string, lo, hi float64) (dataframe.DataFrame, error) {
	if !slices.Contains(df.Names(), col) {
		return df, errors.Errorf("FilterRetention: unknown column %q", col)
	}
	filtered := df.
		Filter(dataframe.F{Colname: col, Comparator: series.Greater, Comparando: lo}).
		Filter(dataframe.F{Colname: col, Comparator: series.LessEq, Comparando: hi})
	if filtered.Err != nil {
		return filtered, errors.Wrapf(filtered.Err, "FilterRetention(%q, %g, %g)", col, lo, hi)
	}
	return filtered, nil
}

// Standardize replaces each of the columns by its z-score, (x-mean)/std, rounded to 3 decimal places.
// The std is the population standard deviation; constant columns become 0.
func Standardize(df dataframe.DataFrame, cols []string) (dataframe.DataFrame, error) {
	for _, col := range cols {
		s := df.Col(col)
		if s.Err != nil {
			return df, errors.Wrapf(s.Err, "Standardize(%q)", col)
		}
		values := s.Float()
		mean := s.Mean()
		// series.StdDev is the sample std; z-scores here divide by the population std.
		var variance float64
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(values))
		std := math.Sqrt(variance)
		if std == 0 {
			std = 1
		}
		for ii, v := range values {
			values[ii] = math.Round((v-mean)/std*1000) / 1000
			if math.IsNaN(values[ii]) {
				return df, errors.Errorf("Standardize(%q): row %d is not a number", col, ii)
			}
		}
		df = df.Mutate(series.New(values, series.Float, col))
		if df.Err != nil {
			return df, errors.Wrapf(df.Err, "Standardize(%q)", col)
		}
	}
	return df, nil
}

// UnderSample balances a binary-labeled (0 or 1) df: it keeps all the rows of the minority class, followed by
// as many rows of the majority class, taken from a random permutation of it.
//
// The majority rows are taken from the window starting at offset len(minority) of the permutation, or from
// the start if the majority class has fewer than twice as many rows as the minority.
func UnderSample(df dataframe.DataFrame, labelCol string, rng *rand.Rand) (dataframe.DataFrame, error) {
	if !slices.Contains(df.Names(), labelCol) {
		return df, errors.Errorf("UnderSample: unknown label column %q", labelCol)
	}
	var many, little []int
	for row, label := range df.Col(labelCol).Float() {
		switch label {
		case 0:
			many = append(many, row)
		case 1:
			little = append(little, row)
		default:
			return df, errors.Errorf("UnderSample: row %d has label %g, only 0 and 1 are supported", row, label)
		}
	}
	if len(many) < len(little) {
		many, little = little, many
	}
	if len(little) == 0 {
		return df, errors.Errorf("UnderSample: only one class in %d rows", len(many))
	}
	rng.Shuffle(len(many), func(i, j int) { many[i], many[j] = many[j], many[i] })
	begin := len(little)
	if len(many) < 2*len(little) {
		begin = 0
	}
	rows := append(slices.Clone(little), many[begin:begin+len(little)]...)
	sampled := df.Subset(rows)
	if sampled.Err != nil {
		return sampled, errors.Wrap(sampled.Err, "UnderSample")
	}
	return sampled, nil
}

// Quantize converts a standardized value to a feature id, round(value*scale).
func Quantize(value float64, scale float64) store.ID {
	return store.ID(math.Round(value * scale))
}

// ToRecords converts each row of df to a train.Record: its features are the quantized values of cols, in order,
// and its label is the value of labelCol.
func ToRecords(df dataframe.DataFrame, cols []string, labelCol string, outputs []store.ID, scale float64) (
	[]train.Record, error) {
	names := df.Names()
	columns := make([][]float64, len(cols))
	for ii, col := range cols {
		if !slices.Contains(names, col) {
			return nil, errors.Errorf("ToRecords: unknown column %q", col)
		}
		columns[ii] = df.Col(col).Float()
	}
	if !slices.Contains(names, labelCol) {
		return nil, errors.Errorf("ToRecords: unknown label column %q", labelCol)
	}
	labels := df.Col(labelCol).Float()
	records := make([]train.Record, df.Nrow())
	for row := range records {
		features := make([]store.ID, len(cols))
		for ii := range cols {
			v := columns[ii][row]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("ToRecords: row %d, column %q is not a finite number", row, cols[ii])
			}
			features[ii] = Quantize(v, scale)
		}
		records[row] = train.Record{
			Features: features,
			Outputs:  slices.Clone(outputs),
			Label:    store.ID(labels[row]),
		}
	}
	return records, nil
}
