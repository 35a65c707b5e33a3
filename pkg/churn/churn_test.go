// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package churn

import (
	"math/rand/v2"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `user_profile_id,point,gold,retention,label
u1,0,1000,32,0
u2,100,10000,360,1
u3,0,2000,60,0
u4,0,11000,1,1
u5,10,5000,10,1
u6,0,3000,5,0
u7,0,4000,20,0
`

func readSample(t *testing.T) dataframe.DataFrame {
	df, err := ReadDataFrame(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	return df
}

func TestFeatureColumns(t *testing.T) {
	df := readSample(t)
	assert.Equal(t, []string{"point", "gold", "retention"}, FeatureColumns(df, IDCol, LabelCol))
	assert.Len(t, FeatureColumns(df), 5)
}

func TestFilterRetention(t *testing.T) {
	df, err := FilterRetention(readSample(t), RetentionCol, 1, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3", "u5", "u6", "u7"}, df.Col(IDCol).Records())

	_, err = FilterRetention(readSample(t), "missing", 1, 60)
	assert.Error(t, err)
}

func TestStandardize(t *testing.T) {
	df, err := FilterRetention(readSample(t), RetentionCol, 1, 60)
	require.NoError(t, err)
	df, err = Standardize(df, []string{"point", "gold"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.5, -0.5, 2, -0.5, -0.5}, df.Col("point").Float())
	assert.Equal(t, []float64{-1.414, -0.707, 1.414, 0, 0.707}, df.Col("gold").Float())
	// Other columns are untouched.
	assert.Equal(t, []float64{32, 60, 10, 5, 20}, df.Col(RetentionCol).Float())

	// Constant column.
	df, err = ReadDataFrame(strings.NewReader("a,label\n3,0\n3,1\n"))
	require.NoError(t, err)
	df, err = Standardize(df, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, df.Col("a").Float())

	// Population std: [0, 2] has mean 1 and std 1 (the sample std would be 1.414).
	df, err = ReadDataFrame(strings.NewReader("a,label\n0,0\n2,1\n"))
	require.NoError(t, err)
	df, err = Standardize(df, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1}, df.Col("a").Float())

	_, err = Standardize(df, []string{"missing"})
	assert.Error(t, err)
}

func TestUnderSample(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	df, err := FilterRetention(readSample(t), RetentionCol, 1, 60)
	require.NoError(t, err)
	sampled, err := UnderSample(df, LabelCol, rng)
	require.NoError(t, err)
	require.Equal(t, 2, sampled.Nrow())
	assert.Equal(t, []float64{1, 0}, sampled.Col(LabelCol).Float(), "minority first")
	assert.Equal(t, "u5", sampled.Col(IDCol).Records()[0])

	// Majority smaller than twice the minority: window starts at 0.
	df, err = ReadDataFrame(strings.NewReader("a,label\n1,0\n2,0\n3,0\n4,1\n5,1\n"))
	require.NoError(t, err)
	sampled, err = UnderSample(df, LabelCol, rng)
	require.NoError(t, err)
	require.Equal(t, 4, sampled.Nrow())
	assert.Equal(t, []float64{1, 1, 0, 0}, sampled.Col(LabelCol).Float())

	// Minority is label 0.
	df, err = ReadDataFrame(strings.NewReader("a,label\n1,1\n2,1\n3,1\n4,0\n"))
	require.NoError(t, err)
	sampled, err = UnderSample(df, LabelCol, rng)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, sampled.Col(LabelCol).Float())

	df, err = ReadDataFrame(strings.NewReader("a,label\n1,1\n2,1\n"))
	require.NoError(t, err)
	_, err = UnderSample(df, LabelCol, rng)
	assert.ErrorContains(t, err, "only one class")

	df, err = ReadDataFrame(strings.NewReader("a,label\n1,1\n2,2\n"))
	require.NoError(t, err)
	_, err = UnderSample(df, LabelCol, rng)
	assert.ErrorContains(t, err, "only 0 and 1")
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, store.ID(-500), Quantize(-0.5, DefaultScale))
	assert.Equal(t, store.ID(2500), Quantize(2.5, DefaultScale))
	assert.Equal(t, store.ID(0), Quantize(0.0004, DefaultScale))
	assert.Equal(t, store.ID(-707), Quantize(-0.707, DefaultScale))
	assert.Equal(t, store.ID(3), Quantize(0.25, 10))
}

func TestPipeline(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	records, err := DefaultPipeline().Records(readSample(t), rng)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, store.ID(1), records[0].Label)
	assert.Equal(t, []store.ID{2000, 1414}, records[0].Features[:2])
	assert.Equal(t, Outputs, records[0].Outputs)
	assert.Equal(t, store.ID(0), records[1].Label)
	assert.Equal(t, store.ID(-500), records[1].Features[0])
	assert.Len(t, records[1].Features, 3)

	p := DefaultPipeline()
	p.UnderSample = false
	records, err = p.Records(readSample(t), rng)
	require.NoError(t, err)
	assert.Len(t, records, 5)

	p.RetentionLow, p.RetentionHigh = 1000, 2000
	records, err = p.Records(readSample(t), rng)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadDays(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2015, 5, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, dir+"/bks_appstore_train_20150520.csv", TrainFileName(dir, start))
	for day := range 2 {
		require.NoError(t, os.WriteFile(TrainFileName(dir, start.AddDate(0, 0, day)), []byte(sampleCSV), 0o644))
	}

	rng := rand.New(rand.NewPCG(1, 1))
	records, err := DefaultPipeline().LoadDays(dir, start, start.AddDate(0, 0, 1), rng)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	_, err = DefaultPipeline().LoadDays(dir, start, start.AddDate(0, 0, 2), rng)
	assert.Error(t, err)
	_, err = DefaultPipeline().LoadDays(dir, start.AddDate(0, 0, 1), start, rng)
	assert.Error(t, err)
}
