// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/searchnet/pkg/churn"
	"github.com/gomlx/searchnet/pkg/ml/searchnet"
	"github.com/gomlx/searchnet/pkg/ml/train"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/pkg/errors"
)

// engineFor returns an engine over st using the creation key mode st was initialized with.
func engineFor(ctx context.Context, st store.Store) (*searchnet.Engine, error) {
	mode, err := st.KeyMode(ctx)
	if err != nil {
		return nil, err
	}
	params := searchnet.DefaultParams().Set(searchnet.ParamSortedCreationKey, mode == store.KeySorted)
	return searchnet.New(st, params)
}

// loadEvalRecords prepares the churn file at filePath with the default pipeline. The undersampling uses
// a fixed seed, so every store is evaluated on the same records.
func loadEvalRecords(filePath string, seed uint64) ([]train.Record, error) {
	df, err := churn.LoadDataFrame(filePath)
	if err != nil {
		return nil, err
	}
	records, err := churn.DefaultPipeline().Records(df, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return nil, errors.WithMessagef(err, "preparing %q", filePath)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("no records left in %q after filtering", filePath)
	}
	return records, nil
}

// Evaluate prints the mean loss and accuracy of each store over records.
func Evaluate(ctx context.Context, w io.Writer, stores []store.Store, names []string, records []train.Record) error {
	ds := train.NewInMemoryDataset("eval", records)
	table := newPlainTable(lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	table.Headers("Store", "Records", "Mean Loss", "Accuracy")
	for ii, st := range stores {
		engine, err := engineFor(ctx, st)
		if err != nil {
			return err
		}
		eval, err := train.Evaluate(ctx, engine, ds)
		if err != nil {
			return errors.WithMessagef(err, "evaluating %q", names[ii])
		}
		table.Row(names[ii], humanize.Comma(int64(eval.Count)),
			fmt.Sprintf("%.4f", eval.MeanLoss), fmt.Sprintf("%.2f%%", 100*eval.Accuracy))
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Evaluation"))
	_, _ = fmt.Fprintln(w, table.Render())
	return nil
}
