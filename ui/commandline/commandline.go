// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"context"
	"fmt"
	"io"

	"github.com/gomlx/searchnet/pkg/ml/train"
)

// ReportEval reports to w the results of evaluating the datasets using trainer.Eval.
func ReportEval(ctx context.Context, w io.Writer, trainer *train.Trainer, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		_, _ = fmt.Fprintf(w, "Results on %s:\n", ds.Name())
		metricsValues, err := trainer.Eval(ctx, ds)
		if err != nil {
			return err
		}
		for metricIdx, metric := range trainer.EvalMetrics() {
			value := metricsValues[metricIdx]
			_, _ = fmt.Fprintf(w, "\t%s (%s): %s\n", metric.Name(), metric.ShortName(), metric.PrettyPrint(value))
		}
	}
	return nil
}
