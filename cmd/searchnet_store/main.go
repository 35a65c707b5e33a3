// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// searchnet_store inspects one or more searchnet stores (SQLite files): a summary of their sizes, their
// hidden nodes and edges, the metrics collected while training them, and predictions for given feature ids.
//
// Usage:
//
//	searchnet_store -summary -nodes -limit=10 churn.db
//	searchnet_store -predict=101,102 -outputs=0,1 churn.db
//	searchnet_store -eval=~/tmp/churn/bks_appstore_train_20150522.csv churn_a.db churn_b.db
//	searchnet_store -metrics -metrics_types=accuracy churn_a.db churn_b.db
package main

import (
	"context"
	"flag"
	"os"
	"regexp"
	"strings"

	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/store/sqlstore"
	"github.com/gomlx/searchnet/pkg/support/fsutil"
	"github.com/gomlx/searchnet/pkg/support/sets"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", false, "Display a summary of each store: identity, creation key mode and sizes.")
	flagNodes   = flag.Bool("nodes", false, "Lists the hidden nodes of the first store.")
	flagEdges   = flag.String("edges", "", "Lists the edges of the first store for the given layer: "+
		"\"InputHidden\", \"HiddenOutput\" or \"all\".")
	flagLimit     = flag.Int("limit", 50, "Maximum number of hidden nodes or edges listed. Set to 0 to list all.")
	flagHighlight = flag.Float64("highlight", 1.0, "Edges with a strength magnitude at least this are highlighted. "+
		"Set to 0 to disable.")
	flagPredict = flag.String("predict", "", "Comma-separated feature ids to run a prediction on the first store.")
	flagOutputs = flag.String("outputs", "0,1", "Comma-separated output ids used by -predict.")
	flagEval    = flag.String("eval", "", "Churn CSV file to evaluate every store on, after the default preprocessing.")
	flagSeed    = flag.Uint64("seed", 42, "Seed of the undersampling of the -eval file.")

	flagMetrics       = flag.Bool("metrics", false, "Lists the metrics collected while training each store.")
	flagMetricsLabels = flag.Bool("metrics_labels", false, "Lists the metrics labels (short names) with their full description.")
	flagMetricsNames  = flag.String("metrics_names", "", "Regular expression that if matches the name or short name, the metric is included.")
	flagMetricsTypes  = flag.String("metrics_types", "", "Comma-separate list of metric types to include in metrics reports.")
	flagPlot          = flag.String("plot", "", "Directory where to save PNG plots of the metrics of each store.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	storePaths := flag.Args()
	if len(storePaths) == 0 {
		klog.Errorf("Missing store file(s) to read from. See 'searchnet_store -help'")
		os.Exit(1)
	}
	for ii, storePath := range storePaths {
		storePaths[ii] = fsutil.MustReplaceTildeInDir(storePath)
		if !fsutil.MustFileExists(storePaths[ii]) {
			klog.Fatalf("Store %q not found", storePaths[ii])
		}
	}
	ctx := context.Background()
	stores := make([]store.Store, len(storePaths))
	for ii, storePath := range storePaths {
		st := must.M1(sqlstore.Open(storePath))
		defer func() { must.M(st.Close()) }()
		stores[ii] = st
	}

	if *flagSummary {
		must.M(Summary(ctx, os.Stdout, stores, storePaths))
	}
	if *flagNodes {
		must.M(ListHiddenNodes(ctx, os.Stdout, stores[0], *flagLimit))
	}
	if *flagEdges != "" {
		for _, layer := range layersFor(*flagEdges) {
			must.M(ListEdges(ctx, os.Stdout, stores[0], layer, *flagLimit, *flagHighlight))
		}
	}
	if *flagPredict != "" {
		featureIDs := must.M1(parseIDs(*flagPredict))
		outputIDs := must.M1(parseIDs(*flagOutputs))
		must.M(Predict(ctx, os.Stdout, stores[0], featureIDs, outputIDs))
	}
	if *flagEval != "" {
		records := must.M1(loadEvalRecords(fsutil.MustReplaceTildeInDir(*flagEval), *flagSeed))
		must.M(Evaluate(ctx, os.Stdout, stores, storePaths, records))
	}
	if *flagMetrics || *flagMetricsLabels || *flagPlot != "" {
		opts := MetricsOptions{Table: *flagMetrics, Labels: *flagMetricsLabels, PlotDir: *flagPlot}
		if *flagMetricsNames != "" {
			var err error
			opts.NamesMatcher, err = regexp.Compile(*flagMetricsNames)
			if err != nil {
				klog.Fatalf("Failed to compile -metrics_names=%q matcher: %v", *flagMetricsNames, err)
			}
		}
		if *flagMetricsTypes != "" {
			opts.Types = sets.MakeWith(strings.Split(*flagMetricsTypes, ",")...)
		}
		must.M(Metrics(os.Stdout, storePaths, storePaths, opts))
	}
}

// layersFor parses the -edges flag value.
func layersFor(value string) []store.Layer {
	switch value {
	case "all":
		return []store.Layer{store.InputHidden, store.HiddenOutput}
	case store.InputHidden.String():
		return []store.Layer{store.InputHidden}
	case store.HiddenOutput.String():
		return []store.Layer{store.HiddenOutput}
	}
	klog.Fatalf("Invalid -edges=%q: valid values are %q, %q and \"all\"", value, store.InputHidden, store.HiddenOutput)
	return nil
}
