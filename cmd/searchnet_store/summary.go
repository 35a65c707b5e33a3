// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/searchnet/pkg/store"
)

// Summary prints one column per store with its identity, creation key mode and sizes.
// Rows whose values differ across stores are highlighted, except the identity and sizes.
func Summary(ctx context.Context, w io.Writer, stores []store.Store, names []string) error {
	numStores := len(stores)
	allStats := make([]store.Stats, numStores)
	for ii, st := range stores {
		var err error
		if allStats[ii], err = st.Stats(ctx); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintln(w, titleStyle.Render("Summary"))
	table := newPlainTableWithReds(lipgloss.Right, lipgloss.Left)
	row := func(isRed bool, title string, fn func(stats store.Stats, name string) string) {
		values := make([]string, numStores+1)
		values[0] = title
		for ii, stats := range allStats {
			values[ii+1] = fn(stats, names[ii])
		}
		table.Row(isRed, values...)
	}

	row(false, "store", func(_ store.Stats, name string) string { return name })
	row(false, "store_id", func(stats store.Stats, _ string) string { return stats.StoreID })
	keyModes := make([]store.KeyMode, numStores)
	for ii, stats := range allStats {
		keyModes[ii] = stats.KeyMode
	}
	row(!isAllEqual(keyModes), "creation_key_mode", func(stats store.Stats, _ string) string { return string(stats.KeyMode) })
	row(false, "# hidden nodes", func(stats store.Stats, _ string) string { return humanize.Comma(stats.NumHiddenNodes) })
	row(false, "# input_hidden edges", func(stats store.Stats, _ string) string { return humanize.Comma(stats.NumInputHidden) })
	row(false, "# hidden_output edges", func(stats store.Stats, _ string) string { return humanize.Comma(stats.NumHiddenOutput) })
	row(false, "mean |input_hidden|", func(stats store.Stats, _ string) string {
		return meanAbs(stats.SumAbsInputHidden, stats.NumInputHidden)
	})
	row(false, "mean |hidden_output|", func(stats store.Stats, _ string) string {
		return meanAbs(stats.SumAbsHiddenOut, stats.NumHiddenOutput)
	})
	row(false, "file size", func(_ store.Stats, name string) string {
		info, err := os.Stat(name)
		if err != nil {
			return "-"
		}
		return humanize.Bytes(uint64(info.Size()))
	})
	_, _ = fmt.Fprintln(w, table.Table.Render())
	return nil
}

func meanAbs(sum float64, count int64) string {
	if count == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f", sum/float64(count))
}
