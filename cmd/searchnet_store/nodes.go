// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/searchnet/pkg/store"
)

// ListHiddenNodes prints up to limit hidden nodes (all if limit <= 0), in creation order.
func ListHiddenNodes(ctx context.Context, w io.Writer, st store.Store, limit int) error {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Hidden Nodes"))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Headers("ID", "Creation Key")
	count := 0
	err := st.HiddenNodes(ctx, func(node store.HiddenNode) bool {
		if limit > 0 && count >= limit {
			return false
		}
		table.Row(strconv.FormatInt(int64(node.ID), 10), node.CreationKey)
		count++
		return true
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, table.Render())
	_, _ = fmt.Fprintf(w, "%s hidden nodes listed\n", humanize.Comma(int64(count)))
	return nil
}

// ListEdges prints up to limit edges of the layer (all if limit <= 0). Edges whose strength magnitude is at
// least highlight are shown in red; highlight <= 0 disables it.
func ListEdges(ctx context.Context, w io.Writer, st store.Store, layer store.Layer, limit int, highlight float64) error {
	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Edges %s", layer)))
	table := newPlainTableWithReds(lipgloss.Right)
	table.Table.Headers("From", "To", "Strength")
	err := st.Edges(ctx, layer, func(e store.Edge) bool {
		if limit > 0 && table.Count >= limit {
			return false
		}
		isRed := highlight > 0 && math.Abs(e.Strength) >= highlight
		table.Row(isRed, strconv.FormatInt(int64(e.From), 10), strconv.FormatInt(int64(e.To), 10),
			fmt.Sprintf("%.6f", e.Strength))
		return true
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, table.Table.Render())
	_, _ = fmt.Fprintf(w, "%s edges listed\n", humanize.Comma(int64(table.Count)))
	return nil
}
