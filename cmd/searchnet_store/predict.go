// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/support/xslices"
	"github.com/pkg/errors"
)

// parseIDs parses a comma-separated list of ids, e.g. "101,102".
func parseIDs(s string) ([]store.ID, error) {
	var ids []store.ID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid id %q in %q", part, s)
		}
		ids = append(ids, store.ID(id))
	}
	return ids, nil
}

// Predict prints the network outputs for the feature ids, highlighting the largest one, and the hidden nodes used.
func Predict(ctx context.Context, w io.Writer, st store.Store, featureIDs, outputIDs []store.ID) error {
	engine, err := engineFor(ctx, st)
	if err != nil {
		return err
	}
	net, err := engine.Network(ctx, featureIDs, outputIDs)
	if err != nil {
		return err
	}
	outputs := net.FeedForward()
	best := xslices.ArgMax(outputs)

	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Predict %v", featureIDs)))
	table := newPlainTableWithReds(lipgloss.Right)
	table.Table.Headers("Output", "Activation")
	for k, outputID := range outputIDs {
		table.Row(k == best, strconv.FormatInt(int64(outputID), 10), fmt.Sprintf("%.6f", outputs[k]))
	}
	_, _ = fmt.Fprintln(w, table.Table.Render())
	_, _ = fmt.Fprintf(w, "hidden nodes: %v\n", net.HiddenIDs)
	return nil
}
