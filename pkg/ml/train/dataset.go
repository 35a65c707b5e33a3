// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"math/rand/v2"
	"slices"

	"github.com/gomlx/searchnet/pkg/store"
)

// Record is one example: the active feature ids, the candidate output ids and the correct one.
type Record struct {
	Features []store.ID
	Outputs  []store.ID
	Label    store.ID
}

// Dataset for a train.Loop provides the data, one Record at a time.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield the next record. If the error is io.EOF the training/evaluation terminates
	// normally, as it indicates end of data for finite datasets, maybe the end of the epoch.
	//
	// Any other errors should interrupt the training/evaluation and be returned to the user.
	//
	// If using Loop.RunSteps for training having an infinite dataset is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	Yield() (Record, error)
}

// HasShortName allows a dataset to specify a short name (used when displaying a short version of metric names).
// It defaults to the first 3 letters of the dataset name.
//
// It's optional.
type HasShortName interface {
	// ShortName returns the short name of the dataset.
	ShortName() string
}

// ShortName returns the short name of the dataset, see HasShortName.
func ShortName(ds Dataset) string {
	if named, ok := ds.(HasShortName); ok {
		return named.ShortName()
	}
	name := []rune(ds.Name())
	return string(name[:min(3, len(name))])
}

// InMemoryDataset yields records from a slice held in memory.
type InMemoryDataset struct {
	name     string
	records  []Record
	order    []int
	next     int
	infinite bool
	rng      *rand.Rand
}

var _ Dataset = (*InMemoryDataset)(nil)

// NewInMemoryDataset creates a dataset over records. The slice is not copied, it shouldn't be changed
// while the dataset is in use.
func NewInMemoryDataset(name string, records []Record) *InMemoryDataset {
	ds := &InMemoryDataset{name: name, records: records, order: make([]int, len(records))}
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	return ds
}

// Shuffle makes the dataset yield records in a new random order at every epoch, using rng.
// It returns the dataset, so calls can be chained.
func (ds *InMemoryDataset) Shuffle(rng *rand.Rand) *InMemoryDataset {
	ds.rng = rng
	ds.shuffle()
	return ds
}

// Infinite makes the dataset restart (and reshuffle, if configured) after the last record instead of
// returning io.EOF. It returns the dataset, so calls can be chained.
func (ds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	ds.infinite = infinite
	return ds
}

func (ds *InMemoryDataset) shuffle() {
	if ds.rng == nil {
		return
	}
	ds.rng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// Name implements Dataset.
func (ds *InMemoryDataset) Name() string { return ds.name }

// Len returns the number of records in one epoch.
func (ds *InMemoryDataset) Len() int { return len(ds.records) }

// Records returns the underlying records, in their original order.
func (ds *InMemoryDataset) Records() []Record { return ds.records }

// Reset implements Dataset.
func (ds *InMemoryDataset) Reset() {
	ds.next = 0
	ds.shuffle()
}

// Yield implements Dataset.
func (ds *InMemoryDataset) Yield() (Record, error) {
	if ds.next >= len(ds.order) {
		if !ds.infinite || len(ds.order) == 0 {
			return Record{}, io.EOF
		}
		ds.Reset()
	}
	rec := ds.records[ds.order[ds.next]]
	ds.next++
	return Record{
		Features: slices.Clone(rec.Features),
		Outputs:  slices.Clone(rec.Outputs),
		Label:    rec.Label,
	}, nil
}
