// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hyperparams holds a set of named hyperparameters with typed default values.
//
// The type of the default value of a parameter defines the type it can later be set to, which is how
// the command-line settings parser (see ui/commandline) knows how to parse values given by the user.
package hyperparams

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// Params is a concurrency-safe collection of hyperparameters.
type Params struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates a Params with the given key/value pairs set.
// It panics if the number of arguments is odd or a key is not a string.
func New(keyValues ...any) *Params {
	if len(keyValues)%2 != 0 {
		panic(errors.Errorf("hyperparams.New requires key/value pairs, got %d arguments", len(keyValues)))
	}
	p := &Params{values: make(map[string]any, len(keyValues)/2)}
	for ii := 0; ii < len(keyValues); ii += 2 {
		key, ok := keyValues[ii].(string)
		if !ok {
			panic(errors.Errorf("hyperparams.New: key #%d must be a string, got %T", ii/2, keyValues[ii]))
		}
		p.values[key] = keyValues[ii+1]
	}
	return p
}

// Set sets the value for key and returns p, so calls can be chained.
func (p *Params) Set(key string, value any) *Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return p
}

// Get returns the value of key and whether it was found.
func (p *Params) Get(key string) (value any, found bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, found = p.values[key]
	return
}

// Keys returns the sorted list of keys.
func (p *Params) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.values))
	for key := range p.values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Enumerate calls fn for each parameter, in key order.
func (p *Params) Enumerate(fn func(key string, value any)) {
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		fn(key, value)
	}
}

// Clone returns an independent copy of p.
func (p *Params) Clone() *Params {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := &Params{values: make(map[string]any, len(p.values))}
	for key, value := range p.values {
		c.values[key] = value
	}
	return c
}

// GetOr returns the value of key converted to T, or defaultValue if p is nil or key is not set.
//
// Numeric values are converted between int and float types, since values parsed from settings may
// not have the exact type of the default.
func GetOr[T any](p *Params, key string, defaultValue T) T {
	if p == nil {
		return defaultValue
	}
	value, found := p.Get(key)
	if !found {
		return defaultValue
	}
	if v, ok := value.(T); ok {
		return v
	}
	var converted any
	switch any(defaultValue).(type) {
	case float64:
		if f, ok := toFloat64(value); ok {
			converted = f
		}
	case int:
		if f, ok := toFloat64(value); ok {
			converted = int(f)
		}
	}
	if v, ok := converted.(T); ok {
		return v
	}
	return defaultValue
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
