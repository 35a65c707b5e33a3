// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[string](10)
	assert.Len(t, s, 0)

	s.Insert("retention", "label")
	assert.True(t, s.Has("label"))
	assert.False(t, s.Has("user_profile_id"))

	s2 := MakeWith("label", "user_profile_id")
	assert.Equal(t, []string{"retention"}, Sorted(s.Sub(s2)))
	assert.Empty(t, Sorted(Make[int]()))
	assert.Equal(t, []int{-3, 1, 7}, Sorted(MakeWith(7, -3, 1, 7)))
}
