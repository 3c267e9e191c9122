/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package malloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandle(t *testing.T) {
	tests := []struct {
		tier Tier
		idx  int
		str  string
	}{
		{TierSmall, 0, "small#0"},
		{TierMedium, 31, "medium#31"},
		{TierLarge, MaxGranules - 1, "large#65534"},
		{TierSmall, 1<<32 - 1, "small#4294967295"},
	}
	for _, tt := range tests {
		h := makeHandle(tt.tier, tt.idx)
		assert.False(t, h.IsZero())
		assert.Equal(t, tt.tier, h.Tier())
		assert.Equal(t, tt.idx, h.Index())
		assert.Equal(t, tt.str, h.String())
	}
	var zero Handle
	assert.True(t, zero.IsZero())
	assert.Equal(t, TierNone, zero.Tier())
	assert.Equal(t, "none#0", zero.String())
}

func TestState(t *testing.T) {
	assert.False(t, StateFree.IsAllocated())
	assert.True(t, StateAllocated.IsAllocated())
	assert.True(t, (StateAllocated | StateAligned).IsAllocated())
	assert.Equal(t, "free", StateFree.String())
	assert.Equal(t, "allocated", StateAllocated.String())
	assert.Equal(t, "aligned", (StateAllocated | StateAligned).String())

	text, err := StateAllocated.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "allocated", string(text))
}
