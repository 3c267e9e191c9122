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
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, _, ok := r.Active()
	assert.False(t, ok)

	desc := testDesc()
	size := desc.SmallBytes + desc.MediumBytes + desc.LargeBytes
	engine, err := r.Create("engine", make([]byte, size), desc)
	require.NoError(t, err)
	scratch, err := r.Create("scratch", make([]byte, size), testDesc())
	require.NoError(t, err)

	name, a, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, "engine", name)
	assert.Same(t, engine, a)

	_, err = r.Create("engine", make([]byte, size), testDesc())
	assert.ErrorIs(t, err, ErrExists)
	_, err = r.Create("broken", make([]byte, 10), testDesc())
	assert.ErrorIs(t, err, ErrArenaTooSmall)

	require.NoError(t, r.SetActive("scratch"))
	name, a, _ = r.Active()
	assert.Equal(t, "scratch", name)
	assert.Same(t, scratch, a)
	assert.ErrorIs(t, r.SetActive("missing"), ErrNotFound)

	got, ok := r.Lookup("engine")
	assert.True(t, ok)
	assert.Same(t, engine, got)
	assert.Equal(t, []string{"engine", "scratch"}, r.Names())

	require.NoError(t, r.Release("scratch"))
	_, _, ok = r.Active()
	assert.False(t, ok)
	assert.ErrorIs(t, r.Release("scratch"), ErrNotFound)
	assert.Equal(t, []string{"engine"}, r.Names())
}
