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

package fixedlist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList(t *testing.T) {
	l := New[int](4)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 4, l.Cap())
	_, ok := l.Pop()
	assert.False(t, ok)

	for i := 0; i < 4; i++ {
		assert.True(t, l.Push(i*10))
	}
	assert.True(t, l.Full())
	assert.False(t, l.Push(40))
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, 20, l.At(2))

	l.Swap(0, 3)
	assert.Equal(t, 30, l.At(0))
	assert.Equal(t, 0, l.At(3))

	*l.Pointer(1) = 11
	assert.Equal(t, 11, l.At(1))

	v, ok := l.Pop()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.False(t, l.Full())

	sum := 0
	l.Do(func(v *int) { sum += *v })
	assert.Equal(t, 30+11+20, sum)

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 4, l.Cap())
	assert.Panics(t, func() { l.At(0) })
	assert.Panics(t, func() { New[int](-1) })
}

func TestListRemoveAt(t *testing.T) {
	l := New[string](5)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		l.Push(s)
	}
	assert.Equal(t, "b", l.RemoveAt(1))
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, "e", l.At(1))

	assert.Equal(t, "d", l.RemoveAt(3))
	assert.Equal(t, []string{"a", "e", "c"}, collect(l))

	// the vacated slot is zeroed
	assert.Equal(t, "", l.items[:4][3])
}

func TestListRandom(t *testing.T) {
	const n = 64
	l := New[int](n)
	live := map[int]bool{}
	r := rand.New(rand.NewSource(1))
	next := 0
	for i := 0; i < 10000; i++ {
		if l.Len() > 0 && (l.Full() || r.Intn(2) == 0) {
			v := l.RemoveAt(r.Intn(l.Len()))
			assert.True(t, live[v])
			delete(live, v)
			continue
		}
		assert.True(t, l.Push(next))
		live[next] = true
		next++
	}
	assert.Equal(t, len(live), l.Len())
	l.Do(func(v *int) { assert.True(t, live[*v]) })
}

func collect[T any](l *List[T]) []T {
	var out []T
	l.Do(func(v *T) { out = append(out, *v) })
	return out
}

func BenchmarkListPushRemove(b *testing.B) {
	l := New[int](1024)
	for i := 0; i < b.N; i++ {
		if !l.Push(i) {
			l.RemoveAt(i % l.Len())
		}
	}
}
