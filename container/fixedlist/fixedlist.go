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

// List is a bounded list whose storage is allocated by one malloc at
// construction and never grows.
// Removal swaps the last item into the hole, so order is not preserved.
type List[T any] struct {
	items []T
}

// New creates a list that holds at most capacity items.
func New[T any](capacity int) *List[T] {
	if capacity < 0 {
		panic("fixedlist: negative capacity")
	}
	return &List[T]{items: make([]T, 0, capacity)}
}

// Push appends v. It returns false if the list is full.
func (l *List[T]) Push(v T) bool {
	if len(l.items) == cap(l.items) {
		return false
	}
	l.items = append(l.items, v)
	return true
}

// Pop removes and returns the last item.
func (l *List[T]) Pop() (T, bool) {
	var zero T
	n := len(l.items)
	if n == 0 {
		return zero, false
	}
	v := l.items[n-1]
	l.items[n-1] = zero
	l.items = l.items[:n-1]
	return v, true
}

// At returns the ith item. Panics if i is out of range.
func (l *List[T]) At(i int) T {
	return l.items[i]
}

// Pointer returns the pointer of the ith item.
// Do not keep it across Push, Pop or RemoveAt.
func (l *List[T]) Pointer(i int) *T {
	return &l.items[i]
}

// Swap swaps the ith and jth items.
func (l *List[T]) Swap(i, j int) {
	l.items[i], l.items[j] = l.items[j], l.items[i]
}

// RemoveAt removes the ith item in O(1) by moving the last item into its place.
func (l *List[T]) RemoveAt(i int) T {
	v := l.items[i]
	last := len(l.items) - 1
	l.items[i] = l.items[last]
	var zero T
	l.items[last] = zero
	l.items = l.items[:last]
	return v
}

// Do calls function f on each item in index order.
func (l *List[T]) Do(f func(v *T)) {
	for i := range l.items {
		f(&l.items[i])
	}
}

// Len returns the number of items.
func (l *List[T]) Len() int {
	return len(l.items)
}

// Cap returns the capacity of the list.
func (l *List[T]) Cap() int {
	return cap(l.items)
}

// Full reports whether Push would fail.
func (l *List[T]) Full() bool {
	return len(l.items) == cap(l.items)
}

// Reset removes every item, keeping the storage.
func (l *List[T]) Reset() {
	clear(l.items)
	l.items = l.items[:0]
}
