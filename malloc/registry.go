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
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/gopkg/util/logger"
)

// Registry is a set of named BlockAllocators with one of them marked active.
// It replaces process wide allocator state: every test or subsystem creates
// its own Registry and passes it where allocators are looked up.
//
// Registry methods are safe for concurrent use; the allocators it holds are not.
type Registry struct {
	mu         sync.Mutex
	allocators map[string]*BlockAllocator
	active     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{allocators: make(map[string]*BlockAllocator)}
}

// Create builds a BlockAllocator over arena and registers it under name.
// The first allocator created becomes the active one.
func (r *Registry) Create(name string, arena []byte, desc *Desc) (*BlockAllocator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.allocators[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}
	a, err := NewBlockAllocator(arena, desc)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	r.allocators[name] = a
	if r.active == "" {
		r.active = name
	}
	logger.Debugf("malloc: registry: created %q (%d bytes)", name, desc.PoolSize)
	return a, nil
}

// Lookup returns the allocator registered under name.
func (r *Registry) Lookup(name string) (*BlockAllocator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocators[name]
	return a, ok
}

// SetActive marks the allocator registered under name as active.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.allocators[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	r.active = name
	return nil
}

// Active returns the active allocator and its name.
func (r *Registry) Active() (string, *BlockAllocator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return "", nil, false
	}
	return r.active, r.allocators[r.active], true
}

// Release unregisters the allocator under name. Its arena belongs to the
// caller again once every allocation made from it is dropped. Releasing
// the active allocator leaves the registry without an active one.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.allocators[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.allocators, name)
	if r.active == name {
		r.active = ""
	}
	logger.Debugf("malloc: registry: released %q", name)
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.allocators))
	for name := range r.allocators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
