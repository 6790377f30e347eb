/*
 * Copyright 2025 LiveKit, Inc
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

package obs

import "sync"

// Behavior is a multicast container that always holds a current value.
// Subscribers receive the current value synchronously on subscription, then
// every subsequent change. Dispatch happens outside the internal lock, so
// observers may read or update other behaviors re-entrantly.
type Behavior[T any] struct {
	lock    sync.Mutex
	value   T
	eq      func(a, b T) bool
	nextID  int
	observers map[int]func(T)
}

// NewBehavior returns a behavior that notifies observers on every Set.
func NewBehavior[T any](initial T) *Behavior[T] {
	return &Behavior[T]{
		value:     initial,
		observers: make(map[int]func(T)),
	}
}

// NewBehaviorWithEquality returns a behavior that drops a Set whose value
// compares equal to the current one.
func NewBehaviorWithEquality[T any](initial T, eq func(a, b T) bool) *Behavior[T] {
	b := NewBehavior(initial)
	b.eq = eq
	return b
}

// NewDistinctBehavior is NewBehaviorWithEquality specialized to ==.
func NewDistinctBehavior[T comparable](initial T) *Behavior[T] {
	return NewBehaviorWithEquality(initial, func(a, b T) bool { return a == b })
}

func (b *Behavior[T]) Get() T {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.value
}

func (b *Behavior[T]) Set(value T) {
	b.lock.Lock()
	if b.eq != nil && b.eq(b.value, value) {
		b.lock.Unlock()
		return
	}
	b.value = value
	observers := make([]func(T), 0, len(b.observers))
	for _, fn := range b.observers {
		observers = append(observers, fn)
	}
	b.lock.Unlock()

	for _, fn := range observers {
		fn(value)
	}
}

// Update applies f to the current value under the lock and sets the result.
func (b *Behavior[T]) Update(f func(T) T) {
	b.lock.Lock()
	value := f(b.value)
	b.lock.Unlock()
	b.Set(value)
}

// Subscribe delivers the current value synchronously, then every change
// until the returned cancel func is called.
func (b *Behavior[T]) Subscribe(fn func(T)) func() {
	b.lock.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	current := b.value
	b.lock.Unlock()

	fn(current)
	return func() {
		b.lock.Lock()
		delete(b.observers, id)
		b.lock.Unlock()
	}
}

// OnChange delivers changes only, without replaying the current value.
func (b *Behavior[T]) OnChange(fn func(T)) func() {
	b.lock.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.lock.Unlock()

	return func() {
		b.lock.Lock()
		delete(b.observers, id)
		b.lock.Unlock()
	}
}

// Watch is Subscribe bound to a scope: the subscription is cancelled when
// the scope ends.
func (b *Behavior[T]) Watch(scope *Scope, fn func(T)) {
	scope.OnEnd(b.Subscribe(fn))
}

// WatchChanges is OnChange bound to a scope.
func (b *Behavior[T]) WatchChanges(scope *Scope, fn func(T)) {
	scope.OnEnd(b.OnChange(fn))
}

// Constant returns a behavior that never changes.
func Constant[T any](value T) *Behavior[T] {
	return NewBehavior(value)
}

// SliceEq reports equality of two slices element-wise with ==.
func SliceEq[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
