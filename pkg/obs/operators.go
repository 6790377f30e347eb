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

// Map derives a behavior by applying f to every value of src.
func Map[A, B any](scope *Scope, src *Behavior[A], f func(A) B) *Behavior[B] {
	out := NewBehavior(f(src.Get()))
	src.WatchChanges(scope, func(a A) { out.Set(f(a)) })
	return out
}

// MapDistinct is Map with == deduplication on the output.
func MapDistinct[A any, B comparable](scope *Scope, src *Behavior[A], f func(A) B) *Behavior[B] {
	out := NewDistinctBehavior(f(src.Get()))
	src.WatchChanges(scope, func(a A) { out.Set(f(a)) })
	return out
}

// MapWithEquality is Map with a caller-supplied equality on the output.
func MapWithEquality[A, B any](scope *Scope, src *Behavior[A], eq func(a, b B) bool, f func(A) B) *Behavior[B] {
	out := NewBehaviorWithEquality(f(src.Get()), eq)
	src.WatchChanges(scope, func(a A) { out.Set(f(a)) })
	return out
}

func Combine2[A, B, O any](scope *Scope, a *Behavior[A], b *Behavior[B], f func(A, B) O) *Behavior[O] {
	out := NewBehavior(f(a.Get(), b.Get()))
	a.WatchChanges(scope, func(A) { out.Set(f(a.Get(), b.Get())) })
	b.WatchChanges(scope, func(B) { out.Set(f(a.Get(), b.Get())) })
	return out
}

func Combine3[A, B, C, O any](scope *Scope, a *Behavior[A], b *Behavior[B], c *Behavior[C], f func(A, B, C) O) *Behavior[O] {
	out := NewBehavior(f(a.Get(), b.Get(), c.Get()))
	recompute := func() { out.Set(f(a.Get(), b.Get(), c.Get())) }
	a.WatchChanges(scope, func(A) { recompute() })
	b.WatchChanges(scope, func(B) { recompute() })
	c.WatchChanges(scope, func(C) { recompute() })
	return out
}

func Combine4[A, B, C, D, O any](scope *Scope, a *Behavior[A], b *Behavior[B], c *Behavior[C], d *Behavior[D], f func(A, B, C, D) O) *Behavior[O] {
	out := NewBehavior(f(a.Get(), b.Get(), c.Get(), d.Get()))
	recompute := func() { out.Set(f(a.Get(), b.Get(), c.Get(), d.Get())) }
	a.WatchChanges(scope, func(A) { recompute() })
	b.WatchChanges(scope, func(B) { recompute() })
	c.WatchChanges(scope, func(C) { recompute() })
	d.WatchChanges(scope, func(D) { recompute() })
	return out
}

// CombineAll derives a behavior from a fixed set of same-typed inputs.
func CombineAll[T, O any](scope *Scope, srcs []*Behavior[T], f func([]T) O) *Behavior[O] {
	snapshot := func() []T {
		values := make([]T, len(srcs))
		for i, src := range srcs {
			values[i] = src.Get()
		}
		return values
	}
	out := NewBehavior(f(snapshot()))
	for _, src := range srcs {
		src.WatchChanges(scope, func(T) { out.Set(f(snapshot())) })
	}
	return out
}

// And is true while every input is true.
func And(scope *Scope, srcs ...*Behavior[bool]) *Behavior[bool] {
	compute := func() bool {
		for _, src := range srcs {
			if !src.Get() {
				return false
			}
		}
		return true
	}
	out := NewDistinctBehavior(compute())
	for _, src := range srcs {
		src.WatchChanges(scope, func(bool) { out.Set(compute()) })
	}
	return out
}

// SwitchMap projects each value of src into an inner behavior and follows
// the latest one. The scope passed to f ends when src produces the next
// value (or when the outer scope ends), releasing whatever f built.
func SwitchMap[A, B any](scope *Scope, src *Behavior[A], f func(*Scope, A) *Behavior[B]) *Behavior[B] {
	var lock sync.Mutex
	inner := scope.Child()
	current := f(inner, src.Get())
	out := NewBehavior(current.Get())
	cancelInner := current.OnChange(out.Set)

	src.WatchChanges(scope, func(a A) {
		lock.Lock()
		cancelInner()
		inner.End()
		inner = scope.Child()
		next := f(inner, a)
		cancelInner = next.OnChange(out.Set)
		lock.Unlock()
		out.Set(next.Get())
	})
	scope.OnEnd(func() {
		lock.Lock()
		defer lock.Unlock()
		cancelInner()
	})
	return out
}

// Hold turns an event stream into a behavior seeded with initial.
func Hold[T any](scope *Scope, src *Event[T], initial T) *Behavior[T] {
	out := NewBehavior(initial)
	src.Watch(scope, out.Set)
	return out
}

// Accumulate folds every emission of src into a running state.
func Accumulate[S, E any](scope *Scope, src *Event[E], initial S, update func(S, E) S) *Behavior[S] {
	out := NewBehavior(initial)
	src.Watch(scope, func(e E) {
		out.Set(update(out.Get(), e))
	})
	return out
}

// Pairwise emits the previous and current value of src on every change.
func Pairwise[T any](scope *Scope, src *Behavior[T]) *Event[Pair[T]] {
	out := NewEvent[Pair[T]]()
	prev := src.Get()
	src.WatchChanges(scope, func(v T) {
		p := Pair[T]{Prev: prev, Next: v}
		prev = v
		out.Emit(p)
	})
	return out
}

type Pair[T any] struct {
	Prev T
	Next T
}

// PauseWhen holds the last delivered value while paused is true. While
// paused, intermediate upstream values are dropped; on resume the latest
// upstream value is delivered only when eq says it differs from the last
// delivered one.
func PauseWhen[T any](scope *Scope, src *Behavior[T], paused *Behavior[bool], eq func(T, T) bool) *Behavior[T] {
	var lock sync.Mutex
	pending := false
	out := NewBehaviorWithEquality(src.Get(), eq)

	src.WatchChanges(scope, func(v T) {
		lock.Lock()
		if paused.Get() {
			pending = true
			lock.Unlock()
			return
		}
		lock.Unlock()
		out.Set(v)
	})
	paused.WatchChanges(scope, func(p bool) {
		lock.Lock()
		if p || !pending {
			lock.Unlock()
			return
		}
		pending = false
		lock.Unlock()
		out.Set(src.Get())
	})
	return out
}

// Merge multiplexes several event streams into one.
func Merge[T any](scope *Scope, srcs ...*Event[T]) *Event[T] {
	out := NewEvent[T]()
	for _, src := range srcs {
		src.Watch(scope, out.Emit)
	}
	return out
}

func MapEvent[A, B any](scope *Scope, src *Event[A], f func(A) B) *Event[B] {
	out := NewEvent[B]()
	src.Watch(scope, func(a A) { out.Emit(f(a)) })
	return out
}

func FilterEvent[T any](scope *Scope, src *Event[T], pred func(T) bool) *Event[T] {
	out := NewEvent[T]()
	src.Watch(scope, func(v T) {
		if pred(v) {
			out.Emit(v)
		}
	})
	return out
}
