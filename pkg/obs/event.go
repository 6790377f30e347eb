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

// Event is a multicast stream with no current value. An emission reaches
// only the observers subscribed at the time of the Emit.
type Event[T any] struct {
	lock      sync.Mutex
	nextID    int
	observers map[int]func(T)
}

func NewEvent[T any]() *Event[T] {
	return &Event[T]{
		observers: make(map[int]func(T)),
	}
}

func (e *Event[T]) Emit(value T) {
	e.lock.Lock()
	observers := make([]func(T), 0, len(e.observers))
	for _, fn := range e.observers {
		observers = append(observers, fn)
	}
	e.lock.Unlock()

	for _, fn := range observers {
		fn(value)
	}
}

func (e *Event[T]) Subscribe(fn func(T)) func() {
	e.lock.Lock()
	id := e.nextID
	e.nextID++
	e.observers[id] = fn
	e.lock.Unlock()

	return func() {
		e.lock.Lock()
		delete(e.observers, id)
		e.lock.Unlock()
	}
}

// Watch is Subscribe bound to a scope.
func (e *Event[T]) Watch(scope *Scope, fn func(T)) {
	scope.OnEnd(e.Subscribe(fn))
}
