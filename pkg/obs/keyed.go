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

// CreateOrGet hands a projection function access to the generator's pool of
// keyed items. Calling it with a key seen during a previous projection
// returns the item unchanged; an unseen key invokes factory with a fresh
// scope owned by the generator.
type CreateOrGet[Item any] func(key string, factory func(scope *Scope) Item) Item

type keyedItem[Item any] struct {
	item  Item
	scope *Scope
}

// GenerateKeyed derives a behavior from input via project, while managing a
// pool of keyed items on the projection's behalf. Items requested during a
// projection survive into the next one under the same key; items no longer
// requested have their scopes ended immediately after the projection
// returns. When the outer scope ends, every remaining item scope ends.
//
// The scopes handed to factories are owned by the generator. Ending one
// from inside an item is not supported.
func GenerateKeyed[In, Item, Out any](
	scope *Scope,
	input *Behavior[In],
	project func(in In, createOrGet CreateOrGet[Item]) Out,
) *Behavior[Out] {
	var lock sync.Mutex
	items := make(map[string]keyedItem[Item])

	run := func(in In) Out {
		lock.Lock()
		next := make(map[string]keyedItem[Item])
		out := project(in, func(key string, factory func(*Scope) Item) Item {
			if existing, ok := next[key]; ok {
				return existing.item
			}
			if existing, ok := items[key]; ok {
				next[key] = existing
				return existing.item
			}
			itemScope := NewScope()
			created := keyedItem[Item]{item: factory(itemScope), scope: itemScope}
			next[key] = created
			return created.item
		})
		var dropped []keyedItem[Item]
		for key, existing := range items {
			if _, ok := next[key]; !ok {
				dropped = append(dropped, existing)
			}
		}
		items = next
		lock.Unlock()

		// item teardown may touch other behaviors, keep it outside the lock
		for _, existing := range dropped {
			existing.scope.End()
		}
		return out
	}

	result := NewBehavior(run(input.Get()))
	input.WatchChanges(scope, func(in In) { result.Set(run(in)) })
	scope.OnEnd(func() {
		lock.Lock()
		remaining := items
		items = make(map[string]keyedItem[Item])
		lock.Unlock()
		for _, existing := range remaining {
			existing.scope.End()
		}
	})
	return result
}
