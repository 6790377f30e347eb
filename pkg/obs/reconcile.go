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

import (
	"sync"

	"github.com/livekit/protocol/logger"
)

// Reconcile mirrors the value of src into an external side effect.
//
// apply runs on a dedicated worker, never concurrently with itself. Before
// each apply, the cleanup returned by the previous apply runs. Values
// arriving while an apply is in flight are coalesced: only the latest one
// is applied next. When the scope ends, the final cleanup runs and the
// worker exits. An error from apply stops reconciliation for this scope;
// pending cleanup is discarded.
func Reconcile[T any](
	scope *Scope,
	src *Behavior[T],
	log logger.Logger,
	apply func(value T) (cleanup func(), err error),
) {
	var lock sync.Mutex
	var latest T
	hasLatest := false
	running := false
	stopped := false
	var cleanup func()

	var loop func()
	loop = func() {
		for {
			lock.Lock()
			if stopped {
				running = false
				prev := cleanup
				cleanup = nil
				lock.Unlock()
				if prev != nil {
					prev()
				}
				return
			}
			if !hasLatest {
				running = false
				lock.Unlock()
				return
			}
			value := latest
			hasLatest = false
			prev := cleanup
			cleanup = nil
			lock.Unlock()

			if prev != nil {
				prev()
			}
			next, err := apply(value)
			if err != nil {
				log.Warnw("reconciliation failed", err)
				lock.Lock()
				stopped = true
				running = false
				lock.Unlock()
				return
			}
			lock.Lock()
			cleanup = next
			lock.Unlock()
		}
	}

	enqueue := func(value T) {
		lock.Lock()
		if stopped {
			lock.Unlock()
			return
		}
		latest = value
		hasLatest = true
		start := !running
		if start {
			running = true
		}
		lock.Unlock()
		if start {
			go loop()
		}
	}

	src.Watch(scope, enqueue)
	scope.OnEnd(func() {
		lock.Lock()
		if stopped {
			lock.Unlock()
			return
		}
		stopped = true
		start := !running
		if start {
			running = true
		}
		lock.Unlock()
		if start {
			go loop()
		}
	})
}
