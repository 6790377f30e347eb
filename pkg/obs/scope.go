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
	"context"
	"sync"

	"github.com/frostbyte73/core"
)

// Scope bounds the lifetime of a group of subscriptions and side effects.
// Everything registered against a scope is released exactly once when the
// scope ends, in registration order.
type Scope struct {
	lock   sync.Mutex
	fuse   core.Fuse
	onEnd  []func()
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScope() *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Child returns a scope that ends when the parent ends, and may also be
// ended independently.
func (s *Scope) Child() *Scope {
	child := NewScope()
	s.OnEnd(child.End)
	return child
}

func (s *Scope) Ended() bool {
	return s.fuse.IsBroken()
}

// Done is closed when the scope ends.
func (s *Scope) Done() <-chan struct{} {
	return s.fuse.Watch()
}

// Context is cancelled when the scope ends.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// OnEnd registers fn to run when the scope ends. If the scope has already
// ended, fn runs immediately.
func (s *Scope) OnEnd(fn func()) {
	s.lock.Lock()
	if s.fuse.IsBroken() {
		s.lock.Unlock()
		fn()
		return
	}
	s.onEnd = append(s.onEnd, fn)
	s.lock.Unlock()
}

// End releases the scope. Subsequent calls are no-ops.
func (s *Scope) End() {
	s.lock.Lock()
	if s.fuse.IsBroken() {
		s.lock.Unlock()
		return
	}
	s.fuse.Break()
	fns := s.onEnd
	s.onEnd = nil
	s.lock.Unlock()

	s.cancel()
	for _, fn := range fns {
		fn()
	}
}
