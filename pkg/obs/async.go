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

import "context"

type AsyncState int32

const (
	AsyncLoading AsyncState = iota
	AsyncReady
	AsyncError
)

func (s AsyncState) String() string {
	switch s {
	case AsyncLoading:
		return "loading"
	case AsyncReady:
		return "ready"
	case AsyncError:
		return "error"
	}
	return "unknown"
}

// Async carries the progress of a one-shot asynchronous computation.
type Async[T any] struct {
	State AsyncState
	Value T
	Err   error
}

func Loading[T any]() Async[T] {
	return Async[T]{State: AsyncLoading}
}

func Ready[T any](value T) Async[T] {
	return Async[T]{State: AsyncReady, Value: value}
}

func Failed[T any](err error) Async[T] {
	return Async[T]{State: AsyncError, Err: err}
}

func (a Async[T]) IsReady() bool   { return a.State == AsyncReady }
func (a Async[T]) IsLoading() bool { return a.State == AsyncLoading }
func (a Async[T]) IsError() bool   { return a.State == AsyncError }

// MapAsync applies f to a ready value, passing loading and error through.
func MapAsync[A, B any](a Async[A], f func(A) B) Async[B] {
	switch a.State {
	case AsyncReady:
		return Ready(f(a.Value))
	case AsyncError:
		return Failed[B](a.Err)
	default:
		return Loading[B]()
	}
}

// Observe runs f on its own goroutine and exposes its progress as a
// behavior. The context is cancelled when the scope ends; a result arriving
// after the scope ended is discarded.
func Observe[T any](scope *Scope, f func(ctx context.Context) (T, error)) *Behavior[Async[T]] {
	out := NewBehavior(Loading[T]())
	ctx := scope.Context()
	go func() {
		value, err := f(ctx)
		if scope.Ended() {
			return
		}
		if err != nil {
			out.Set(Failed[T](err))
		} else {
			out.Set(Ready(value))
		}
	}()
	return out
}
