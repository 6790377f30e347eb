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

package call

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rtcview/callstate/pkg/layout"
	"github.com/rtcview/callstate/pkg/obs"
)

const footerHideDelay = 4 * time.Second

// footer auto-hides the control bar in flat windows: any interaction shows
// it and restarts the hide timer; hovering the controls holds it open. In
// normal and narrow windows the footer is always shown, in pip never.
type footer struct {
	lock     sync.Mutex
	clk      clock.Clock
	mode     *obs.Behavior[layout.WindowMode]
	shown    *obs.Behavior[bool]
	hovering bool
	timer    *clock.Timer
}

func newFooter(scope *obs.Scope, mode *obs.Behavior[layout.WindowMode], clk clock.Clock) *footer {
	f := &footer{
		clk:   clk,
		mode:  mode,
		shown: obs.NewDistinctBehavior(true),
	}
	mode.Watch(scope, func(m layout.WindowMode) {
		switch m {
		case layout.WindowModeFlat:
			f.shown.Set(false)
		case layout.WindowModePip:
			f.shown.Set(false)
		default:
			f.stopTimer()
			f.shown.Set(true)
		}
	})
	scope.OnEnd(f.stopTimer)
	return f
}

func (f *footer) Shown() *obs.Behavior[bool] { return f.shown }

func (f *footer) stopTimer() {
	f.lock.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.lock.Unlock()
}

func (f *footer) interact() {
	if f.mode.Get() != layout.WindowModeFlat {
		return
	}
	f.shown.Set(true)
	f.lock.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = f.clk.AfterFunc(footerHideDelay, func() {
		f.lock.Lock()
		hovering := f.hovering
		f.lock.Unlock()
		if !hovering && f.mode.Get() == layout.WindowModeFlat {
			f.shown.Set(false)
		}
	})
	f.lock.Unlock()
}

func (f *footer) hover(hovering bool) {
	f.lock.Lock()
	f.hovering = hovering
	f.lock.Unlock()
	if hovering {
		if f.mode.Get() == layout.WindowModeFlat {
			f.shown.Set(true)
		}
	} else {
		f.interact()
	}
}
