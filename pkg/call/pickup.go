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

	"github.com/benbjohnson/clock"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

// PickupState tracks whether an outgoing call got picked up.
type PickupState string

const (
	// PickupStateNone means pickup tracking is disabled.
	PickupStateNone PickupState = ""
	// PickupStateUnknown holds until we know whether this device rang
	// anyone, and whenever the media connection is down.
	PickupStateUnknown PickupState = "unknown"
	PickupStateRinging PickupState = "ringing"
	PickupStateTimeout PickupState = "timeout"
	PickupStateDecline PickupState = "decline"
	PickupStateSuccess PickupState = "success"
)

// newRing follows the local device's most recent ring notification:
// ringing for the notification's lifetime, then timeout, unless a matching
// decline from someone else arrives while still ringing. A zero lifetime
// skips straight to timeout.
func newRing(
	scope *obs.Scope,
	notifications *obs.Event[rtc.CallNotification],
	timeline rtc.Timeline,
	selfUserID string,
	clk clock.Clock,
) *obs.Behavior[PickupState] {
	ring := obs.NewDistinctBehavior(PickupStateNone)
	var lock sync.Mutex
	var currentID string
	var timer *clock.Timer

	notifications.Watch(scope, func(n rtc.CallNotification) {
		if n.NotificationType != rtc.NotificationTypeRing {
			return
		}
		lock.Lock()
		currentID = n.EventID
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		if n.Lifetime <= 0 {
			lock.Unlock()
			ring.Set(PickupStateTimeout)
			return
		}
		id := n.EventID
		timer = clk.AfterFunc(n.Lifetime, func() {
			lock.Lock()
			stale := currentID != id
			lock.Unlock()
			if !stale && ring.Get() == PickupStateRinging {
				ring.Set(PickupStateTimeout)
			}
		})
		lock.Unlock()
		ring.Set(PickupStateRinging)
	})

	timeline.Events().Watch(scope, func(ev rtc.TimelineEvent) {
		if ev.Type != rtc.EventTypeRTCDecline ||
			ev.RelationType != rtc.RelationReference ||
			ev.Sender == selfUserID {
			return
		}
		lock.Lock()
		match := currentID != "" && ev.RelatesToEventID == currentID
		lock.Unlock()
		// a decline after the timeout no longer changes anything
		if match && ring.Get() == PickupStateRinging {
			ring.Set(PickupStateDecline)
		}
	})

	scope.OnEnd(func() {
		lock.Lock()
		if timer != nil {
			timer.Stop()
		}
		lock.Unlock()
	})
	return ring
}
