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

	"github.com/rtcview/callstate/pkg/obs"
)

type Sound string

const (
	SoundJoin    Sound = "join"
	SoundLeave   Sound = "leave"
	SoundDecline Sound = "decline"
)

const (
	// soundThrottle keeps a burst of joins from stacking sounds.
	soundThrottle = 500 * time.Millisecond
	// beyond this many participants, join and leave sounds are just noise
	maxSoundParticipants = 8
)

// newSounds emits join/leave cues from participant-count changes and a
// decline cue from the pickup machine. While a pickup wait is still
// undecided, members dropping out are not departures worth a cue.
func newSounds(
	scope *obs.Scope,
	participantCount *obs.Behavior[int],
	pickup *obs.Behavior[PickupState],
	clk clock.Clock,
) *obs.Event[Sound] {
	sounds := obs.NewEvent[Sound]()

	var lock sync.Mutex
	var lastPlayed time.Time
	play := func(s Sound) {
		lock.Lock()
		now := clk.Now()
		throttled := now.Sub(lastPlayed) < soundThrottle
		if !throttled {
			lastPlayed = now
		}
		lock.Unlock()
		if !throttled {
			sounds.Emit(s)
		}
	}

	obs.Pairwise(scope, participantCount).Watch(scope, func(p obs.Pair[int]) {
		if p.Next > maxSoundParticipants {
			return
		}
		if p.Next > p.Prev {
			play(SoundJoin)
		} else if p.Next < p.Prev {
			switch pickup.Get() {
			case PickupStateNone, PickupStateSuccess:
				play(SoundLeave)
			}
		}
	})

	pickup.WatchChanges(scope, func(s PickupState) {
		if s == PickupStateDecline || s == PickupStateTimeout {
			sounds.Emit(SoundDecline)
		}
	})
	return sounds
}
