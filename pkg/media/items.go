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

package media

import (
	"time"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

// SortingBin orders grid tiles by how much they deserve attention. Lower
// bins sort first; ties keep stable insertion order.
type SortingBin int

const (
	BinSelfAlwaysShown SortingBin = iota
	BinPresenters
	BinSpeakers
	BinHandRaised
	BinVideo
	BinNoVideo
	BinSelfNotAlwaysShown
)

// Item is one tile's identity in the call, persisting across participant
// connectivity changes.
type Item interface {
	ID() string
	Media() ViewModel
}

// UserMedia is the tile for one (participant, duplicate index).
type UserMedia struct {
	id  string
	vm  UserMediaViewModel
	participant *obs.Behavior[rtc.Participant]
	bin *obs.Behavior[SortingBin]
}

func NewUserMedia(params UserMediaParams, local bool, alwaysShow *obs.Behavior[bool]) *UserMedia {
	var vm UserMediaViewModel
	if local {
		vm = NewLocalUserMediaViewModel(params, alwaysShow)
	} else {
		vm = NewRemoteUserMediaViewModel(params)
	}
	u := &UserMedia{
		id:          params.ID,
		vm:          vm,
		participant: params.Participant,
	}
	compute := func() SortingBin {
		switch {
		case local && alwaysShow != nil && alwaysShow.Get():
			return BinSelfAlwaysShown
		case vm.ScreenSharing().Get():
			return BinPresenters
		case vm.Speaking().Get():
			return BinSpeakers
		case vm.HandRaised().Get() != nil:
			return BinHandRaised
		case local:
			return BinSelfNotAlwaysShown
		case vm.VideoEnabled().Get():
			return BinVideo
		default:
			return BinNoVideo
		}
	}
	u.bin = obs.NewDistinctBehavior(compute())
	recompute := func() { u.bin.Set(compute()) }
	vm.ScreenSharing().WatchChanges(params.Scope, func(bool) { recompute() })
	vm.Speaking().WatchChanges(params.Scope, func(bool) { recompute() })
	vm.VideoEnabled().WatchChanges(params.Scope, func(bool) { recompute() })
	vm.HandRaised().WatchChanges(params.Scope, func(*time.Time) { recompute() })
	if local && alwaysShow != nil {
		alwaysShow.WatchChanges(params.Scope, func(bool) { recompute() })
	}
	return u
}

func (u *UserMedia) ID() string            { return u.id }
func (u *UserMedia) Media() ViewModel      { return u.vm }
func (u *UserMedia) VM() UserMediaViewModel { return u.vm }

// Bin is the tile's current sorting bin.
func (u *UserMedia) Bin() *obs.Behavior[SortingBin] { return u.bin }

// UpdateParticipant swaps the underlying transport participant, nil when
// the member is currently not connected.
func (u *UserMedia) UpdateParticipant(p rtc.Participant) {
	u.participant.Set(p)
}

// ScreenShare is the synthetic tile that appears while a participant
// shares their screen.
type ScreenShare struct {
	id string
	vm *ScreenShareViewModel
	participant *obs.Behavior[rtc.Participant]
}

func NewScreenShare(params UserMediaParams, local bool) *ScreenShare {
	return &ScreenShare{
		id:          params.ID,
		vm:          NewScreenShareViewModel(params, local),
		participant: params.Participant,
	}
}

func (s *ScreenShare) ID() string       { return s.id }
func (s *ScreenShare) Media() ViewModel { return s.vm }
func (s *ScreenShare) VM() *ScreenShareViewModel { return s.vm }

func (s *ScreenShare) UpdateParticipant(p rtc.Participant) {
	s.participant.Set(p)
}
