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

	"github.com/livekit/protocol/logger"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

// Reaction is an ephemeral per-participant reaction.
type Reaction struct {
	Name  string
	Emoji string
}

// ViewModel is one tile's worth of presentation state. The underlying
// transport participant is replaceable: it may appear and disappear while
// the view model persists, so tile identity never churns with
// connectivity.
type ViewModel interface {
	ID() string
	Member() rtc.RoomMember
	Local() bool
	DisplayName() *obs.Behavior[string]
	Video() *obs.Behavior[*rtc.TrackRef]
	// UnencryptedWarning is true when the call is encrypted but this tile's
	// media is not.
	UnencryptedWarning() *obs.Behavior[bool]
}

type UserMediaViewModel interface {
	ViewModel
	Speaking() *obs.Behavior[bool]
	AudioEnabled() *obs.Behavior[bool]
	VideoEnabled() *obs.Behavior[bool]
	ScreenSharing() *obs.Behavior[bool]
	// HandRaised is the time the hand was raised, nil while lowered.
	HandRaised() *obs.Behavior[*time.Time]
	Reaction() *obs.Behavior[*Reaction]
}

type UserMediaParams struct {
	Scope       *obs.Scope
	ID          string
	Member      rtc.RoomMember
	DisplayName *obs.Behavior[string]
	Participant *obs.Behavior[rtc.Participant]
	Encryption  rtc.EncryptionSystem
	HandRaised  *obs.Behavior[*time.Time]
	Reaction    *obs.Behavior[*Reaction]
	Logger      logger.Logger
}

type baseViewModel struct {
	id          string
	member      rtc.RoomMember
	local       bool
	displayName *obs.Behavior[string]
	video       *obs.Behavior[*rtc.TrackRef]
	unencrypted *obs.Behavior[bool]
}

func newBaseViewModel(
	scope *obs.Scope,
	id string,
	member rtc.RoomMember,
	local bool,
	displayName *obs.Behavior[string],
	participant *obs.Behavior[rtc.Participant],
	source rtc.TrackSource,
	encryption rtc.EncryptionSystem,
) baseViewModel {
	video := obs.SwitchMap(scope, participant,
		func(s *obs.Scope, p rtc.Participant) *obs.Behavior[*rtc.TrackRef] {
			if p == nil {
				return obs.Constant[*rtc.TrackRef](nil)
			}
			return p.Video(source)
		})
	unencrypted := obs.MapDistinct(scope, video, func(ref *rtc.TrackRef) bool {
		return encryption.Kind != rtc.EncryptionNone && ref != nil && !ref.Encrypted
	})
	return baseViewModel{
		id:          id,
		member:      member,
		local:       local,
		displayName: displayName,
		video:       video,
		unencrypted: unencrypted,
	}
}

func (b *baseViewModel) ID() string                            { return b.id }
func (b *baseViewModel) Member() rtc.RoomMember                { return b.member }
func (b *baseViewModel) Local() bool                           { return b.local }
func (b *baseViewModel) DisplayName() *obs.Behavior[string]    { return b.displayName }
func (b *baseViewModel) Video() *obs.Behavior[*rtc.TrackRef]   { return b.video }
func (b *baseViewModel) UnencryptedWarning() *obs.Behavior[bool] { return b.unencrypted }

type userMediaViewModel struct {
	baseViewModel
	speaking     *obs.Behavior[bool]
	audioEnabled *obs.Behavior[bool]
	videoEnabled *obs.Behavior[bool]
	sharing      *obs.Behavior[bool]
	handRaised   *obs.Behavior[*time.Time]
	reaction     *obs.Behavior[*Reaction]
}

func newUserMediaViewModel(params UserMediaParams, local bool) userMediaViewModel {
	participantBool := func(pick func(rtc.Participant) *obs.Behavior[bool]) *obs.Behavior[bool] {
		return obs.SwitchMap(params.Scope, params.Participant,
			func(s *obs.Scope, p rtc.Participant) *obs.Behavior[bool] {
				if p == nil {
					return obs.Constant(false)
				}
				return pick(p)
			})
	}
	return userMediaViewModel{
		baseViewModel: newBaseViewModel(
			params.Scope, params.ID, params.Member, local,
			params.DisplayName, params.Participant, rtc.TrackSourceCamera, params.Encryption,
		),
		speaking:     participantBool(rtc.Participant.Speaking),
		audioEnabled: participantBool(rtc.Participant.AudioEnabled),
		videoEnabled: participantBool(rtc.Participant.VideoEnabled),
		sharing:      participantBool(rtc.Participant.ScreenShareEnabled),
		handRaised:   params.HandRaised,
		reaction:     params.Reaction,
	}
}

func (u *userMediaViewModel) Speaking() *obs.Behavior[bool]      { return u.speaking }
func (u *userMediaViewModel) AudioEnabled() *obs.Behavior[bool]  { return u.audioEnabled }
func (u *userMediaViewModel) VideoEnabled() *obs.Behavior[bool]  { return u.videoEnabled }
func (u *userMediaViewModel) ScreenSharing() *obs.Behavior[bool] { return u.sharing }
func (u *userMediaViewModel) HandRaised() *obs.Behavior[*time.Time] { return u.handRaised }
func (u *userMediaViewModel) Reaction() *obs.Behavior[*Reaction] { return u.reaction }

// LocalUserMediaViewModel is the local user's own tile.
type LocalUserMediaViewModel struct {
	userMediaViewModel
	alwaysShow *obs.Behavior[bool]
}

func NewLocalUserMediaViewModel(params UserMediaParams, alwaysShow *obs.Behavior[bool]) *LocalUserMediaViewModel {
	return &LocalUserMediaViewModel{
		userMediaViewModel: newUserMediaViewModel(params, true),
		alwaysShow:         alwaysShow,
	}
}

// AlwaysShow is the user's preference to keep their own tile in the grid
// even while inactive.
func (l *LocalUserMediaViewModel) AlwaysShow() *obs.Behavior[bool] {
	return l.alwaysShow
}

// RemoteUserMediaViewModel is a remote participant's tile, with local
// playback volume control.
type RemoteUserMediaViewModel struct {
	userMediaViewModel
	locallyMuted    *obs.Behavior[bool]
	localVolume     *obs.Behavior[float64]
	committedVolume float64
}

func NewRemoteUserMediaViewModel(params UserMediaParams) *RemoteUserMediaViewModel {
	r := &RemoteUserMediaViewModel{
		userMediaViewModel: newUserMediaViewModel(params, false),
		locallyMuted:       obs.NewDistinctBehavior(false),
		localVolume:        obs.NewDistinctBehavior(1.0),
		committedVolume:    1.0,
	}
	// effective volume follows both the volume slider and the local mute
	effective := obs.Combine2(params.Scope, r.locallyMuted, r.localVolume,
		func(muted bool, volume float64) float64 {
			if muted {
				return 0
			}
			return volume
		})
	obs.Combine2(params.Scope, params.Participant, effective,
		func(p rtc.Participant, volume float64) struct{} {
			if p != nil {
				p.SetVolume(volume)
			}
			return struct{}{}
		})
	return r
}

func (r *RemoteUserMediaViewModel) LocallyMuted() *obs.Behavior[bool] { return r.locallyMuted }
func (r *RemoteUserMediaViewModel) LocalVolume() *obs.Behavior[float64] { return r.localVolume }

func (r *RemoteUserMediaViewModel) ToggleLocallyMuted() {
	r.locallyMuted.Set(!r.locallyMuted.Get())
}

// SetLocalVolume previews a volume while the user drags the slider.
func (r *RemoteUserMediaViewModel) SetLocalVolume(volume float64) {
	r.localVolume.Set(volume)
}

// CommitLocalVolume persists the previewed volume. Committing zero counts
// as a local mute so the slider can snap back to the last audible value.
func (r *RemoteUserMediaViewModel) CommitLocalVolume() {
	volume := r.localVolume.Get()
	if volume == 0 {
		r.locallyMuted.Set(true)
		r.localVolume.Set(r.committedVolume)
		return
	}
	r.committedVolume = volume
	r.locallyMuted.Set(false)
}

// ScreenShareViewModel is the synthetic tile for one participant's screen
// share.
type ScreenShareViewModel struct {
	baseViewModel
}

func NewScreenShareViewModel(params UserMediaParams, local bool) *ScreenShareViewModel {
	return &ScreenShareViewModel{
		baseViewModel: newBaseViewModel(
			params.Scope, params.ID, params.Member, local,
			params.DisplayName, params.Participant, rtc.TrackSourceScreenShare, params.Encryption,
		),
	}
}
