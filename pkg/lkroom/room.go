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

// Package lkroom adapts the LiveKit client SDK to the media-room surface
// the connection layer drives. One Room wraps one lksdk.Room for its whole
// lifetime; the connection owning it connects it exactly once.
package lkroom

import (
	"context"
	"sync"

	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/logger"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

type Room struct {
	scope *obs.Scope
	log   logger.Logger
	opts  rtc.RoomOptions

	room  *lksdk.Room
	local *localParticipant

	state   *obs.Behavior[rtc.ConnectionState]
	remotes *obs.Behavior[[]rtc.Participant]

	lock         sync.Mutex
	participants map[string]*participant
	devices      map[rtc.DeviceKind]string
	e2eeEnabled  bool

	deviceChanged *obs.Event[rtc.DeviceKind]
}

// NewRoom builds a disconnected room. The scope bounds every observer the
// adapter creates on the sdk's behalf.
func NewRoom(scope *obs.Scope, opts rtc.RoomOptions, log logger.Logger) *Room {
	r := &Room{
		scope:         scope,
		log:           log,
		opts:          opts,
		state:         obs.NewDistinctBehavior(rtc.ConnectionStateDisconnected),
		remotes:       obs.NewBehaviorWithEquality(nil, obs.SliceEq[rtc.Participant]),
		participants:  make(map[string]*participant),
		devices:       make(map[rtc.DeviceKind]string),
		deviceChanged: obs.NewEvent[rtc.DeviceKind](),
	}
	r.room = lksdk.NewRoom(r.callback())
	r.local = newLocalParticipant(r)
	scope.OnEnd(func() {
		if r.state.Get() != rtc.ConnectionStateDisconnected {
			r.room.Disconnect()
		}
	})
	return r
}

// Factory returns a rtc.MediaRoomFactory producing adapter rooms bound to
// child scopes of the given scope.
func Factory(scope *obs.Scope, log logger.Logger) rtc.MediaRoomFactory {
	return func(opts rtc.RoomOptions) rtc.MediaRoom {
		return NewRoom(scope.Child(), opts, log)
	}
}

func (r *Room) callback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            func() { r.state.Set(rtc.ConnectionStateDisconnected) },
		OnReconnecting:            func() { r.state.Set(rtc.ConnectionStateReconnecting) },
		OnReconnected:             func() { r.state.Set(rtc.ConnectionStateConnected) },
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackMuted:        r.onTrackChanged,
			OnTrackUnmuted:      r.onTrackChanged,
			OnTrackPublished:    r.onTrackPublished,
			OnTrackUnpublished:  r.onTrackUnpublished,
			OnIsSpeakingChanged: r.onIsSpeakingChanged,
		},
	}
}

func (r *Room) Connect(ctx context.Context, url string, jwt string) error {
	r.state.Set(rtc.ConnectionStateConnecting)
	if err := r.room.JoinWithToken(url, jwt, lksdk.WithAutoSubscribe(true)); err != nil {
		r.state.Set(rtc.ConnectionStateDisconnected)
		return err
	}
	r.state.Set(rtc.ConnectionStateConnected)
	r.syncRemotes()
	return nil
}

func (r *Room) Disconnect(ctx context.Context) error {
	r.room.Disconnect()
	r.state.Set(rtc.ConnectionStateDisconnected)
	return nil
}

func (r *Room) ConnectionState() *obs.Behavior[rtc.ConnectionState] { return r.state }
func (r *Room) RemoteParticipants() *obs.Behavior[[]rtc.Participant] { return r.remotes }
func (r *Room) LocalParticipant() rtc.LocalParticipant               { return r.local }

func (r *Room) SetE2EEEnabled(enabled bool) error {
	r.lock.Lock()
	r.e2eeEnabled = enabled
	r.lock.Unlock()
	return nil
}

func (r *Room) e2ee() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.e2eeEnabled
}

func (r *Room) ActiveDevice(kind rtc.DeviceKind) (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	id, ok := r.devices[kind]
	return id, ok
}

func (r *Room) SwitchActiveDevice(ctx context.Context, kind rtc.DeviceKind, deviceID string) error {
	r.lock.Lock()
	r.devices[kind] = deviceID
	r.lock.Unlock()
	r.deviceChanged.Emit(kind)
	return nil
}

func (r *Room) ActiveDeviceChanged() *obs.Event[rtc.DeviceKind] { return r.deviceChanged }

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	r.syncRemotes()
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	r.lock.Lock()
	delete(r.participants, rp.Identity())
	r.lock.Unlock()
	r.syncRemotes()
}

func (r *Room) onTrackPublished(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	r.refresh(rp.Identity())
}

func (r *Room) onTrackUnpublished(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	r.refresh(rp.Identity())
}

func (r *Room) onTrackChanged(pub lksdk.TrackPublication, p lksdk.Participant) {
	r.refresh(p.Identity())
}

func (r *Room) onIsSpeakingChanged(p lksdk.Participant) {
	r.lock.Lock()
	adapter, ok := r.participants[p.Identity()]
	r.lock.Unlock()
	if ok {
		adapter.speaking.Set(p.IsSpeaking())
	}
}

// syncRemotes rebuilds the published participant list from the sdk's
// current view, reusing adapters so participant identity is stable for
// observers.
func (r *Room) syncRemotes() {
	sdkRemotes := r.room.GetRemoteParticipants()

	r.lock.Lock()
	out := make([]rtc.Participant, 0, len(sdkRemotes))
	for _, rp := range sdkRemotes {
		adapter, ok := r.participants[rp.Identity()]
		if !ok {
			adapter = newParticipant(r, rp.Identity())
			r.participants[rp.Identity()] = adapter
		}
		adapter.update(rp)
		out = append(out, adapter)
	}
	r.lock.Unlock()

	r.remotes.Set(out)
}

func (r *Room) refresh(identity string) {
	r.lock.Lock()
	adapter, ok := r.participants[identity]
	r.lock.Unlock()
	if !ok {
		return
	}
	for _, rp := range r.room.GetRemoteParticipants() {
		if rp.Identity() == identity {
			adapter.update(rp)
			return
		}
	}
}

func sourceFromProto(source livekit.TrackSource) rtc.TrackSource {
	switch source {
	case livekit.TrackSource_MICROPHONE:
		return rtc.TrackSourceMicrophone
	case livekit.TrackSource_CAMERA:
		return rtc.TrackSourceCamera
	case livekit.TrackSource_SCREEN_SHARE:
		return rtc.TrackSourceScreenShare
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return rtc.TrackSourceScreenShareAudio
	}
	return rtc.TrackSourceUnknown
}

func sourceToProto(source rtc.TrackSource) livekit.TrackSource {
	switch source {
	case rtc.TrackSourceMicrophone:
		return livekit.TrackSource_MICROPHONE
	case rtc.TrackSourceCamera:
		return livekit.TrackSource_CAMERA
	case rtc.TrackSourceScreenShare:
		return livekit.TrackSource_SCREEN_SHARE
	case rtc.TrackSourceScreenShareAudio:
		return livekit.TrackSource_SCREEN_SHARE_AUDIO
	}
	return livekit.TrackSource_UNKNOWN
}
