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

// Package rtctest provides in-memory collaborators for exercising the call
// engine without a protocol stack or media transport.
package rtctest

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

type FakeParticipant struct {
	identity string
	local    bool

	SpeakingB *obs.Behavior[bool]
	AudioB    *obs.Behavior[bool]
	VideoB    *obs.Behavior[bool]
	SharingB  *obs.Behavior[bool]
	CameraB   *obs.Behavior[*rtc.TrackRef]
	ScreenB   *obs.Behavior[*rtc.TrackRef]

	Volume *atomic.Float64
}

func NewFakeParticipant(identity string, local bool) *FakeParticipant {
	return &FakeParticipant{
		identity:  identity,
		local:     local,
		SpeakingB: obs.NewDistinctBehavior(false),
		AudioB:    obs.NewDistinctBehavior(false),
		VideoB:    obs.NewDistinctBehavior(false),
		SharingB:  obs.NewDistinctBehavior(false),
		CameraB:   obs.NewBehavior[*rtc.TrackRef](nil),
		ScreenB:   obs.NewBehavior[*rtc.TrackRef](nil),
		Volume:    atomic.NewFloat64(1),
	}
}

func (p *FakeParticipant) Identity() string                        { return p.identity }
func (p *FakeParticipant) IsLocal() bool                           { return p.local }
func (p *FakeParticipant) Speaking() *obs.Behavior[bool]           { return p.SpeakingB }
func (p *FakeParticipant) AudioEnabled() *obs.Behavior[bool]       { return p.AudioB }
func (p *FakeParticipant) VideoEnabled() *obs.Behavior[bool]       { return p.VideoB }
func (p *FakeParticipant) ScreenShareEnabled() *obs.Behavior[bool] { return p.SharingB }

func (p *FakeParticipant) Video(source rtc.TrackSource) *obs.Behavior[*rtc.TrackRef] {
	if source == rtc.TrackSourceScreenShare {
		return p.ScreenB
	}
	return p.CameraB
}

func (p *FakeParticipant) SetVolume(volume float64) {
	p.Volume.Store(volume)
}

type FakeLocalTrack struct {
	KindV       rtc.TrackKind
	SourceV     rtc.TrackSource
	LiveV       *atomic.Bool
	RestartingV *atomic.Bool
	Restarts    *atomic.Int32
	PausedV     *atomic.Bool
	ProcessorV  *atomic.String
}

func NewFakeLocalTrack(kind rtc.TrackKind, source rtc.TrackSource) *FakeLocalTrack {
	return &FakeLocalTrack{
		KindV:       kind,
		SourceV:     source,
		LiveV:       atomic.NewBool(true),
		RestartingV: atomic.NewBool(false),
		Restarts:    atomic.NewInt32(0),
		PausedV:     atomic.NewBool(false),
		ProcessorV:  atomic.NewString(""),
	}
}

func (t *FakeLocalTrack) Kind() rtc.TrackKind     { return t.KindV }
func (t *FakeLocalTrack) Source() rtc.TrackSource { return t.SourceV }
func (t *FakeLocalTrack) Live() bool              { return t.LiveV.Load() }
func (t *FakeLocalTrack) Restarting() bool        { return t.RestartingV.Load() }

func (t *FakeLocalTrack) Restart(ctx context.Context) error {
	t.Restarts.Inc()
	return nil
}

func (t *FakeLocalTrack) UpstreamPaused() bool { return t.PausedV.Load() }

func (t *FakeLocalTrack) PauseUpstream(ctx context.Context) error {
	t.PausedV.Store(true)
	return nil
}

func (t *FakeLocalTrack) ResumeUpstream(ctx context.Context) error {
	t.PausedV.Store(false)
	return nil
}

func (t *FakeLocalTrack) SetProcessor(ctx context.Context, name string) error {
	t.ProcessorV.Store(name)
	return nil
}

func (t *FakeLocalTrack) Processor() string { return t.ProcessorV.Load() }

type FakeLocalParticipant struct {
	*FakeParticipant

	lock      sync.Mutex
	tracks    []rtc.LocalTrack
	published []rtc.LocalTrack

	MicEnabled    *atomic.Bool
	CameraEnabled *atomic.Bool
	Sharing       *atomic.Bool

	// MicResult overrides the state reported back by SetMicrophoneEnabled,
	// nil means echo the request.
	MicResult func(enabled bool) bool
}

func NewFakeLocalParticipant(identity string) *FakeLocalParticipant {
	return &FakeLocalParticipant{
		FakeParticipant: NewFakeParticipant(identity, true),
		MicEnabled:      atomic.NewBool(false),
		CameraEnabled:   atomic.NewBool(false),
		Sharing:         atomic.NewBool(false),
	}
}

func (p *FakeLocalParticipant) CreateTracks(ctx context.Context, audio, video bool) ([]rtc.LocalTrack, error) {
	var tracks []rtc.LocalTrack
	if audio {
		tracks = append(tracks, NewFakeLocalTrack(rtc.TrackKindAudio, rtc.TrackSourceMicrophone))
	}
	if video {
		tracks = append(tracks, NewFakeLocalTrack(rtc.TrackKindVideo, rtc.TrackSourceCamera))
	}
	p.lock.Lock()
	p.tracks = append(p.tracks, tracks...)
	p.lock.Unlock()
	return tracks, nil
}

func (p *FakeLocalParticipant) PublishTrack(ctx context.Context, track rtc.LocalTrack) error {
	p.lock.Lock()
	p.published = append(p.published, track)
	p.lock.Unlock()
	return nil
}

func (p *FakeLocalParticipant) Published() []rtc.LocalTrack {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]rtc.LocalTrack(nil), p.published...)
}

func (p *FakeLocalParticipant) SetMicrophoneEnabled(ctx context.Context, enabled bool) (bool, error) {
	actual := enabled
	if p.MicResult != nil {
		actual = p.MicResult(enabled)
	}
	p.MicEnabled.Store(actual)
	return actual, nil
}

func (p *FakeLocalParticipant) SetCameraEnabled(ctx context.Context, enabled bool) (bool, error) {
	p.CameraEnabled.Store(enabled)
	return enabled, nil
}

func (p *FakeLocalParticipant) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	p.Sharing.Store(enabled)
	return nil
}

func (p *FakeLocalParticipant) MicrophoneTrack() (rtc.LocalTrack, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, t := range p.tracks {
		if t.Source() == rtc.TrackSourceMicrophone {
			return t, true
		}
	}
	return nil, false
}

func (p *FakeLocalParticipant) Tracks() []rtc.LocalTrack {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]rtc.LocalTrack(nil), p.tracks...)
}

type FakeMediaRoom struct {
	Local *FakeLocalParticipant

	StateB  *obs.Behavior[rtc.ConnectionState]
	RemoteB *obs.Behavior[[]rtc.Participant]

	ConnectErr  error
	Connects    *atomic.Int32
	Disconnects *atomic.Int32
	E2EEEnabled *atomic.Bool

	lock          sync.Mutex
	activeDevices map[rtc.DeviceKind]string
	deviceChanged *obs.Event[rtc.DeviceKind]
}

func NewFakeMediaRoom(localIdentity string) *FakeMediaRoom {
	return &FakeMediaRoom{
		Local:         NewFakeLocalParticipant(localIdentity),
		StateB:        obs.NewDistinctBehavior(rtc.ConnectionStateDisconnected),
		RemoteB:       obs.NewBehavior[[]rtc.Participant](nil),
		Connects:      atomic.NewInt32(0),
		Disconnects:   atomic.NewInt32(0),
		E2EEEnabled:   atomic.NewBool(false),
		activeDevices: make(map[rtc.DeviceKind]string),
		deviceChanged: obs.NewEvent[rtc.DeviceKind](),
	}
}

func (r *FakeMediaRoom) Connect(ctx context.Context, url, jwt string) error {
	if r.ConnectErr != nil {
		return r.ConnectErr
	}
	r.Connects.Inc()
	r.StateB.Set(rtc.ConnectionStateConnected)
	return nil
}

func (r *FakeMediaRoom) Disconnect(ctx context.Context) error {
	r.Disconnects.Inc()
	r.StateB.Set(rtc.ConnectionStateDisconnected)
	return nil
}

func (r *FakeMediaRoom) ConnectionState() *obs.Behavior[rtc.ConnectionState] {
	return r.StateB
}

func (r *FakeMediaRoom) RemoteParticipants() *obs.Behavior[[]rtc.Participant] {
	return r.RemoteB
}

func (r *FakeMediaRoom) LocalParticipant() rtc.LocalParticipant {
	return r.Local
}

func (r *FakeMediaRoom) SetE2EEEnabled(enabled bool) error {
	r.E2EEEnabled.Store(enabled)
	return nil
}

func (r *FakeMediaRoom) ActiveDevice(kind rtc.DeviceKind) (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	id, ok := r.activeDevices[kind]
	return id, ok
}

func (r *FakeMediaRoom) SwitchActiveDevice(ctx context.Context, kind rtc.DeviceKind, deviceID string) error {
	r.lock.Lock()
	r.activeDevices[kind] = deviceID
	r.lock.Unlock()
	r.deviceChanged.Emit(kind)
	return nil
}

func (r *FakeMediaRoom) ActiveDeviceChanged() *obs.Event[rtc.DeviceKind] {
	return r.deviceChanged
}

// AddRemote connects a fake remote participant to the room.
func (r *FakeMediaRoom) AddRemote(p *FakeParticipant) {
	r.RemoteB.Set(append(append([]rtc.Participant(nil), r.RemoteB.Get()...), p))
}

// RemoveRemote disconnects a fake remote participant.
func (r *FakeMediaRoom) RemoveRemote(identity string) {
	var remaining []rtc.Participant
	for _, p := range r.RemoteB.Get() {
		if p.Identity() != identity {
			remaining = append(remaining, p)
		}
	}
	r.RemoteB.Set(remaining)
}

type FakeDeviceSelection struct {
	AvailableB *obs.Behavior[[]rtc.MediaDevice]
	SelectedB  *obs.Behavior[*rtc.MediaDevice]
	HardwareE  *obs.Event[struct{}]
}

func NewFakeDeviceSelection(devices ...rtc.MediaDevice) *FakeDeviceSelection {
	var selected *rtc.MediaDevice
	if len(devices) > 0 {
		selected = &devices[0]
	}
	return &FakeDeviceSelection{
		AvailableB: obs.NewBehavior(devices),
		SelectedB:  obs.NewBehavior(selected),
		HardwareE:  obs.NewEvent[struct{}](),
	}
}

func (s *FakeDeviceSelection) Available() *obs.Behavior[[]rtc.MediaDevice] { return s.AvailableB }
func (s *FakeDeviceSelection) Selected() *obs.Behavior[*rtc.MediaDevice]  { return s.SelectedB }

func (s *FakeDeviceSelection) Select(deviceID string) {
	for _, d := range s.AvailableB.Get() {
		if d.ID == deviceID {
			device := d
			s.SelectedB.Set(&device)
			return
		}
	}
}

func (s *FakeDeviceSelection) HardwareChanged() *obs.Event[struct{}] { return s.HardwareE }

type FakeMediaDevices struct {
	AudioIn  *FakeDeviceSelection
	AudioOut *FakeDeviceSelection
	VideoIn  *FakeDeviceSelection
}

func NewFakeMediaDevices() *FakeMediaDevices {
	return &FakeMediaDevices{
		AudioIn:  NewFakeDeviceSelection(rtc.MediaDevice{ID: "mic-default", Label: "Microphone"}),
		AudioOut: NewFakeDeviceSelection(rtc.MediaDevice{ID: "speaker-default", Label: "Speaker"}),
		VideoIn:  NewFakeDeviceSelection(rtc.MediaDevice{ID: "camera-default", Label: "Camera"}),
	}
}

func (d *FakeMediaDevices) AudioInput() rtc.DeviceSelection  { return d.AudioIn }
func (d *FakeMediaDevices) AudioOutput() rtc.DeviceSelection { return d.AudioOut }
func (d *FakeMediaDevices) VideoInput() rtc.DeviceSelection  { return d.VideoIn }
