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

package rtc

import (
	"context"

	"github.com/rtcview/callstate/pkg/obs"
)

type ConnectionState int

const (
	ConnectionStateDisconnected ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

type TrackSource int

const (
	TrackSourceUnknown TrackSource = iota
	TrackSourceMicrophone
	TrackSourceCamera
	TrackSourceScreenShare
	TrackSourceScreenShareAudio
)

func (s TrackSource) String() string {
	switch s {
	case TrackSourceMicrophone:
		return "microphone"
	case TrackSourceCamera:
		return "camera"
	case TrackSourceScreenShare:
		return "screen_share"
	case TrackSourceScreenShareAudio:
		return "screen_share_audio"
	}
	return "unknown"
}

type TrackKind int

const (
	TrackKindAudio TrackKind = iota
	TrackKindVideo
)

// TrackRef points at a published track on a participant, for consumption
// by tile view models.
type TrackRef struct {
	Participant Participant
	Source      TrackSource
	Muted       bool
	Encrypted   bool
}

// MediaRoom is one transport-level room connection. Each instance is
// exclusively owned by the connection that created it.
type MediaRoom interface {
	Connect(ctx context.Context, url string, jwt string) error
	Disconnect(ctx context.Context) error

	ConnectionState() *obs.Behavior[ConnectionState]
	RemoteParticipants() *obs.Behavior[[]Participant]
	LocalParticipant() LocalParticipant

	SetE2EEEnabled(enabled bool) error

	ActiveDevice(kind DeviceKind) (string, bool)
	SwitchActiveDevice(ctx context.Context, kind DeviceKind, deviceID string) error
	ActiveDeviceChanged() *obs.Event[DeviceKind]
}

// Participant is a live media-transport participant.
type Participant interface {
	Identity() string
	IsLocal() bool

	Speaking() *obs.Behavior[bool]
	AudioEnabled() *obs.Behavior[bool]
	VideoEnabled() *obs.Behavior[bool]
	ScreenShareEnabled() *obs.Behavior[bool]
	// Video observes the published track for source, nil while unpublished.
	Video(source TrackSource) *obs.Behavior[*TrackRef]

	// SetVolume scales local playback of the participant's audio.
	SetVolume(volume float64)
}

type LocalParticipant interface {
	Participant

	// CreateTracks captures local devices. Requesting neither kind returns
	// an empty slice without error.
	CreateTracks(ctx context.Context, audio, video bool) ([]LocalTrack, error)
	PublishTrack(ctx context.Context, track LocalTrack) error

	// SetMicrophoneEnabled and SetCameraEnabled return the state the device
	// actually reached, which may differ from the request.
	SetMicrophoneEnabled(ctx context.Context, enabled bool) (bool, error)
	SetCameraEnabled(ctx context.Context, enabled bool) (bool, error)
	SetScreenShareEnabled(ctx context.Context, enabled bool) error

	MicrophoneTrack() (LocalTrack, bool)
	Tracks() []LocalTrack
}

type LocalTrack interface {
	Kind() TrackKind
	Source() TrackSource

	// Live is false once the underlying capture has ended.
	Live() bool
	Restarting() bool
	Restart(ctx context.Context) error

	UpstreamPaused() bool
	PauseUpstream(ctx context.Context) error
	ResumeUpstream(ctx context.Context) error

	// SetProcessor installs a named frame processor, "" removes it.
	SetProcessor(ctx context.Context, name string) error
	Processor() string
}

type DeviceKind int

const (
	DeviceKindAudioInput DeviceKind = iota
	DeviceKindAudioOutput
	DeviceKindVideoInput
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindAudioInput:
		return "audioinput"
	case DeviceKindAudioOutput:
		return "audiooutput"
	case DeviceKindVideoInput:
		return "videoinput"
	}
	return "unknown"
}

type MediaDevice struct {
	ID    string
	Label string
}

// DeviceSelection tracks the available and selected device of one kind.
type DeviceSelection interface {
	Available() *obs.Behavior[[]MediaDevice]
	Selected() *obs.Behavior[*MediaDevice]
	Select(deviceID string)
	// HardwareChanged fires when the OS retargets the selected device to
	// different underlying hardware, e.g. the system default device.
	HardwareChanged() *obs.Event[struct{}]
}

type MediaDevices interface {
	AudioInput() DeviceSelection
	AudioOutput() DeviceSelection
	VideoInput() DeviceSelection
}

// RoomOptions configures a media room at creation time.
type RoomOptions struct {
	Encryption           EncryptionSystem
	AudioCaptureDeviceID string
	VideoCaptureDeviceID string
	AudioOutputDeviceID  string
	VideoProcessor       string
}

// MediaRoomFactory builds transport-level rooms. The e2ee setup is fixed at
// creation; changing the encryption system mid-call requires a new room.
type MediaRoomFactory func(opts RoomOptions) MediaRoom
