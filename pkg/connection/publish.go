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

package connection

import (
	"context"

	"github.com/rtcview/callstate/pkg/media"
	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

type PublishParams struct {
	Params

	MuteStates *media.MuteStates
	Devices    rtc.MediaDevices
	// Processor is the externally desired video frame processor, "" for
	// none.
	Processor *obs.Behavior[string]
}

// PublishConnection is the local participant's outbound connection. On top
// of the base lifecycle it captures and publishes local tracks, keeps the
// mute intents wired to the transport device primitives, syncs selected
// devices, and restarts the microphone when its underlying hardware moves.
type PublishConnection struct {
	*Connection
	publishParams PublishParams
}

func NewPublishConnection(params PublishParams) *PublishConnection {
	p := &PublishConnection{
		Connection:    NewConnection(params.Params),
		publishParams: params,
	}
	p.watchDevices()
	p.watchMicrophoneHardware()
	p.watchProcessor()
	params.Scope.OnEnd(p.unsetMuteHandlers)
	return p
}

func (p *PublishConnection) Publisher() bool { return true }

func (p *PublishConnection) Start(ctx context.Context) error {
	if err := p.Connection.Start(ctx); err != nil {
		return err
	}
	if p.Stopped() {
		return nil
	}

	audio := p.publishParams.MuteStates.Audio.Enabled().Get()
	video := p.publishParams.MuteStates.Video.Enabled().Get()
	local := p.Room().LocalParticipant()

	// with everything muted there is nothing to capture, and that is fine
	if audio || video {
		tracks, err := local.CreateTracks(ctx, audio, video)
		if err != nil {
			p.params.Logger.Warnw("could not create local tracks", err)
		}
		for _, track := range tracks {
			if p.Stopped() {
				return nil
			}
			if err := local.PublishTrack(ctx, track); err != nil {
				p.params.Logger.Errorw("could not publish local track", err, "kind", track.Kind())
			}
		}
	}
	if p.Stopped() {
		return nil
	}

	p.setMuteHandlers()
	return nil
}

func (p *PublishConnection) Stop(ctx context.Context) error {
	p.unsetMuteHandlers()
	return p.Connection.Stop(ctx)
}

func (p *PublishConnection) setMuteHandlers() {
	local := p.Room().LocalParticipant()
	if err := p.publishParams.MuteStates.Audio.SetHandler(local.SetMicrophoneEnabled); err != nil {
		p.params.Logger.Warnw("could not install microphone mute handler", err)
	}
	if err := p.publishParams.MuteStates.Video.SetHandler(local.SetCameraEnabled); err != nil {
		p.params.Logger.Warnw("could not install camera mute handler", err)
	}
}

func (p *PublishConnection) unsetMuteHandlers() {
	p.publishParams.MuteStates.Audio.UnsetHandler()
	p.publishParams.MuteStates.Video.UnsetHandler()
}

// watchDevices pushes the externally selected devices into the room's
// active-device selection whenever they diverge.
func (p *PublishConnection) watchDevices() {
	if p.publishParams.Devices == nil {
		return
	}
	selections := map[rtc.DeviceKind]rtc.DeviceSelection{
		rtc.DeviceKindAudioInput:  p.publishParams.Devices.AudioInput(),
		rtc.DeviceKindAudioOutput: p.publishParams.Devices.AudioOutput(),
		rtc.DeviceKindVideoInput:  p.publishParams.Devices.VideoInput(),
	}
	sync := func(kind rtc.DeviceKind) {
		if p.Status().Get().State != StateConnectedToLkRoom {
			return
		}
		selected := selections[kind].Selected().Get()
		if selected == nil {
			return
		}
		if active, ok := p.Room().ActiveDevice(kind); ok && active == selected.ID {
			return
		}
		if err := p.Room().SwitchActiveDevice(p.params.Scope.Context(), kind, selected.ID); err != nil {
			p.params.Logger.Warnw("could not switch active device", err, "kind", kind.String())
		}
	}
	for kind, selection := range selections {
		kind := kind
		selection.Selected().WatchChanges(p.params.Scope, func(*rtc.MediaDevice) { sync(kind) })
	}
	p.Status().WatchChanges(p.params.Scope, func(s Status) {
		if s.State == StateConnectedToLkRoom {
			for kind := range selections {
				sync(kind)
			}
		}
	})
}

// watchMicrophoneHardware restarts the microphone track when the OS moves
// the selected input device to different hardware. Some browsers keep the
// old capture running on the stale device otherwise. Skipped when the
// track already ended or a restart is in flight.
func (p *PublishConnection) watchMicrophoneHardware() {
	if p.publishParams.Devices == nil {
		return
	}
	p.publishParams.Devices.AudioInput().HardwareChanged().Watch(p.params.Scope, func(struct{}) {
		track, ok := p.Room().LocalParticipant().MicrophoneTrack()
		if !ok || !track.Live() || track.Restarting() {
			return
		}
		go func() {
			if err := track.Restart(p.params.Scope.Context()); err != nil {
				p.params.Logger.Warnw("could not restart microphone track", err)
			}
		}()
	})
}

// watchProcessor keeps the camera track's frame processor aligned with the
// desired one.
func (p *PublishConnection) watchProcessor() {
	if p.publishParams.Processor == nil {
		return
	}
	sync := func(desired string) {
		for _, track := range p.Room().LocalParticipant().Tracks() {
			if track.Source() != rtc.TrackSourceCamera || track.Processor() == desired {
				continue
			}
			if err := track.SetProcessor(p.params.Scope.Context(), desired); err != nil {
				p.params.Logger.Warnw("could not set video processor", err, "processor", desired)
			}
		}
	}
	p.publishParams.Processor.WatchChanges(p.params.Scope, sync)
	p.Status().WatchChanges(p.params.Scope, func(s Status) {
		if s.State == StateConnectedToLkRoom {
			sync(p.publishParams.Processor.Get())
		}
	})
}
