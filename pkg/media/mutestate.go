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
	"context"
	"sync"

	"github.com/livekit/protocol/logger"
	"github.com/pkg/errors"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

// MuteHandler applies a desired mute state to the transport and returns
// the state the device actually reached.
type MuteHandler func(ctx context.Context, enabled bool) (bool, error)

var ErrHandlerAlreadySet = errors.New("mute handler already set")

// MuteState is the user's intent to have one kind of media enabled,
// reconciled against the transport-level device primitives. Without a
// handler installed, intent is reflected directly. With a handler, every
// intent change flows through it and the actual resulting state flows
// back; rapid changes are serialized, applying only the latest.
type MuteState struct {
	lock    sync.Mutex
	scope   *obs.Scope
	devices rtc.DeviceSelection
	logger  logger.Logger

	enabled *obs.Behavior[bool]
	handler MuteHandler

	latestDesired bool
	hasDesired    bool
	syncing       bool
}

// NewMuteState creates a mute state tied to one device selection. devices
// may be nil when the media kind has no selectable device; the state then
// only tracks intent. While no device is available, the state is forced
// disabled and requests to enable are ignored.
func NewMuteState(scope *obs.Scope, devices rtc.DeviceSelection, enabledByDefault bool, log logger.Logger) *MuteState {
	m := &MuteState{
		scope:   scope,
		devices: devices,
		logger:  log,
		enabled: obs.NewDistinctBehavior(enabledByDefault && deviceAvailable(devices)),
	}
	if devices != nil {
		devices.Available().WatchChanges(scope, func(available []rtc.MediaDevice) {
			if len(available) == 0 {
				m.SetEnabled(false)
			}
		})
	}
	return m
}

func deviceAvailable(devices rtc.DeviceSelection) bool {
	if devices == nil {
		return true
	}
	return len(devices.Available().Get()) > 0
}

func (m *MuteState) Enabled() *obs.Behavior[bool] {
	return m.enabled
}

func (m *MuteState) Toggle() {
	m.SetEnabled(!m.enabled.Get())
}

func (m *MuteState) SetEnabled(enabled bool) {
	if enabled && !deviceAvailable(m.devices) {
		return
	}
	m.lock.Lock()
	m.latestDesired = enabled
	m.hasDesired = true
	start := !m.syncing
	if start {
		m.syncing = true
	}
	m.lock.Unlock()
	if start {
		go m.sync()
	}
}

func (m *MuteState) sync() {
	for {
		m.lock.Lock()
		if !m.hasDesired {
			m.syncing = false
			m.lock.Unlock()
			return
		}
		desired := m.latestDesired
		m.hasDesired = false
		handler := m.handler
		m.lock.Unlock()

		if handler == nil {
			m.enabled.Set(desired)
			continue
		}
		actual, err := handler(m.scope.Context(), desired)
		if err != nil {
			m.logger.Warnw("could not apply mute state", err, "desired", desired)
			m.lock.Lock()
			m.syncing = false
			m.lock.Unlock()
			return
		}
		m.enabled.Set(actual)
	}
}

// SetHandler installs the transport handler and pushes the current intent
// through it.
func (m *MuteState) SetHandler(handler MuteHandler) error {
	m.lock.Lock()
	if m.handler != nil {
		m.lock.Unlock()
		return ErrHandlerAlreadySet
	}
	m.handler = handler
	m.lock.Unlock()

	m.SetEnabled(m.enabled.Get())
	return nil
}

func (m *MuteState) UnsetHandler() {
	m.lock.Lock()
	m.handler = nil
	m.lock.Unlock()
}

// MuteStates bundles the local microphone and camera intents. When a host
// bridge is present, mute changes are mirrored to the host and host mute
// requests are applied locally.
type MuteStates struct {
	Audio *MuteState
	Video *MuteState

	lock sync.Mutex
	// last (audio, video) pair the host already knows about, either
	// because we sent it or because the host requested it
	reportedAudio bool
	reportedVideo bool
	reportedValid bool
}

type MuteStatesParams struct {
	Scope               *obs.Scope
	Devices             rtc.MediaDevices
	Bridge              rtc.HostBridge
	AudioEnabledDefault bool
	VideoEnabledDefault bool
	Logger              logger.Logger
}

func NewMuteStates(params MuteStatesParams) *MuteStates {
	var audioDevices, videoDevices rtc.DeviceSelection
	if params.Devices != nil {
		audioDevices = params.Devices.AudioInput()
		videoDevices = params.Devices.VideoInput()
	}
	m := &MuteStates{
		Audio: NewMuteState(params.Scope, audioDevices, params.AudioEnabledDefault, params.Logger),
		Video: NewMuteState(params.Scope, videoDevices, params.VideoEnabledDefault, params.Logger),
	}
	if params.Bridge != nil {
		notify := func(bool) {
			audio := m.Audio.Enabled().Get()
			video := m.Video.Enabled().Get()
			m.lock.Lock()
			if m.reportedValid && m.reportedAudio == audio && m.reportedVideo == video {
				m.lock.Unlock()
				return
			}
			m.reportedAudio, m.reportedVideo, m.reportedValid = audio, video, true
			m.lock.Unlock()
			if err := params.Bridge.Send(params.Scope.Context(), rtc.HostAction{
				Name:         rtc.HostActionDeviceMute,
				AudioEnabled: &audio,
				VideoEnabled: &video,
			}); err != nil {
				params.Logger.Warnw("could not notify host of mute change", err)
			}
		}
		m.Audio.Enabled().WatchChanges(params.Scope, notify)
		m.Video.Enabled().WatchChanges(params.Scope, notify)

		params.Bridge.Actions().Watch(params.Scope, func(action rtc.HostAction) {
			if action.Name != rtc.HostActionDeviceMute {
				return
			}
			// the host already knows the state it asked for, so the mute
			// change landing later must not echo back to it
			audio := m.Audio.Enabled().Get()
			video := m.Video.Enabled().Get()
			if action.AudioEnabled != nil {
				audio = *action.AudioEnabled
			}
			if action.VideoEnabled != nil {
				video = *action.VideoEnabled
			}
			m.lock.Lock()
			m.reportedAudio, m.reportedVideo, m.reportedValid = audio, video, true
			m.lock.Unlock()
			if action.AudioEnabled != nil {
				m.Audio.SetEnabled(*action.AudioEnabled)
			}
			if action.VideoEnabled != nil {
				m.Video.SetEnabled(*action.VideoEnabled)
			}
		})
	}
	return m
}
