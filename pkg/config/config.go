// Copyright 2025 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"

	"github.com/rtcview/callstate/pkg/rtc"
)

var ErrTransportIncomplete = errors.New("a configured transport needs a service URL")

type Config struct {
	// DefaultTransport is used when the homeserver does not advertise one.
	DefaultTransport *TransportConfig `yaml:"default_transport,omitempty"`
	// TransportOverride skips discovery entirely. Development use only.
	TransportOverride *TransportConfig `yaml:"transport_override,omitempty"`

	Call    CallConfig    `yaml:"call,omitempty"`
	Media   MediaConfig   `yaml:"media,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

type TransportConfig struct {
	ServiceURL string `yaml:"service_url"`
}

func (t *TransportConfig) Transport(alias string) rtc.Transport {
	return rtc.Transport{ServiceURL: t.ServiceURL, Alias: alias}
}

type CallConfig struct {
	// AutoLeave leaves the call automatically when everyone else has left,
	// or when an outgoing ring times out or is declined.
	AutoLeave         bool `yaml:"auto_leave,omitempty"`
	WaitForCallPickup bool `yaml:"wait_for_call_pickup,omitempty"`
	// ScreenShareSupported is false on platforms without capture support.
	ScreenShareSupported bool `yaml:"screen_share_supported,omitempty"`
	HideScreenSharing    bool `yaml:"hide_screen_sharing,omitempty"`
}

type MediaConfig struct {
	AudioEnabledDefault bool `yaml:"audio_enabled_default,omitempty"`
	VideoEnabledDefault bool `yaml:"video_enabled_default,omitempty"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
}

func DefaultConfig() *Config {
	return &Config{
		Call: CallConfig{
			WaitForCallPickup:    true,
			ScreenShareSupported: true,
		},
		Media: MediaConfig{
			AudioEnabledDefault: true,
			VideoEnabledDefault: true,
		},
		Logging: LoggingConfig{
			Config: logger.Config{Level: "info"},
		},
	}
}

// NewConfig parses a YAML configuration, strictly rejecting unknown keys.
// An empty string yields the defaults.
func NewConfig(confString string) (*Config, error) {
	conf := DefaultConfig()
	if confString != "" {
		decoder := yaml.NewDecoder(bytes.NewReader([]byte(confString)))
		decoder.KnownFields(true)
		if err := decoder.Decode(conf); err != nil {
			return nil, errors.Wrap(err, "could not parse config")
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	for _, t := range []*TransportConfig{c.DefaultTransport, c.TransportOverride} {
		if t != nil && t.ServiceURL == "" {
			return ErrTransportIncomplete
		}
	}
	return nil
}
