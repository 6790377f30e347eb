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
	"time"
)

// Transport addresses one SFU-backed conferencing room.
type Transport struct {
	ServiceURL string
	Alias      string
}

// Key is a stable serialization used to identify connection instances.
func (t Transport) Key() string {
	return t.ServiceURL + "|" + t.Alias
}

func (t Transport) Valid() bool {
	return t.ServiceURL != ""
}

// ParticipantID identifies one device of one user across the protocol
// session and the media transport.
type ParticipantID struct {
	UserID   string
	DeviceID string
}

func (id ParticipantID) String() string {
	return id.UserID + ":" + id.DeviceID
}

// Membership is a participant's claim to be in the call, sourced from room
// state. Transport is the member's declared media transport preference,
// nil when the member did not declare one.
type Membership struct {
	UserID    string
	DeviceID  string
	CreatedAt time.Time
	Transport *Transport
}

func (m Membership) ID() ParticipantID {
	return ParticipantID{UserID: m.UserID, DeviceID: m.DeviceID}
}

// MemberTransport pairs a membership with the transport it resolved to.
type MemberTransport struct {
	Membership Membership
	Transport  Transport
}

// PublishingParticipant pairs a membership with the live media participant
// publishing on one connection. Participant is nil while the member has not
// yet connected to that SFU room; the membership alone keeps them listed.
type PublishingParticipant struct {
	Membership  Membership
	Participant Participant
}

type MembershipStatus int

const (
	MembershipStatusDisconnected MembershipStatus = iota
	MembershipStatusConnecting
	MembershipStatusConnected
	MembershipStatusReconnecting
)

func (s MembershipStatus) String() string {
	switch s {
	case MembershipStatusDisconnected:
		return "disconnected"
	case MembershipStatusConnecting:
		return "connecting"
	case MembershipStatusConnected:
		return "connected"
	case MembershipStatusReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// CallIntent is advertised with the session membership so receiving clients
// can choose an appropriate incoming-call surface.
type CallIntent string

const (
	CallIntentAudio CallIntent = "audio"
	CallIntentVideo CallIntent = "video"
)

type EncryptionKind int

const (
	EncryptionNone EncryptionKind = iota
	EncryptionSharedSecret
	EncryptionPerParticipantKeys
)

// EncryptionSystem selects how media is end-to-end encrypted for the call.
// Secret is only set for EncryptionSharedSecret.
type EncryptionSystem struct {
	Kind   EncryptionKind
	Secret string
}

// CallNotification describes an outgoing call notification event sent by
// the local device when it was the first to join.
type CallNotification struct {
	EventID          string
	LegacyEventID    string
	NotificationType string
	Lifetime         time.Duration
}

const NotificationTypeRing = "ring"

// TimelineEvent is the subset of a room timeline event the call engine
// inspects for call control messages.
type TimelineEvent struct {
	Type            string
	Sender          string
	RelationType    string
	RelatesToEventID string
}

const (
	EventTypeRTCDecline = "m.rtc.decline"
	RelationReference   = "m.reference"
)
