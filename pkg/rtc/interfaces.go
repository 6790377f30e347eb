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

// Session is the call-specific membership session provided by the protocol
// layer. Memberships returns a current snapshot; MembershipsChanged fires
// after every change to it.
type Session interface {
	Memberships() []Membership
	MembershipsChanged() *obs.Event[struct{}]
	OldestMembership() (Membership, bool)
	MembershipStatus() *obs.Behavior[MembershipStatus]
	// ProbablyLeft is an early warning that the delayed-leave mechanism is
	// about to remove the local membership.
	ProbablyLeft() *obs.Behavior[bool]

	JoinRoomSession(ctx context.Context, transports []Transport, preferred *Transport, opts JoinOptions) error
	LeaveRoomSession(ctx context.Context) error
	UpdateCallIntent(ctx context.Context, intent CallIntent) error

	DidSendCallNotification() *obs.Event[CallNotification]
}

type JoinOptions struct {
	MultiSFU        bool
	StickyEvents    bool
	ManageMediaKeys bool
	Intent          CallIntent
}

// Timeline exposes room timeline traffic relevant to call control.
type Timeline interface {
	Events() *obs.Event[TimelineEvent]
}

// RoomMember carries the protocol-level profile of a room member.
type RoomMember struct {
	UserID      string
	DisplayName string
}

// Client is the slice of the protocol client the call engine needs.
type Client interface {
	UserID() string
	DeviceID() string
	Domain() string

	// SyncConnected is true while the protocol sync loop is running.
	SyncConnected() *obs.Behavior[bool]

	Member(userID string) (RoomMember, bool)
	MembersChanged() *obs.Event[struct{}]

	GetOpenIDToken(ctx context.Context) (OpenIDToken, error)
	// DiscoverTransports resolves the homeserver's advertised RTC transports.
	DiscoverTransports(ctx context.Context) ([]Transport, error)
}

// OpenIDToken is a short-lived identity assertion exchanged for SFU
// credentials.
type OpenIDToken struct {
	AccessToken      string
	TokenType        string
	MatrixServerName string
}

// HostAction is a message from or to the embedding host application.
type HostAction struct {
	Name         string
	AudioEnabled *bool
	VideoEnabled *bool
}

const (
	HostActionHangup     = "im.vector.hangup"
	HostActionDeviceMute = "io.element.device_mute"
	HostActionClose      = "io.element.close"
)

// HostBridge connects the engine to an embedding host. A nil HostBridge
// means the application is not embedded; senders must treat it as a no-op.
type HostBridge interface {
	Send(ctx context.Context, action HostAction) error
	Actions() *obs.Event[HostAction]
}
