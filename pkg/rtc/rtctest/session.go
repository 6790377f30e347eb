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

package rtctest

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

type FakeSession struct {
	lock        sync.Mutex
	memberships []rtc.Membership

	MembershipsE  *obs.Event[struct{}]
	StatusB       *obs.Behavior[rtc.MembershipStatus]
	ProbablyLeftB *obs.Behavior[bool]
	NotificationE *obs.Event[rtc.CallNotification]

	Joins       *atomic.Int32
	Leaves      *atomic.Int32
	LastJoin    JoinCall
	LastIntent  rtc.CallIntent
	JoinErr     error
	LeaveErr    error
}

type JoinCall struct {
	Transports []rtc.Transport
	Preferred  *rtc.Transport
	Opts       rtc.JoinOptions
}

func NewFakeSession() *FakeSession {
	return &FakeSession{
		MembershipsE:  obs.NewEvent[struct{}](),
		StatusB:       obs.NewDistinctBehavior(rtc.MembershipStatusConnected),
		ProbablyLeftB: obs.NewDistinctBehavior(false),
		NotificationE: obs.NewEvent[rtc.CallNotification](),
		Joins:         atomic.NewInt32(0),
		Leaves:        atomic.NewInt32(0),
	}
}

func (s *FakeSession) Memberships() []rtc.Membership {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]rtc.Membership(nil), s.memberships...)
}

func (s *FakeSession) SetMemberships(ms []rtc.Membership) {
	s.lock.Lock()
	s.memberships = ms
	s.lock.Unlock()
	s.MembershipsE.Emit(struct{}{})
}

func (s *FakeSession) MembershipsChanged() *obs.Event[struct{}] { return s.MembershipsE }

func (s *FakeSession) OldestMembership() (rtc.Membership, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.memberships) == 0 {
		return rtc.Membership{}, false
	}
	oldest := s.memberships[0]
	for _, m := range s.memberships[1:] {
		if m.CreatedAt.Before(oldest.CreatedAt) {
			oldest = m
		}
	}
	return oldest, true
}

func (s *FakeSession) LastJoinCall() JoinCall {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.LastJoin
}

func (s *FakeSession) MembershipStatus() *obs.Behavior[rtc.MembershipStatus] { return s.StatusB }
func (s *FakeSession) ProbablyLeft() *obs.Behavior[bool]                     { return s.ProbablyLeftB }

func (s *FakeSession) JoinRoomSession(ctx context.Context, transports []rtc.Transport, preferred *rtc.Transport, opts rtc.JoinOptions) error {
	if s.JoinErr != nil {
		return s.JoinErr
	}
	s.lock.Lock()
	s.LastJoin = JoinCall{Transports: transports, Preferred: preferred, Opts: opts}
	s.lock.Unlock()
	s.Joins.Inc()
	return nil
}

func (s *FakeSession) LeaveRoomSession(ctx context.Context) error {
	if s.LeaveErr != nil {
		return s.LeaveErr
	}
	s.Leaves.Inc()
	return nil
}

func (s *FakeSession) UpdateCallIntent(ctx context.Context, intent rtc.CallIntent) error {
	s.lock.Lock()
	s.LastIntent = intent
	s.lock.Unlock()
	return nil
}

func (s *FakeSession) DidSendCallNotification() *obs.Event[rtc.CallNotification] {
	return s.NotificationE
}

type FakeClient struct {
	UserIDV   string
	DeviceIDV string
	DomainV   string

	SyncB    *obs.Behavior[bool]
	MembersE *obs.Event[struct{}]

	lock    sync.Mutex
	members map[string]rtc.RoomMember

	Token      rtc.OpenIDToken
	TokenErr   error
	Transports []rtc.Transport
	DiscoverErr error
}

func NewFakeClient(userID, deviceID string) *FakeClient {
	return &FakeClient{
		UserIDV:   userID,
		DeviceIDV: deviceID,
		DomainV:   "example.org",
		SyncB:     obs.NewDistinctBehavior(true),
		MembersE:  obs.NewEvent[struct{}](),
		members:   make(map[string]rtc.RoomMember),
		Token: rtc.OpenIDToken{
			AccessToken:      "open-id-token",
			TokenType:        "Bearer",
			MatrixServerName: "example.org",
		},
	}
}

func (c *FakeClient) UserID() string                    { return c.UserIDV }
func (c *FakeClient) DeviceID() string                  { return c.DeviceIDV }
func (c *FakeClient) Domain() string                    { return c.DomainV }
func (c *FakeClient) SyncConnected() *obs.Behavior[bool] { return c.SyncB }

func (c *FakeClient) Member(userID string) (rtc.RoomMember, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	m, ok := c.members[userID]
	return m, ok
}

func (c *FakeClient) SetMember(member rtc.RoomMember) {
	c.lock.Lock()
	c.members[member.UserID] = member
	c.lock.Unlock()
	c.MembersE.Emit(struct{}{})
}

func (c *FakeClient) RemoveMember(userID string) {
	c.lock.Lock()
	delete(c.members, userID)
	c.lock.Unlock()
	c.MembersE.Emit(struct{}{})
}

func (c *FakeClient) MembersChanged() *obs.Event[struct{}] { return c.MembersE }

func (c *FakeClient) GetOpenIDToken(ctx context.Context) (rtc.OpenIDToken, error) {
	if c.TokenErr != nil {
		return rtc.OpenIDToken{}, c.TokenErr
	}
	return c.Token, nil
}

func (c *FakeClient) DiscoverTransports(ctx context.Context) ([]rtc.Transport, error) {
	if c.DiscoverErr != nil {
		return nil, c.DiscoverErr
	}
	return c.Transports, nil
}

type FakeTimeline struct {
	EventsE *obs.Event[rtc.TimelineEvent]
}

func NewFakeTimeline() *FakeTimeline {
	return &FakeTimeline{EventsE: obs.NewEvent[rtc.TimelineEvent]()}
}

func (t *FakeTimeline) Events() *obs.Event[rtc.TimelineEvent] { return t.EventsE }

type FakeHostBridge struct {
	lock    sync.Mutex
	sent    []rtc.HostAction
	ActionsE *obs.Event[rtc.HostAction]
}

func NewFakeHostBridge() *FakeHostBridge {
	return &FakeHostBridge{ActionsE: obs.NewEvent[rtc.HostAction]()}
}

func (b *FakeHostBridge) Send(ctx context.Context, action rtc.HostAction) error {
	b.lock.Lock()
	b.sent = append(b.sent, action)
	b.lock.Unlock()
	return nil
}

func (b *FakeHostBridge) Sent() []rtc.HostAction {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]rtc.HostAction(nil), b.sent...)
}

func (b *FakeHostBridge) Actions() *obs.Event[rtc.HostAction] { return b.ActionsE }
