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

package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/rtcview/callstate/pkg/config"
	"github.com/rtcview/callstate/pkg/layout"
	"github.com/rtcview/callstate/pkg/media"
	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
	"github.com/rtcview/callstate/pkg/rtc/rtctest"
	"github.com/rtcview/callstate/pkg/sfu"
)

const testServiceURL = "https://sfu.example.org"

type fakeConfigs struct {
	err   error
	calls *atomic.Int32
}

func (f fakeConfigs) GetConfig(ctx context.Context, transport rtc.Transport, token rtc.OpenIDToken, deviceID string) (sfu.Config, error) {
	if f.calls != nil {
		f.calls.Inc()
	}
	if f.err != nil {
		return sfu.Config{}, f.err
	}
	return sfu.Config{URL: "wss://" + transport.ServiceURL, JWT: "jwt"}, nil
}

type fixture struct {
	t *testing.T

	scope    *obs.Scope
	clk      *clock.Mock
	client   *rtctest.FakeClient
	session  *rtctest.FakeSession
	timeline *rtctest.FakeTimeline
	devices  *rtctest.FakeMediaDevices
	mutes    *media.MuteStates
	bridge   *rtctest.FakeHostBridge

	windowSize  *obs.Behavior[WindowSize]
	handsRaised *obs.Behavior[map[string]time.Time]

	lock  sync.Mutex
	rooms []*rtctest.FakeMediaRoom

	vm *ViewModel
}

func newFixture(t *testing.T, opts Options) *fixture {
	return newFixtureWithConfigs(t, opts, fakeConfigs{})
}

func newFixtureWithConfigs(t *testing.T, opts Options, configs fakeConfigs) *fixture {
	f := &fixture{
		t:        t,
		scope:    obs.NewScope(),
		clk:      clock.NewMock(),
		client:   rtctest.NewFakeClient("@alice:example.org", "ALICE1"),
		session:  rtctest.NewFakeSession(),
		timeline: rtctest.NewFakeTimeline(),
		devices:  rtctest.NewFakeMediaDevices(),
		bridge:   rtctest.NewFakeHostBridge(),
	}
	t.Cleanup(f.scope.End)

	f.client.Transports = []rtc.Transport{{ServiceURL: testServiceURL}}
	log := logger.GetLogger()
	f.mutes = media.NewMuteStates(media.MuteStatesParams{
		Scope:               f.scope,
		Devices:             f.devices,
		AudioEnabledDefault: true,
		VideoEnabledDefault: true,
		Logger:              log,
	})
	f.windowSize = obs.NewBehavior(WindowSize{Width: 1280, Height: 720})
	f.handsRaised = obs.NewBehavior(map[string]time.Time{})

	f.vm = NewViewModel(Params{
		Scope:    f.scope,
		Alias:    "main",
		Client:   f.client,
		Session:  f.session,
		Timeline: f.timeline,
		Devices:  f.devices,

		MuteStates: f.mutes,
		Configs:    configs,
		RoomFactory: func(rtc.RoomOptions) rtc.MediaRoom {
			r := rtctest.NewFakeMediaRoom(rtc.ParticipantID{UserID: "@alice:example.org", DeviceID: "ALICE1"}.String())
			f.lock.Lock()
			f.rooms = append(f.rooms, r)
			f.lock.Unlock()
			return r
		},
		Bridge: f.bridge,
		Config: config.DefaultConfig(),

		Settings: DefaultSettings(),
		Options:  opts,

		HandsRaised: f.handsRaised,
		WindowSize:  f.windowSize,
		Clock:      f.clk,
		Logger:     log,
	})
	return f
}

func (f *fixture) room() *rtctest.FakeMediaRoom {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.rooms) == 0 {
		return nil
	}
	return f.rooms[len(f.rooms)-1]
}

func (f *fixture) joinAndConnect() {
	f.vm.Join()
	require.Eventually(f.t, func() bool {
		r := f.room()
		return r != nil && r.StateB.Get() == rtc.ConnectionStateConnected
	}, time.Second, time.Millisecond)
}

func (f *fixture) membership(userID, deviceID string) rtc.Membership {
	return rtc.Membership{
		UserID:    userID,
		DeviceID:  deviceID,
		CreatedAt: f.clk.Now(),
		Transport: &rtc.Transport{ServiceURL: testServiceURL, Alias: "main"},
	}
}

func (f *fixture) addMembership(userID, deviceID string) {
	f.session.SetMemberships(append(f.session.Memberships(), f.membership(userID, deviceID)))
}

// addRemote joins a member and connects their media participant.
func (f *fixture) addRemote(userID, deviceID string) *rtctest.FakeParticipant {
	f.addMembership(userID, deviceID)
	p := rtctest.NewFakeParticipant(rtc.ParticipantID{UserID: userID, DeviceID: deviceID}.String(), false)
	f.room().AddRemote(p)
	return p
}

func (f *fixture) requireUserMediaCount(n int) {
	require.Eventually(f.t, func() bool {
		return len(f.vm.userMedia.Get()) == n
	}, time.Second, time.Millisecond)
}

func TestViewModelLifecycle(t *testing.T) {
	t.Run("join advertises and publishes", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()

		require.Eventually(t, func() bool { return f.session.Joins.Load() == 1 }, time.Second, time.Millisecond)
		join := f.session.LastJoinCall()
		// single-SFU calls pin the transport list and carry no focus hint
		require.Nil(t, join.Preferred)
		require.Len(t, join.Transports, 1)
		require.Equal(t, testServiceURL, join.Transports[0].ServiceURL)
		require.Equal(t, "main", join.Transports[0].Alias)
		require.Equal(t, rtc.CallIntentVideo, join.Opts.Intent)

		// local tile exists even while alone
		f.requireUserMediaCount(1)
		require.True(t, f.vm.userMedia.Get()[0].Media().Local())
	})

	t.Run("resolving the transport pre-creates the room", func(t *testing.T) {
		calls := atomic.NewInt32(0)
		f := newFixtureWithConfigs(t, Options{}, fakeConfigs{calls: calls})
		f.joinAndConnect()

		// one preflight fetch plus the publish connection's own fetch
		require.Equal(t, int32(2), calls.Load())
	})

	t.Run("multi-SFU join advertises only the focus hint", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.vm.params.Settings.MultiSFU.Set(true)
		f.joinAndConnect()

		require.Eventually(t, func() bool { return f.session.Joins.Load() == 1 }, time.Second, time.Millisecond)
		join := f.session.LastJoinCall()
		require.Nil(t, join.Transports)
		require.NotNil(t, join.Preferred)
		require.Equal(t, testServiceURL, join.Preferred.ServiceURL)
		require.True(t, join.Opts.MultiSFU)
	})

	t.Run("hangup tears the session down", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		require.Eventually(t, func() bool { return f.session.Joins.Load() == 1 }, time.Second, time.Millisecond)

		f.vm.Hangup()
		require.False(t, f.vm.Joined().Get())
		require.Eventually(t, func() bool { return f.session.Leaves.Load() == 1 }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return f.room().Disconnects.Load() >= 1 }, time.Second, time.Millisecond)
	})

	t.Run("config failure surfaces exactly one error", func(t *testing.T) {
		cause := rtc.NewInsufficientCapacityError(nil)
		f := newFixtureWithConfigs(t, Options{}, fakeConfigs{err: cause})
		f.vm.Join()

		require.Eventually(t, func() bool { return f.vm.ConfigError().Get() != nil }, time.Second, time.Millisecond)
		require.Equal(t, rtc.ErrorCodeInsufficientCapacity, f.vm.ConfigError().Get().Code)

		// rejoining runs a fresh attempt rather than keeping the stale error
		f.vm.Hangup()
		f.vm.Join()
		require.Eventually(t, func() bool { return f.vm.ConfigError().Get() != nil }, time.Second, time.Millisecond)
	})

	t.Run("host hangup action leaves", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()

		var left []LeaveReason
		var lock sync.Mutex
		f.vm.Left().Watch(f.scope, func(r LeaveReason) {
			lock.Lock()
			left = append(left, r)
			lock.Unlock()
		})
		f.bridge.ActionsE.Emit(rtc.HostAction{Name: rtc.HostActionHangup})
		require.Eventually(t, func() bool {
			lock.Lock()
			defer lock.Unlock()
			return len(left) == 1 && left[0] == LeaveReasonUser
		}, time.Second, time.Millisecond)
	})
}

func TestParticipantTiles(t *testing.T) {
	t.Run("membership without media gets a placeholder tile", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		f.addMembership("@bob:example.org", "BOB1")

		f.requireUserMediaCount(2)
	})

	t.Run("media without membership never appears", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		f.room().AddRemote(rtctest.NewFakeParticipant("@mallory:example.org:EVIL1", false))

		f.requireUserMediaCount(1)
		require.True(t, f.vm.userMedia.Get()[0].Media().Local())
	})

	t.Run("tiles survive speaker changes", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		bob := f.addRemote("@bob:example.org", "BOB1")
		f.addRemote("@carol:example.org", "CAROL1")
		f.requireUserMediaCount(3)

		before := f.vm.userMedia.Get()
		bob.SpeakingB.Set(true)
		bob.SpeakingB.Set(false)
		after := f.vm.userMedia.Get()
		require.Equal(t, before, after)
	})
}

func TestDisplayNames(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()

	f.client.SetMember(rtc.RoomMember{UserID: "@bob:example.org", DisplayName: "Bob"})
	f.client.SetMember(rtc.RoomMember{UserID: "@bob2:example.org", DisplayName: "Bob"})
	f.addMembership("@bob:example.org", "BOB1")
	f.addMembership("@bob2:example.org", "BOB2")

	require.Eventually(t, func() bool {
		names := f.vm.MemberDisplayNames().Get()
		return names["@bob:example.org"] == "Bob (@bob:example.org)" &&
			names["@bob2:example.org"] == "Bob (@bob2:example.org)"
	}, time.Second, time.Millisecond)

	// the collision disappears with the second Bob
	f.session.SetMemberships([]rtc.Membership{f.membership("@bob:example.org", "BOB1")})
	require.Eventually(t, func() bool {
		return f.vm.MemberDisplayNames().Get()["@bob:example.org"] == "Bob"
	}, time.Second, time.Millisecond)
}

func TestGridModeMachine(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()
	bob := f.addRemote("@bob:example.org", "BOB1")
	f.requireUserMediaCount(2)

	require.Equal(t, layout.GridModeGrid, f.vm.GridMode().Get())

	bob.SharingB.Set(true)
	require.Eventually(t, func() bool {
		return f.vm.GridMode().Get() == layout.GridModeSpotlight
	}, time.Second, time.Millisecond)

	f.vm.SetGridMode(layout.GridModeGrid)
	require.Equal(t, layout.GridModeGrid, f.vm.GridMode().Get())

	// a fresh presentation overrides the explicit grid choice
	bob.SharingB.Set(false)
	require.Eventually(t, func() bool {
		return len(f.vm.screenShares.Get()) == 0
	}, time.Second, time.Millisecond)
	require.Equal(t, layout.GridModeGrid, f.vm.GridMode().Get())
	bob.SharingB.Set(true)
	require.Eventually(t, func() bool {
		return f.vm.GridMode().Get() == layout.GridModeSpotlight
	}, time.Second, time.Millisecond)
}

func TestGridModeIgnoresLocalShare(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()
	bob := f.addRemote("@bob:example.org", "BOB1")
	f.requireUserMediaCount(2)

	require.Equal(t, layout.GridModeGrid, f.vm.GridMode().Get())

	// the local user's own presentation never forces spotlight
	f.room().Local.SharingB.Set(true)
	require.Eventually(t, func() bool {
		return len(f.vm.screenShares.Get()) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, layout.GridModeGrid, f.vm.GridMode().Get())

	// a remote presentation still does
	bob.SharingB.Set(true)
	require.Eventually(t, func() bool {
		return f.vm.GridMode().Get() == layout.GridModeSpotlight
	}, time.Second, time.Millisecond)
}

func TestWindowModes(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()

	require.Equal(t, layout.WindowModeNormal, f.vm.WindowMode().Get())
	require.True(t, f.vm.ShowFooter().Get())

	f.windowSize.Set(WindowSize{Width: 800, Height: 500})
	require.Equal(t, layout.WindowModeFlat, f.vm.WindowMode().Get())
	// flat forces spotlight and hides the footer
	require.Equal(t, layout.GridModeSpotlight, f.vm.GridMode().Get())
	require.False(t, f.vm.ShowFooter().Get())

	f.vm.TapScreen()
	require.True(t, f.vm.ShowFooter().Get())
	f.clk.Add(footerHideDelay + time.Millisecond)
	require.Eventually(t, func() bool { return !f.vm.ShowFooter().Get() }, time.Second, time.Millisecond)

	// hovering the controls holds the footer open
	f.vm.TapScreen()
	f.vm.HoverScreen()
	f.clk.Add(footerHideDelay + time.Millisecond)
	require.True(t, f.vm.ShowFooter().Get())
	f.vm.UnhoverScreen()
	f.clk.Add(footerHideDelay + time.Millisecond)
	require.Eventually(t, func() bool { return !f.vm.ShowFooter().Get() }, time.Second, time.Millisecond)

	f.windowSize.Set(WindowSize{Width: 1280, Height: 720})
	require.Equal(t, layout.WindowModeNormal, f.vm.WindowMode().Get())
	require.True(t, f.vm.ShowFooter().Get())
}

func TestLayoutTileContinuity(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()
	f.addRemote("@bob:example.org", "BOB1")
	f.addRemote("@carol:example.org", "CAROL1")
	f.requireUserMediaCount(3)

	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindGrid
	}, time.Second, time.Millisecond)
	before := f.vm.Layout().Get()
	require.Len(t, before.Grid, 3)

	f.vm.SetGridMode(layout.GridModeSpotlight)
	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindSpotlightLandscape
	}, time.Second, time.Millisecond)
	after := f.vm.Layout().Get()

	// grid tiles keep their identity across the mode switch
	for _, tile := range after.Grid {
		require.Contains(t, before.Grid, tile)
	}
}

func TestLayoutStableAcrossSpeakerChanges(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()
	bob := f.addRemote("@bob:example.org", "BOB1")
	carol := f.addRemote("@carol:example.org", "CAROL1")
	f.requireUserMediaCount(3)
	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindGrid
	}, time.Second, time.Millisecond)

	emissions := 0
	f.vm.Layout().WatchChanges(f.scope, func(layout.Layout) { emissions++ })

	// bob already sorts ahead of carol, so his speaking never reorders the
	// grid and the layout must not re-emit
	bob.SpeakingB.Set(true)
	bob.SpeakingB.Set(false)
	bob.SpeakingB.Set(true)
	bob.SpeakingB.Set(false)
	require.Equal(t, 0, emissions)

	// carol overtaking bob is the only reorder in the sequence
	carol.SpeakingB.Set(true)
	require.Equal(t, 1, emissions)
	require.Len(t, f.vm.Layout().Get().Grid, 3)
}

func TestPresenceOrnaments(t *testing.T) {
	bobID := rtc.ParticipantID{UserID: "@bob:example.org", DeviceID: "BOB1"}.String()

	t.Run("hand raises freeze while reconnecting", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		f.addRemote("@bob:example.org", "BOB1")
		f.requireUserMediaCount(2)

		var bobTile *media.UserMedia
		for _, u := range f.vm.userMedia.Get() {
			if !u.Media().Local() {
				bobTile = u
			}
		}
		require.NotNil(t, bobTile)

		f.client.SyncB.Set(false)
		require.Eventually(t, func() bool { return f.vm.Reconnecting().Get() }, time.Second, time.Millisecond)

		raisedAt := time.Now()
		f.handsRaised.Set(map[string]time.Time{bobID: raisedAt})
		require.Nil(t, bobTile.VM().HandRaised().Get(), "held while reconnecting")

		f.client.SyncB.Set(true)
		require.Eventually(t, func() bool {
			hr := bobTile.VM().HandRaised().Get()
			return hr != nil && hr.Equal(raisedAt)
		}, time.Second, time.Millisecond)
	})

	t.Run("count-increase edges pulse", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		bob := f.addRemote("@bob:example.org", "BOB1")
		f.requireUserMediaCount(2)

		handPulses := atomic.NewInt32(0)
		sharePulses := atomic.NewInt32(0)
		f.vm.NewHandRaised().Watch(f.scope, func(struct{}) { handPulses.Inc() })
		f.vm.NewScreenShare().Watch(f.scope, func(struct{}) { sharePulses.Inc() })

		f.handsRaised.Set(map[string]time.Time{bobID: time.Now()})
		require.Eventually(t, func() bool { return handPulses.Load() == 1 }, time.Second, time.Millisecond)
		f.handsRaised.Set(map[string]time.Time{})
		require.Equal(t, int32(1), handPulses.Load(), "lowering a hand pulses nothing")

		bob.SharingB.Set(true)
		require.Eventually(t, func() bool { return sharePulses.Load() == 1 }, time.Second, time.Millisecond)
		bob.SharingB.Set(false)
		require.Eventually(t, func() bool { return len(f.vm.screenShares.Get()) == 0 }, time.Second, time.Millisecond)
		require.Equal(t, int32(1), sharePulses.Load(), "a share ending pulses nothing")
	})
}

func TestSpotlightExpandToggle(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()
	f.addRemote("@bob:example.org", "BOB1")
	f.addRemote("@carol:example.org", "CAROL1")
	f.requireUserMediaCount(3)

	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindGrid
	}, time.Second, time.Millisecond)
	require.False(t, f.vm.CanExpandSpotlight().Get())
	f.vm.ToggleSpotlightExpanded()
	require.False(t, f.vm.SpotlightExpandedB().Get(), "no spotlight to expand in grid layout")

	f.vm.SetGridMode(layout.GridModeSpotlight)
	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindSpotlightLandscape
	}, time.Second, time.Millisecond)
	require.True(t, f.vm.CanExpandSpotlight().Get())

	f.vm.ToggleSpotlightExpanded()
	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindSpotlightExpanded
	}, time.Second, time.Millisecond)

	f.vm.ToggleSpotlightExpanded()
	require.Eventually(t, func() bool {
		return f.vm.Layout().Get().Kind == layout.KindSpotlightLandscape
	}, time.Second, time.Millisecond)
}

func TestRoomsListing(t *testing.T) {
	f := newFixture(t, Options{})
	require.Empty(t, f.vm.Rooms().Get())

	f.joinAndConnect()
	require.Eventually(t, func() bool { return len(f.vm.Rooms().Get()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, rtc.MediaRoom(f.room()), f.vm.Rooms().Get()[0])
}

func TestLeaveSoundWaitsForPickup(t *testing.T) {
	collect := func(f *fixture) func() []Sound {
		var mu sync.Mutex
		var cues []Sound
		f.vm.Sounds().Watch(f.scope, func(s Sound) {
			mu.Lock()
			cues = append(cues, s)
			mu.Unlock()
		})
		return func() []Sound {
			mu.Lock()
			defer mu.Unlock()
			return append([]Sound(nil), cues...)
		}
	}

	t.Run("suppressed while undecided", func(t *testing.T) {
		f := newFixture(t, Options{WaitForCallPickup: true})
		cues := collect(f)
		f.joinAndConnect()
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateUnknown
		}, time.Second, time.Millisecond)

		f.clk.Add(time.Second)
		f.addMembership("@bob:example.org", "BOB1")
		f.requireUserMediaCount(2)
		f.clk.Add(time.Second)
		f.session.SetMemberships(nil)
		f.requireUserMediaCount(1)
		require.NotContains(t, cues(), SoundLeave)
	})

	t.Run("plays after pickup success", func(t *testing.T) {
		f := newFixture(t, Options{WaitForCallPickup: true})
		cues := collect(f)
		f.joinAndConnect()

		f.clk.Add(time.Second)
		f.addRemote("@bob:example.org", "BOB1")
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateSuccess
		}, time.Second, time.Millisecond)

		f.clk.Add(time.Second)
		f.session.SetMemberships(nil)
		require.Eventually(t, func() bool {
			for _, s := range cues() {
				if s == SoundLeave {
					return true
				}
			}
			return false
		}, time.Second, time.Millisecond)
	})
}

func TestCallPickup(t *testing.T) {
	notification := func(lifetime time.Duration) rtc.CallNotification {
		return rtc.CallNotification{
			EventID:          "$ring",
			NotificationType: rtc.NotificationTypeRing,
			Lifetime:         lifetime,
		}
	}

	t.Run("disabled stays none", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.joinAndConnect()
		require.Equal(t, PickupStateNone, f.vm.CallPickupState().Get())
	})

	t.Run("ring then timeout", func(t *testing.T) {
		f := newFixture(t, Options{WaitForCallPickup: true})
		f.joinAndConnect()
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateUnknown
		}, time.Second, time.Millisecond)

		f.session.NotificationE.Emit(notification(30 * time.Millisecond))
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateRinging
		}, time.Second, time.Millisecond)

		f.clk.Add(31 * time.Millisecond)
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateTimeout
		}, time.Second, time.Millisecond)
	})

	t.Run("pickup before the timeout wins", func(t *testing.T) {
		f := newFixture(t, Options{WaitForCallPickup: true})
		f.joinAndConnect()
		f.session.NotificationE.Emit(notification(30 * time.Millisecond))
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateRinging
		}, time.Second, time.Millisecond)

		f.clk.Add(20 * time.Millisecond)
		f.addRemote("@bob:example.org", "BOB1")
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateSuccess
		}, time.Second, time.Millisecond)

		// the pending timer no longer matters
		f.clk.Add(time.Minute)
		require.Equal(t, PickupStateSuccess, f.vm.CallPickupState().Get())
	})

	t.Run("remote decline while ringing", func(t *testing.T) {
		f := newFixture(t, Options{WaitForCallPickup: true})
		f.joinAndConnect()
		f.session.NotificationE.Emit(notification(time.Minute))
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateRinging
		}, time.Second, time.Millisecond)

		// own declines are ignored
		f.timeline.EventsE.Emit(rtc.TimelineEvent{
			Type:             rtc.EventTypeRTCDecline,
			Sender:           "@alice:example.org",
			RelationType:     rtc.RelationReference,
			RelatesToEventID: "$ring",
		})
		require.Equal(t, PickupStateRinging, f.vm.CallPickupState().Get())

		f.timeline.EventsE.Emit(rtc.TimelineEvent{
			Type:             rtc.EventTypeRTCDecline,
			Sender:           "@bob:example.org",
			RelationType:     rtc.RelationReference,
			RelatesToEventID: "$ring",
		})
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateDecline
		}, time.Second, time.Millisecond)
	})
}

func TestAutoLeave(t *testing.T) {
	t.Run("all others leaving ends the call", func(t *testing.T) {
		f := newFixture(t, Options{AutoLeave: true})
		f.joinAndConnect()
		f.addRemote("@bob:example.org", "BOB1")
		f.requireUserMediaCount(2)

		var reasons []LeaveReason
		var lock sync.Mutex
		f.vm.Left().Watch(f.scope, func(r LeaveReason) {
			lock.Lock()
			reasons = append(reasons, r)
			lock.Unlock()
		})
		f.session.SetMemberships(nil)
		require.Eventually(t, func() bool {
			lock.Lock()
			defer lock.Unlock()
			return len(reasons) == 1 && reasons[0] == LeaveReasonAllOthersLeft
		}, time.Second, time.Millisecond)
	})

	t.Run("ring timeout ends the call", func(t *testing.T) {
		f := newFixture(t, Options{AutoLeave: true, WaitForCallPickup: true})
		f.joinAndConnect()
		f.session.NotificationE.Emit(rtc.CallNotification{
			EventID:          "$ring",
			NotificationType: rtc.NotificationTypeRing,
			Lifetime:         10 * time.Millisecond,
		})
		require.Eventually(t, func() bool {
			return f.vm.CallPickupState().Get() == PickupStateRinging
		}, time.Second, time.Millisecond)

		f.clk.Add(11 * time.Millisecond)
		require.Eventually(t, func() bool { return !f.vm.Joined().Get() }, time.Second, time.Millisecond)
	})
}

func TestConnectivity(t *testing.T) {
	f := newFixture(t, Options{})
	f.joinAndConnect()
	require.Eventually(t, func() bool { return f.vm.Connected().Get() }, time.Second, time.Millisecond)
	require.False(t, f.vm.Reconnecting().Get())

	f.client.SyncB.Set(false)
	require.Eventually(t, func() bool { return f.vm.Reconnecting().Get() }, time.Second, time.Millisecond)

	f.client.SyncB.Set(true)
	require.Eventually(t, func() bool {
		return f.vm.Connected().Get() && !f.vm.Reconnecting().Get()
	}, time.Second, time.Millisecond)
}

func TestDuplicateTiles(t *testing.T) {
	f := newFixture(t, Options{})
	settings := f.vm.params.Settings
	f.joinAndConnect()
	f.addRemote("@bob:example.org", "BOB1")
	f.requireUserMediaCount(2)

	settings.DuplicateTiles.Set(2)
	f.requireUserMediaCount(6)
	settings.DuplicateTiles.Set(0)
	f.requireUserMediaCount(2)
}
