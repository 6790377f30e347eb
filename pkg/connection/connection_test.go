package connection

import (
	"context"
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rtcview/callstate/pkg/media"
	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
	"github.com/rtcview/callstate/pkg/rtc/rtctest"
	"github.com/rtcview/callstate/pkg/sfu"
)

var testTransport = rtc.Transport{ServiceURL: "https://sfu.example.org", Alias: "!room:example.org"}

type fakeTokens struct {
	err   error
	gate  chan struct{}
	calls int
}

func (f *fakeTokens) GetOpenIDToken(ctx context.Context) (rtc.OpenIDToken, error) {
	f.calls++
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return rtc.OpenIDToken{}, f.err
	}
	return rtc.OpenIDToken{AccessToken: "token", TokenType: "Bearer", MatrixServerName: "example.org"}, nil
}

type fakeConfigs struct {
	err error
}

func (f *fakeConfigs) GetConfig(ctx context.Context, transport rtc.Transport, token rtc.OpenIDToken, deviceID string) (sfu.Config, error) {
	if f.err != nil {
		return sfu.Config{}, f.err
	}
	return sfu.Config{URL: "wss://sfu.example.org", JWT: "jwt"}, nil
}

func newTestParams(scope *obs.Scope, room *rtctest.FakeMediaRoom) Params {
	return Params{
		Transport:        testTransport,
		Scope:            scope,
		Tokens:           &fakeTokens{},
		Configs:          &fakeConfigs{},
		DeviceID:         "DEVICE",
		Room:             room,
		RemoteTransports: obs.NewBehavior[[]rtc.MemberTransport](nil),
		Logger:           logger.GetLogger(),
	}
}

func TestConnectionHappyPath(t *testing.T) {
	scope := obs.NewScope()
	room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
	c := NewConnection(newTestParams(scope, room))

	var states []State
	c.Status().Watch(scope, func(s Status) { states = append(states, s.State) })

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, []State{
		StateInitialized,
		StateFetchingConfig,
		StateConnectingToLkRoom,
		StateConnectedToLkRoom,
	}, states)
	require.EqualValues(t, 1, room.Connects.Load())

	// ending the owning scope stops exactly once
	scope.End()
	require.EqualValues(t, 1, room.Disconnects.Load())
	require.Equal(t, StateStopped, c.Status().Get().State)
	require.NoError(t, c.Stop(context.Background()))
	require.EqualValues(t, 1, room.Disconnects.Load())
}

func TestConnectionStopDuringStart(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()
	room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")

	params := newTestParams(scope, room)
	tokens := &fakeTokens{gate: make(chan struct{})}
	params.Tokens = tokens
	c := NewConnection(params)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	// stop while the token fetch is pending
	require.NoError(t, c.Stop(context.Background()))
	close(tokens.gate)
	require.NoError(t, <-done)

	require.Equal(t, StateStopped, c.Status().Get().State)
	require.EqualValues(t, 0, room.Connects.Load(), "stopped start must not connect")
}

func TestConnectionFailureClassification(t *testing.T) {
	for _, tc := range []struct {
		status int
		code   rtc.ErrorCode
	}{
		{status: 503, code: rtc.ErrorCodeInsufficientCapacity},
		{status: 200, code: rtc.ErrorCodeInsufficientCapacity},
		{status: 429, code: rtc.ErrorCodeInsufficientCapacity},
		{status: 404, code: rtc.ErrorCodeRoomCreationRestricted},
	} {
		scope := obs.NewScope()
		room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
		params := newTestParams(scope, room)
		params.Configs = &fakeConfigs{err: &rtc.ConnectionStatusError{Status: tc.status}}
		c := NewConnection(params)

		err := c.Start(context.Background())
		ce, ok := rtc.AsCallError(err)
		require.True(t, ok, "status %d", tc.status)
		require.Equal(t, tc.code, ce.Code, "status %d", tc.status)
		require.Equal(t, StateFailedToStart, c.Status().Get().State)
		scope.End()
	}

	t.Run("other errors pass through unchanged", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
		params := newTestParams(scope, room)
		cause := errors.New("connection refused")
		params.Configs = &fakeConfigs{err: cause}
		c := NewConnection(params)

		err := c.Start(context.Background())
		require.Equal(t, cause, err)
	})
}

func TestPublishingParticipants(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()
	room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
	params := newTestParams(scope, room)
	c := NewConnection(params)

	bob := rtc.Membership{UserID: "@bob:example.org", DeviceID: "BOB", CreatedAt: time.Now()}
	carol := rtc.Membership{UserID: "@carol:other.org", DeviceID: "CAROL", CreatedAt: time.Now()}
	params.RemoteTransports.Set([]rtc.MemberTransport{
		{Membership: bob, Transport: testTransport},
		{Membership: carol, Transport: rtc.Transport{ServiceURL: "https://other.example.org"}},
	})

	// bob targets this transport but has not connected yet: listed absent
	pp := c.PublishingParticipants().Get()
	require.Len(t, pp, 1)
	require.Equal(t, bob, pp[0].Membership)
	require.Nil(t, pp[0].Participant)

	// bob's media participant arrives
	room.AddRemote(rtctest.NewFakeParticipant("@bob:example.org:BOB", false))
	pp = c.PublishingParticipants().Get()
	require.Len(t, pp, 1)
	require.NotNil(t, pp[0].Participant)

	// disconnecting drops the live pairing, not the listing
	room.RemoveRemote("@bob:example.org:BOB")
	pp = c.PublishingParticipants().Get()
	require.Len(t, pp, 1)
	require.Nil(t, pp[0].Participant)
}

func TestPublishConnection(t *testing.T) {
	newPublish := func(scope *obs.Scope, room *rtctest.FakeMediaRoom, audio, video bool) (*PublishConnection, *media.MuteStates) {
		devices := rtctest.NewFakeMediaDevices()
		mutes := media.NewMuteStates(media.MuteStatesParams{
			Scope:               scope,
			Devices:             devices,
			AudioEnabledDefault: audio,
			VideoEnabledDefault: video,
			Logger:              logger.GetLogger(),
		})
		return NewPublishConnection(PublishParams{
			Params:     newTestParams(scope, room),
			MuteStates: mutes,
			Devices:    devices,
			Processor:  obs.NewDistinctBehavior(""),
		}), mutes
	}

	t.Run("publishes tracks for enabled media", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
		c, _ := newPublish(scope, room, true, true)

		require.NoError(t, c.Start(context.Background()))
		require.Len(t, room.Local.Published(), 2)
	})

	t.Run("skips capture when fully muted", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
		c, _ := newPublish(scope, room, false, false)

		require.NoError(t, c.Start(context.Background()))
		require.Empty(t, room.Local.Published())
		require.Equal(t, StateConnectedToLkRoom, c.Status().Get().State)
	})

	t.Run("mute intent flows through the transport and back", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
		// the device refuses to unmute
		room.Local.MicResult = func(bool) bool { return false }
		c, mutes := newPublish(scope, room, false, false)

		require.NoError(t, c.Start(context.Background()))
		mutes.Audio.SetEnabled(true)
		require.Eventually(t, func() bool {
			return !mutes.Audio.Enabled().Get()
		}, time.Second, time.Millisecond, "actual device state wins over intent")
	})

	t.Run("microphone restarts on hardware change", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		room := rtctest.NewFakeMediaRoom("@alice:example.org:DEVICE")
		devices := rtctest.NewFakeMediaDevices()
		mutes := media.NewMuteStates(media.MuteStatesParams{
			Scope:               scope,
			Devices:             devices,
			AudioEnabledDefault: true,
			Logger:              logger.GetLogger(),
		})
		c := NewPublishConnection(PublishParams{
			Params:     newTestParams(scope, room),
			MuteStates: mutes,
			Devices:    devices,
		})
		require.NoError(t, c.Start(context.Background()))

		track, ok := room.Local.MicrophoneTrack()
		require.True(t, ok)
		fake := track.(*rtctest.FakeLocalTrack)

		devices.AudioIn.HardwareE.Emit(struct{}{})
		require.Eventually(t, func() bool {
			return fake.Restarts.Load() == 1
		}, time.Second, time.Millisecond)

		// an ended track is left alone
		fake.LiveV.Store(false)
		devices.AudioIn.HardwareE.Emit(struct{}{})
		time.Sleep(20 * time.Millisecond)
		require.EqualValues(t, 1, fake.Restarts.Load())
	})
}
