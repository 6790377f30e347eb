package media

import (
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
	"github.com/rtcview/callstate/pkg/rtc/rtctest"
)

func newTestUserMedia(scope *obs.Scope, id string, local bool) (*UserMedia, *rtctest.FakeParticipant, *obs.Behavior[*time.Time]) {
	p := rtctest.NewFakeParticipant(id, local)
	handRaised := obs.NewBehavior[*time.Time](nil)
	params := UserMediaParams{
		Scope:       scope,
		ID:          id,
		Member:      rtc.RoomMember{UserID: "@user:example.org", DisplayName: "User"},
		DisplayName: obs.NewDistinctBehavior("User"),
		Participant: obs.NewBehavior[rtc.Participant](p),
		HandRaised:  handRaised,
		Reaction:    obs.NewBehavior[*Reaction](nil),
		Logger:      logger.GetLogger(),
	}
	var alwaysShow *obs.Behavior[bool]
	if local {
		alwaysShow = obs.NewDistinctBehavior(true)
	}
	return NewUserMedia(params, local, alwaysShow), p, handRaised
}

func TestUserMediaBin(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	u, p, handRaised := newTestUserMedia(scope, "@bob:example.org:BOB:0", false)
	require.Equal(t, BinNoVideo, u.Bin().Get())

	p.VideoB.Set(true)
	require.Equal(t, BinVideo, u.Bin().Get())

	now := time.Now()
	handRaised.Set(&now)
	require.Equal(t, BinHandRaised, u.Bin().Get())

	p.SpeakingB.Set(true)
	require.Equal(t, BinSpeakers, u.Bin().Get())

	p.SharingB.Set(true)
	require.Equal(t, BinPresenters, u.Bin().Get())
}

func TestUserMediaBinLocal(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	u, _, _ := newTestUserMedia(scope, "@alice:example.org:ALICE:0", true)
	require.Equal(t, BinSelfAlwaysShown, u.Bin().Get())

	vm := u.VM().(*LocalUserMediaViewModel)
	vm.AlwaysShow().Set(false)
	require.Equal(t, BinSelfNotAlwaysShown, u.Bin().Get())
}

func TestUserMediaParticipantReplaceable(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	u, p, _ := newTestUserMedia(scope, "@bob:example.org:BOB:0", false)
	p.SpeakingB.Set(true)
	require.True(t, u.VM().(*RemoteUserMediaViewModel).Speaking().Get())

	// the member disconnects; the tile stays but goes quiet
	u.UpdateParticipant(nil)
	require.False(t, u.VM().(*RemoteUserMediaViewModel).Speaking().Get())
	require.Nil(t, u.Media().Video().Get())

	// reconnecting wires the fresh participant in
	p2 := rtctest.NewFakeParticipant("@bob:example.org:BOB", false)
	p2.VideoB.Set(true)
	u.UpdateParticipant(p2)
	require.True(t, u.VM().(*RemoteUserMediaViewModel).VideoEnabled().Get())
}

func TestRemoteLocalVolume(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	u, p, _ := newTestUserMedia(scope, "@bob:example.org:BOB:0", false)
	vm := u.VM().(*RemoteUserMediaViewModel)
	require.InDelta(t, 1.0, p.Volume.Load(), 0.001)

	vm.SetLocalVolume(0.4)
	require.InDelta(t, 0.4, p.Volume.Load(), 0.001)

	vm.CommitLocalVolume()
	vm.ToggleLocallyMuted()
	require.InDelta(t, 0.0, p.Volume.Load(), 0.001)

	vm.ToggleLocallyMuted()
	require.InDelta(t, 0.4, p.Volume.Load(), 0.001)

	// committing zero mutes and snaps back to the last audible volume
	vm.SetLocalVolume(0)
	vm.CommitLocalVolume()
	require.True(t, vm.LocallyMuted().Get())
	require.InDelta(t, 0.4, vm.LocalVolume().Get(), 0.001)
}

func TestUnencryptedWarning(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	p := rtctest.NewFakeParticipant("@bob:example.org:BOB", false)
	params := UserMediaParams{
		Scope:       scope,
		ID:          "@bob:example.org:BOB:0",
		Member:      rtc.RoomMember{UserID: "@bob:example.org"},
		DisplayName: obs.NewDistinctBehavior("Bob"),
		Participant: obs.NewBehavior[rtc.Participant](p),
		Encryption:  rtc.EncryptionSystem{Kind: rtc.EncryptionPerParticipantKeys},
		HandRaised:  obs.NewBehavior[*time.Time](nil),
		Reaction:    obs.NewBehavior[*Reaction](nil),
		Logger:      logger.GetLogger(),
	}
	u := NewUserMedia(params, false, nil)

	require.False(t, u.Media().UnencryptedWarning().Get(), "no track, no warning")

	p.CameraB.Set(&rtc.TrackRef{Participant: p, Source: rtc.TrackSourceCamera, Encrypted: false})
	require.True(t, u.Media().UnencryptedWarning().Get())

	p.CameraB.Set(&rtc.TrackRef{Participant: p, Source: rtc.TrackSourceCamera, Encrypted: true})
	require.False(t, u.Media().UnencryptedWarning().Get())
}
