package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
	"github.com/rtcview/callstate/pkg/rtc/rtctest"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

func TestMuteState(t *testing.T) {
	t.Run("without a handler intent is reflected directly", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		m := NewMuteState(scope, rtctest.NewFakeDeviceSelection(rtc.MediaDevice{ID: "mic"}), false, logger.GetLogger())

		m.SetEnabled(true)
		eventually(t, func() bool { return m.Enabled().Get() })
		m.Toggle()
		eventually(t, func() bool { return !m.Enabled().Get() })
	})

	t.Run("handler result wins over intent", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		m := NewMuteState(scope, rtctest.NewFakeDeviceSelection(rtc.MediaDevice{ID: "mic"}), true, logger.GetLogger())

		var lock sync.Mutex
		var requested []bool
		require.NoError(t, m.SetHandler(func(ctx context.Context, enabled bool) (bool, error) {
			lock.Lock()
			requested = append(requested, enabled)
			lock.Unlock()
			return false, nil // device stays muted no matter what
		}))

		eventually(t, func() bool { return !m.Enabled().Get() })
		lock.Lock()
		require.Equal(t, []bool{true}, requested, "current intent is pushed on install")
		lock.Unlock()
	})

	t.Run("rapid changes apply only the latest", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		m := NewMuteState(scope, rtctest.NewFakeDeviceSelection(rtc.MediaDevice{ID: "mic"}), false, logger.GetLogger())

		gate := make(chan struct{})
		var lock sync.Mutex
		var requested []bool
		require.NoError(t, m.SetHandler(func(ctx context.Context, enabled bool) (bool, error) {
			<-gate
			lock.Lock()
			requested = append(requested, enabled)
			lock.Unlock()
			return enabled, nil
		}))

		// the install sync is blocked on the gate; these pile up behind it
		m.SetEnabled(true)
		m.SetEnabled(false)
		m.SetEnabled(true)
		gate <- struct{}{}
		gate <- struct{}{}

		eventually(t, func() bool { return m.Enabled().Get() })
		lock.Lock()
		defer lock.Unlock()
		require.Equal(t, []bool{false, true}, requested, "intermediate values are skipped")
	})

	t.Run("no devices means no enabling", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		m := NewMuteState(scope, rtctest.NewFakeDeviceSelection(), true, logger.GetLogger())

		require.False(t, m.Enabled().Get())
		m.SetEnabled(true)
		time.Sleep(10 * time.Millisecond)
		require.False(t, m.Enabled().Get())
	})

	t.Run("second handler is rejected", func(t *testing.T) {
		scope := obs.NewScope()
		defer scope.End()
		m := NewMuteState(scope, nil, false, logger.GetLogger())

		h := func(ctx context.Context, enabled bool) (bool, error) { return enabled, nil }
		require.NoError(t, m.SetHandler(h))
		require.ErrorIs(t, m.SetHandler(h), ErrHandlerAlreadySet)
		m.UnsetHandler()
		require.NoError(t, m.SetHandler(h))
	})
}

func TestMuteStatesHostBridge(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()
	bridge := rtctest.NewFakeHostBridge()
	m := NewMuteStates(MuteStatesParams{
		Scope:   scope,
		Devices: rtctest.NewFakeMediaDevices(),
		Bridge:  bridge,
		Logger:  logger.GetLogger(),
	})

	m.Audio.SetEnabled(true)
	eventually(t, func() bool { return len(bridge.Sent()) > 0 })
	sent := bridge.Sent()[len(bridge.Sent())-1]
	require.Equal(t, rtc.HostActionDeviceMute, sent.Name)
	require.True(t, *sent.AudioEnabled)

	enabled := true
	bridge.ActionsE.Emit(rtc.HostAction{Name: rtc.HostActionDeviceMute, VideoEnabled: &enabled})
	eventually(t, func() bool { return m.Video.Enabled().Get() })

	// the host-requested change must not echo back once it lands
	sentBefore := len(bridge.Sent())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, sentBefore, len(bridge.Sent()))

	// a genuine local change after a host request still notifies
	m.Audio.SetEnabled(false)
	eventually(t, func() bool { return len(bridge.Sent()) == sentBefore+1 })
	last := bridge.Sent()[len(bridge.Sent())-1]
	require.False(t, *last.AudioEnabled)
	require.True(t, *last.VideoEnabled)
}
