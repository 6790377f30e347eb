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
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/rtcview/callstate/pkg/connection"
	"github.com/rtcview/callstate/pkg/layout"
	"github.com/rtcview/callstate/pkg/media"
	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

const (
	sessionOpTimeout  = 10 * time.Second
	connStartTimeout  = 30 * time.Second
	connStopTimeout   = 10 * time.Second
	visibleTilesDelay = 50 * time.Millisecond
)

func (v *ViewModel) buildLayout(scope *obs.Scope) {
	computeWindowMode := func() layout.WindowMode {
		if v.params.PipEnabled.Get() {
			return layout.WindowModePip
		}
		size := v.params.WindowSize.Get()
		return layout.WindowModeFor(size.Width, size.Height)
	}
	v.windowMode = obs.NewDistinctBehavior(computeWindowMode())
	v.params.PipEnabled.WatchChanges(scope, func(bool) { v.windowMode.Set(computeWindowMode()) })
	v.params.WindowSize.WatchChanges(scope, func(WindowSize) { v.windowMode.Set(computeWindowMode()) })

	v.spotlightExpanded = obs.NewDistinctBehavior(false)

	v.gridMode = obs.NewDistinctBehavior(layout.GridModeGrid)
	// only a remote presentation pulls the call into spotlight; the local
	// user sharing their own screen does not
	sharingActive := obs.MapDistinct(scope, v.screenShares,
		func(shares []*media.ScreenShare) bool {
			return lo.SomeBy(shares, func(s *media.ScreenShare) bool {
				return !s.Media().Local()
			})
		})
	recomputeGridMode := func() { v.gridMode.Set(v.computeGridMode(sharingActive.Get())) }
	sharingActive.WatchChanges(scope, func(active bool) {
		if active {
			// a new presentation overrides an explicit grid choice, so
			// the next share is spotlighted again
			v.gridModeLock.Lock()
			if v.gridChoice == "grid" {
				v.gridChoice = "auto"
			}
			v.gridModeLock.Unlock()
		}
		recomputeGridMode()
	})
	v.windowMode.WatchChanges(scope, func(layout.WindowMode) { recomputeGridMode() })
	recomputeGridMode()

	v.visibleTiles = obs.NewDistinctBehavior(0)
	v.visibleTilesE.Watch(scope, func(n int) { v.visibleTiles.Set(n) })

	computeLayout := func() layout.Layout {
		m := v.computeLayoutMedia()
		v.layoutLock.Lock()
		defer v.layoutLock.Unlock()
		l, store := layout.Compute(m, v.visibleTiles.Get(), v.reportVisibleTiles, v.tileStore)
		v.tileStore = store
		return l
	}
	v.layoutB = obs.NewBehaviorWithEquality(computeLayout(), layout.Layout.Same)
	relayout := func() { v.layoutB.Set(computeLayout()) }
	v.windowMode.WatchChanges(scope, func(layout.WindowMode) { relayout() })
	v.gridMode.WatchChanges(scope, func(layout.GridMode) { relayout() })
	v.grid.WatchChanges(scope, func([]media.UserMediaViewModel) { relayout() })
	v.spotlight.WatchChanges(scope, func([]media.ViewModel) { relayout() })
	v.spotlightExpanded.WatchChanges(scope, func(bool) { relayout() })
	v.oneOnOne.WatchChanges(scope, func(bool) { relayout() })
	v.userMedia.WatchChanges(scope, func([]*media.UserMedia) { relayout() })
	v.screenShares.WatchChanges(scope, func([]*media.ScreenShare) { relayout() })
	v.params.Settings.AlwaysShowSelf.WatchChanges(scope, func(bool) { relayout() })
	v.visibleTiles.WatchChanges(scope, func(int) { relayout() })

	v.footer = newFooter(scope, v.windowMode, v.clk)

	v.showHeader = obs.MapDistinct(scope, v.windowMode, func(m layout.WindowMode) bool {
		return m == layout.WindowModeNormal || m == layout.WindowModeNarrow
	})
	v.showSpotlightIndicator = obs.MapDistinct(scope, v.layoutB, func(l layout.Layout) bool {
		return l.Spotlight != nil
	})
	v.showSpeakingIndicators = obs.MapDistinct(scope, v.layoutB, func(l layout.Layout) bool {
		switch l.Kind {
		case layout.KindGrid:
			// in small grids everyone is on screen anyway
			return len(l.Grid) > 2
		case layout.KindSpotlightLandscape, layout.KindSpotlightPortrait, layout.KindSpotlightExpanded:
			return true
		}
		return false
	})
	computeCanExpand := func() bool {
		if v.windowMode.Get() != layout.WindowModeNormal {
			return false
		}
		k := v.layoutB.Get().Kind
		return k == layout.KindSpotlightLandscape || k == layout.KindSpotlightExpanded
	}
	v.canExpandSpotlight = obs.NewDistinctBehavior(computeCanExpand())
	v.windowMode.WatchChanges(scope, func(layout.WindowMode) { v.canExpandSpotlight.Set(computeCanExpand()) })
	v.layoutB.WatchChanges(scope, func(layout.Layout) { v.canExpandSpotlight.Set(computeCanExpand()) })
}

func (v *ViewModel) computeGridMode(sharing bool) layout.GridMode {
	if v.windowMode.Get() == layout.WindowModeFlat {
		return layout.GridModeSpotlight
	}
	v.gridModeLock.Lock()
	choice := v.gridChoice
	v.gridModeLock.Unlock()
	switch choice {
	case "spotlight":
		return layout.GridModeSpotlight
	case "grid":
		return layout.GridModeGrid
	}
	if sharing {
		return layout.GridModeSpotlight
	}
	return layout.GridModeGrid
}

func (v *ViewModel) computeLayoutMedia() layout.Media {
	grid := v.grid.Get()
	spot := v.spotlight.Get()

	switch v.windowMode.Get() {
	case layout.WindowModePip:
		m := spot
		if len(m) == 0 {
			if local := v.localVM(); local != nil {
				m = []media.ViewModel{local}
			}
		}
		return layout.Media{Kind: layout.KindPip, Spotlight: m}
	case layout.WindowModeFlat:
		return layout.Media{Kind: layout.KindSpotlightLandscape, Grid: grid, Spotlight: spot}
	}

	if v.gridMode.Get() == layout.GridModeGrid {
		if v.oneOnOne.Get() {
			local, remote := v.oneOnOnePair()
			return layout.Media{Kind: layout.KindOneOnOne, Local: local, Remote: remote}
		}
		// in grid mode only presentations keep a spotlight strip
		var shareSpot []media.ViewModel
		if len(v.screenShares.Get()) > 0 {
			shareSpot = spot
		}
		return layout.Media{Kind: layout.KindGrid, Grid: grid, Spotlight: shareSpot}
	}

	if v.spotlightExpanded.Get() {
		return layout.Media{Kind: layout.KindSpotlightExpanded, Spotlight: spot, Pip: v.expandedPip(spot)}
	}
	kind := layout.KindSpotlightLandscape
	if v.windowMode.Get() == layout.WindowModeNarrow {
		kind = layout.KindSpotlightPortrait
	}
	return layout.Media{Kind: kind, Grid: grid, Spotlight: spot}
}

func (v *ViewModel) localVM() media.ViewModel {
	for _, u := range v.userMedia.Get() {
		if u.Media().Local() {
			return u.Media()
		}
	}
	return nil
}

func (v *ViewModel) oneOnOnePair() (local, remote media.ViewModel) {
	for _, u := range v.userMedia.Get() {
		if u.Media().Local() {
			local = u.Media()
		} else {
			remote = u.Media()
		}
	}
	return local, remote
}

// expandedPip floats the local tile over the expanded spotlight, but only
// when a remote person (not a presentation) is spotlighted and the local
// user wants to stay visible.
func (v *ViewModel) expandedPip(spot []media.ViewModel) media.ViewModel {
	if len(v.screenShares.Get()) > 0 {
		return nil
	}
	local := v.localVM()
	if local == nil || !v.params.Settings.AlwaysShowSelf.Get() {
		return nil
	}
	for _, vm := range spot {
		if vm == local {
			return nil
		}
	}
	return local
}

func (v *ViewModel) reportVisibleTiles(count int) {
	v.visibleLock.Lock()
	v.pendingVisible = count
	v.visibleLock.Unlock()
	v.debounceVisible(func() {
		v.visibleLock.Lock()
		n := v.pendingVisible
		v.visibleLock.Unlock()
		v.visibleTilesE.Emit(n)
	})
}

func (v *ViewModel) buildPickup(scope *obs.Scope) {
	participantCount := obs.MapDistinct(scope, v.userMedia, func(items []*media.UserMedia) int {
		seen := make(map[string]bool, len(items))
		for _, u := range items {
			id := u.ID()
			if i := strings.LastIndex(id, ":"); i >= 0 {
				id = id[:i]
			}
			seen[id] = true
		}
		return len(seen)
	})

	if !v.params.Options.WaitForCallPickup {
		v.pickup = obs.Constant(PickupStateNone)
		v.sounds = newSounds(scope, participantCount, v.pickup, v.clk)
		return
	}

	ring := newRing(scope, v.params.Session.DidSendCallNotification(), v.params.Timeline,
		v.params.Client.UserID(), v.clk)

	succeeded := false
	compute := func() PickupState {
		if succeeded {
			return PickupStateSuccess
		}
		if v.lkState.Get() != rtc.ConnectionStateConnected {
			return PickupStateUnknown
		}
		if v.othersConnected.Get() {
			succeeded = true
			return PickupStateSuccess
		}
		if r := ring.Get(); r != PickupStateNone {
			return r
		}
		return PickupStateUnknown
	}
	v.pickup = obs.NewDistinctBehavior(compute())
	recompute := func() { v.pickup.Set(compute()) }
	v.lkState.WatchChanges(scope, func(rtc.ConnectionState) { recompute() })
	v.othersConnected.WatchChanges(scope, func(bool) { recompute() })
	ring.WatchChanges(scope, func(PickupState) { recompute() })

	v.sounds = newSounds(scope, participantCount, v.pickup, v.clk)
}

func (v *ViewModel) wireSideEffects(scope *obs.Scope) {
	// a fresh attempt starts with a clean slate
	v.join.Watch(scope, func(struct{}) { v.configError.Set(nil) })

	obs.Reconcile(scope, v.advertised, v.log,
		func(adv *advertisedTransport) (func(), error) {
			if adv == nil {
				return nil, nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
			defer cancel()
			opts := rtc.JoinOptions{
				MultiSFU:        adv.MultiSFU,
				StickyEvents:    adv.Sticky,
				ManageMediaKeys: v.params.Options.Encryption.Kind == rtc.EncryptionPerParticipantKeys,
				Intent:          v.callIntent(),
			}
			// in multi-SFU mode only the focus hint is advertised; in
			// single-SFU mode the transport list pins the whole call
			preferred := adv.Transport
			var transports []rtc.Transport
			focus := &preferred
			if !adv.MultiSFU {
				transports = []rtc.Transport{preferred}
				focus = nil
			}
			if err := v.params.Session.JoinRoomSession(ctx, transports, focus, opts); err != nil {
				return nil, err
			}
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
				defer cancel()
				if err := v.params.Session.LeaveRoomSession(ctx); err != nil {
					v.log.Warnw("failed to leave room session", err)
				}
			}, nil
		})

	obs.Pairwise(scope, v.connections).Watch(scope, func(p obs.Pair[[]connection.Conn]) {
		next := make(map[string]bool, len(p.Next))
		for _, c := range p.Next {
			next[c.Key()] = true
		}
		prev := make(map[string]bool, len(p.Prev))
		for _, c := range p.Prev {
			prev[c.Key()] = true
			if !next[c.Key()] {
				go v.stopConnection(c)
			}
		}
		for _, c := range p.Next {
			if !prev[c.Key()] {
				go v.startConnection(c)
			}
		}
	})

	// a camera mute flip while advertised updates the declared intent
	v.params.MuteStates.Video.Enabled().WatchChanges(scope, func(bool) {
		if v.advertised.Get() == nil {
			return
		}
		intent := v.callIntent()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
			defer cancel()
			if err := v.params.Session.UpdateCallIntent(ctx, intent); err != nil {
				v.log.Warnw("failed to update call intent", err)
			}
		}()
	})

	// while the protocol session looks dead, stop wasting upstream
	// bandwidth on media nobody can attribute to us
	v.matrixConnected.WatchChanges(scope, func(connected bool) {
		conn := v.localConnection.Get()
		if conn == nil {
			return
		}
		tracks := conn.Room().LocalParticipant().Tracks()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
			defer cancel()
			for _, t := range tracks {
				var err error
				if connected && t.UpstreamPaused() {
					err = t.ResumeUpstream(ctx)
				} else if !connected && !t.UpstreamPaused() {
					err = t.PauseUpstream(ctx)
				}
				if err != nil {
					v.log.Warnw("failed to toggle upstream", err)
				}
			}
		}()
	})

	if v.params.Bridge != nil {
		v.params.Bridge.Actions().Watch(scope, func(a rtc.HostAction) {
			if a.Name == rtc.HostActionHangup {
				v.Hangup()
			}
		})
		v.leave.Watch(scope, func(LeaveReason) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
				defer cancel()
				if err := v.params.Bridge.Send(ctx, rtc.HostAction{Name: rtc.HostActionClose}); err != nil {
					v.log.Debugw("failed to notify host of close", "error", err)
				}
			}()
		})
	}

	if v.params.Options.AutoLeave {
		v.pickup.WatchChanges(scope, func(s PickupState) {
			switch s {
			case PickupStateTimeout:
				v.Leave(LeaveReasonTimeout)
			case PickupStateDecline:
				v.Leave(LeaveReasonDecline)
			}
		})
		othersPresent := obs.MapDistinct(scope, v.memberships, func(ms []rtc.Membership) bool {
			for _, m := range ms {
				if !v.isSelf(m) {
					return true
				}
			}
			return false
		})
		obs.Pairwise(scope, othersPresent).Watch(scope, func(p obs.Pair[bool]) {
			if p.Prev && !p.Next && v.joined.Get() {
				v.Leave(LeaveReasonAllOthersLeft)
			}
		})
	}
}

func (v *ViewModel) callIntent() rtc.CallIntent {
	if v.params.MuteStates.Video.Enabled().Get() {
		return rtc.CallIntentVideo
	}
	return rtc.CallIntentAudio
}

func (v *ViewModel) startConnection(c connection.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), connStartTimeout)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		if c.Publisher() {
			v.raiseConfigError(err)
		} else {
			v.log.Warnw("remote connection failed to start", err,
				"serviceURL", c.Transport().ServiceURL)
		}
	}
}

func (v *ViewModel) stopConnection(c connection.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), connStopTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		v.log.Warnw("failed to stop connection", err,
			"serviceURL", c.Transport().ServiceURL)
	}
}

func (v *ViewModel) raiseConfigError(err error) {
	ce, ok := rtc.AsCallError(err)
	if !ok {
		ce = rtc.NewUnknownCallError(err)
	}
	v.log.Errorw("call failed to start", err)
	v.configError.Update(func(cur *rtc.CallError) *rtc.CallError {
		if cur != nil {
			return cur
		}
		return ce
	})
}

// Join starts the call attempt. Safe to call again after Leave.
func (v *ViewModel) Join() { v.join.Emit(struct{}{}) }

// Hangup is a user-initiated leave.
func (v *ViewModel) Hangup() { v.Leave(LeaveReasonUser) }

func (v *ViewModel) Leave(reason LeaveReason) { v.leave.Emit(reason) }

func (v *ViewModel) Joined() *obs.Behavior[bool]   { return v.joined }
func (v *ViewModel) Left() *obs.Event[LeaveReason] { return v.leave }

func (v *ViewModel) Layout() *obs.Behavior[layout.Layout]          { return v.layoutB }
func (v *ViewModel) GridMode() *obs.Behavior[layout.GridMode]      { return v.gridMode }
func (v *ViewModel) WindowMode() *obs.Behavior[layout.WindowMode]  { return v.windowMode }
func (v *ViewModel) SpotlightExpandedB() *obs.Behavior[bool]       { return v.spotlightExpanded }
func (v *ViewModel) Grid() *obs.Behavior[[]media.UserMediaViewModel] { return v.grid }
func (v *ViewModel) Spotlight() *obs.Behavior[[]media.ViewModel]   { return v.spotlight }
func (v *ViewModel) Items() *obs.Behavior[[]media.Item]            { return v.items }

func (v *ViewModel) Connected() *obs.Behavior[bool]       { return v.connected }
func (v *ViewModel) Reconnecting() *obs.Behavior[bool]    { return v.reconnecting }
func (v *ViewModel) MatrixConnected() *obs.Behavior[bool] { return v.matrixConnected }

func (v *ViewModel) ConfigError() *obs.Behavior[*rtc.CallError]     { return v.configError }
func (v *ViewModel) CallPickupState() *obs.Behavior[PickupState]    { return v.pickup }
func (v *ViewModel) Sounds() *obs.Event[Sound]                      { return v.sounds }

// Rooms lists every live SFU room, one per connection, for audio
// renderers that attach per room.
func (v *ViewModel) Rooms() *obs.Behavior[[]rtc.MediaRoom] { return v.rooms }

func (v *ViewModel) ShowHeader() *obs.Behavior[bool]             { return v.showHeader }
func (v *ViewModel) ShowSpotlightIndicator() *obs.Behavior[bool] { return v.showSpotlightIndicator }
func (v *ViewModel) ShowSpeakingIndicators() *obs.Behavior[bool] { return v.showSpeakingIndicators }
func (v *ViewModel) CanExpandSpotlight() *obs.Behavior[bool]     { return v.canExpandSpotlight }

// NewScreenShare pulses when another presentation appears.
func (v *ViewModel) NewScreenShare() *obs.Event[struct{}] { return v.newScreenShare }

// NewHandRaised pulses when another hand goes up.
func (v *ViewModel) NewHandRaised() *obs.Event[struct{}] { return v.newHandRaised }
func (v *ViewModel) MemberDisplayNames() *obs.Behavior[map[string]string] {
	return v.displayNames
}

func (v *ViewModel) SetGridMode(mode layout.GridMode) {
	v.gridModeLock.Lock()
	switch mode {
	case layout.GridModeGrid:
		v.gridChoice = "grid"
	case layout.GridModeSpotlight:
		v.gridChoice = "spotlight"
	}
	v.gridModeLock.Unlock()
	v.gridMode.Set(v.computeGridMode(v.remoteShareActive()))
}

func (v *ViewModel) remoteShareActive() bool {
	return lo.SomeBy(v.screenShares.Get(), func(s *media.ScreenShare) bool {
		return !s.Media().Local()
	})
}

// ToggleSpotlightExpanded is a no-op while the layout has no spotlight to
// expand.
func (v *ViewModel) ToggleSpotlightExpanded() {
	if !v.canExpandSpotlight.Get() {
		return
	}
	v.spotlightExpanded.Update(func(e bool) bool { return !e })
}

// SetVisibleTiles is the renderer's report of how many grid tiles fit on
// screen, fed back into the next layout cycle.
func (v *ViewModel) SetVisibleTiles(count int) {
	v.visibleTiles.Set(count)
}

func (v *ViewModel) ShowFooter() *obs.Behavior[bool] { return v.footer.Shown() }

func (v *ViewModel) TapScreen()     { v.footer.interact() }
func (v *ViewModel) TapControls()   { v.footer.interact() }
func (v *ViewModel) HoverScreen()   { v.footer.hover(true) }
func (v *ViewModel) UnhoverScreen() { v.footer.hover(false) }

// ScreenShareSupported reports whether the sharing control should exist at
// all in this environment.
func (v *ViewModel) ScreenShareSupported() bool {
	return v.params.Options.ScreenShareSupported && !v.params.Options.HideScreenSharing
}

func (v *ViewModel) ToggleScreenShare(ctx context.Context) error {
	if !v.ScreenShareSupported() {
		return nil
	}
	conn := v.localConnection.Get()
	if conn == nil {
		return nil
	}
	lp := conn.Room().LocalParticipant()
	return lp.SetScreenShareEnabled(ctx, !lp.ScreenShareEnabled().Get())
}
