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

// Package call derives the complete reactive state of one call: which
// connections to hold, who is on which tile, and how the tiles are laid
// out, from protocol membership, transport negotiation and live media
// state.
package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"github.com/livekit/protocol/logger"
	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/rtcview/callstate/pkg/config"
	"github.com/rtcview/callstate/pkg/connection"
	"github.com/rtcview/callstate/pkg/layout"
	"github.com/rtcview/callstate/pkg/media"
	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

type LeaveReason string

const (
	LeaveReasonUser          LeaveReason = "user"
	LeaveReasonTimeout       LeaveReason = "timeout"
	LeaveReasonDecline       LeaveReason = "decline"
	LeaveReasonAllOthersLeft LeaveReason = "allOthersLeft"
)

type WindowSize struct {
	Width  int
	Height int
}

// Settings are user preferences the view model reacts to while the call
// is running.
type Settings struct {
	MultiSFU     *obs.Behavior[bool]
	StickyEvents *obs.Behavior[bool]
	// DuplicateTiles renders N extra copies of every tile, for layout
	// stress testing.
	DuplicateTiles *obs.Behavior[int]
	AlwaysShowSelf *obs.Behavior[bool]
	// Processor names the desired video frame processor, "" for none.
	Processor *obs.Behavior[string]
}

func DefaultSettings() Settings {
	return Settings{
		MultiSFU:       obs.NewDistinctBehavior(false),
		StickyEvents:   obs.NewDistinctBehavior(false),
		DuplicateTiles: obs.NewDistinctBehavior(0),
		AlwaysShowSelf: obs.NewDistinctBehavior(true),
		Processor:      obs.NewDistinctBehavior(""),
	}
}

type Options struct {
	Encryption           rtc.EncryptionSystem
	AutoLeave            bool
	WaitForCallPickup    bool
	ScreenShareSupported bool
	HideScreenSharing    bool
}

type Params struct {
	Scope    *obs.Scope
	Alias    string
	Client   rtc.Client
	Session  rtc.Session
	Timeline rtc.Timeline
	Devices  rtc.MediaDevices

	MuteStates  *media.MuteStates
	Configs     connection.ConfigSource
	RoomFactory rtc.MediaRoomFactory
	Bridge      rtc.HostBridge
	Config      *config.Config

	Settings Settings
	Options  Options

	// HandsRaised and Reactions are keyed by participant identity.
	HandsRaised *obs.Behavior[map[string]time.Time]
	Reactions   *obs.Behavior[map[string]media.Reaction]

	WindowSize *obs.Behavior[WindowSize]
	PipEnabled *obs.Behavior[bool]

	Clock  clock.Clock
	Logger logger.Logger
}

// transportSet is everything the transport negotiation produced for one
// joined state: where we publish, where everyone else publishes, and the
// mode flags.
type transportSet struct {
	Joined   bool
	Local    obs.Async[rtc.Transport]
	Remote   []rtc.MemberTransport
	MultiSFU bool
	Sticky   bool
}

type advertisedTransport struct {
	Transport rtc.Transport
	MultiSFU  bool
	Sticky    bool
}

type localTarget struct {
	Has       bool
	Transport rtc.Transport
}

type participantEntry struct {
	Identity    string
	Membership  rtc.Membership
	Participant rtc.Participant
	Local       bool
}

type itemsInput struct {
	Entries []participantEntry
	Sharing []bool
	Dups    int
}

type ViewModel struct {
	params Params
	log    logger.Logger
	clk    clock.Clock

	join   *obs.Event[struct{}]
	leave  *obs.Event[LeaveReason]
	joined *obs.Behavior[bool]

	configError  *obs.Behavior[*rtc.CallError]
	memberships  *obs.Behavior[[]rtc.Membership]
	displayNames *obs.Behavior[map[string]string]

	preferred        *obs.Behavior[obs.Async[rtc.Transport]]
	transports       *obs.Behavior[transportSet]
	remoteTransports *obs.Behavior[[]rtc.MemberTransport]
	advertised       *obs.Behavior[*advertisedTransport]

	localConnection   *obs.Behavior[*connection.PublishConnection]
	remoteConnections *obs.Behavior[[]*connection.RemoteConnection]
	connections       *obs.Behavior[[]connection.Conn]

	lkState         *obs.Behavior[rtc.ConnectionState]
	matrixConnected *obs.Behavior[bool]
	connected       *obs.Behavior[bool]
	reconnecting    *obs.Behavior[bool]

	othersConnected *obs.Behavior[bool]

	rooms *obs.Behavior[[]rtc.MediaRoom]

	handsRaised *obs.Behavior[map[string]time.Time]
	reactions   *obs.Behavior[map[string]media.Reaction]

	items        *obs.Behavior[[]media.Item]
	userMedia    *obs.Behavior[[]*media.UserMedia]
	screenShares *obs.Behavior[[]*media.ScreenShare]
	grid         *obs.Behavior[[]media.UserMediaViewModel]
	spotlight    *obs.Behavior[[]media.ViewModel]
	oneOnOne     *obs.Behavior[bool]

	newScreenShare *obs.Event[struct{}]
	newHandRaised  *obs.Event[struct{}]

	windowMode        *obs.Behavior[layout.WindowMode]
	gridMode          *obs.Behavior[layout.GridMode]
	spotlightExpanded *obs.Behavior[bool]

	layoutB       *obs.Behavior[layout.Layout]
	visibleTiles  *obs.Behavior[int]
	visibleTilesE *obs.Event[int]

	showHeader             *obs.Behavior[bool]
	showSpotlightIndicator *obs.Behavior[bool]
	showSpeakingIndicators *obs.Behavior[bool]
	canExpandSpotlight     *obs.Behavior[bool]

	pickup *obs.Behavior[PickupState]
	sounds *obs.Event[Sound]
	footer *footer

	layoutLock sync.Mutex
	tileStore  *layout.TileStore

	gridModeLock sync.Mutex
	gridChoice   string // "auto", "grid" or "spotlight"

	spotLock sync.Mutex
	spotPrev *media.UserMedia

	visibleLock     sync.Mutex
	pendingVisible  int
	debounceVisible func(func())
}

func NewViewModel(params Params) *ViewModel {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Settings.MultiSFU == nil {
		params.Settings = DefaultSettings()
	}
	if params.HandsRaised == nil {
		params.HandsRaised = obs.NewBehavior(map[string]time.Time{})
	}
	if params.Reactions == nil {
		params.Reactions = obs.NewBehavior(map[string]media.Reaction{})
	}
	if params.WindowSize == nil {
		params.WindowSize = obs.NewBehavior(WindowSize{Width: 1280, Height: 720})
	}
	if params.PipEnabled == nil {
		params.PipEnabled = obs.NewDistinctBehavior(false)
	}

	v := &ViewModel{
		params:          params,
		log:             params.Logger,
		clk:             params.Clock,
		join:            obs.NewEvent[struct{}](),
		leave:           obs.NewEvent[LeaveReason](),
		joined:          obs.NewDistinctBehavior(false),
		configError:     obs.NewBehavior[*rtc.CallError](nil),
		visibleTilesE:   obs.NewEvent[int](),
		gridChoice:      "auto",
		debounceVisible: debounce.New(visibleTilesDelay),
	}
	scope := params.Scope

	v.join.Watch(scope, func(struct{}) { v.joined.Set(true) })
	v.leave.Watch(scope, func(LeaveReason) { v.joined.Set(false) })

	v.buildMemberships(scope)
	v.buildTransports(scope)
	v.buildConnections(scope)
	v.buildConnectivity(scope)
	v.buildMediaItems(scope)
	v.buildLayout(scope)
	v.buildPickup(scope)
	v.wireSideEffects(scope)
	return v
}

func (v *ViewModel) selfIdentity() string {
	return rtc.ParticipantID{UserID: v.params.Client.UserID(), DeviceID: v.params.Client.DeviceID()}.String()
}

func (v *ViewModel) isSelf(m rtc.Membership) bool {
	return m.UserID == v.params.Client.UserID() && m.DeviceID == v.params.Client.DeviceID()
}

func (v *ViewModel) buildMemberships(scope *obs.Scope) {
	v.memberships = obs.NewBehavior(v.params.Session.Memberships())
	v.params.Session.MembershipsChanged().Watch(scope, func(struct{}) {
		v.memberships.Set(v.params.Session.Memberships())
	})

	computeNames := func() map[string]string {
		members := make([]rtc.RoomMember, 0, len(v.memberships.Get()))
		seen := make(map[string]bool)
		for _, m := range v.memberships.Get() {
			if seen[m.UserID] {
				continue
			}
			seen[m.UserID] = true
			if rm, ok := v.params.Client.Member(m.UserID); ok {
				members = append(members, rm)
			} else {
				// expected while the member's state has not arrived yet
				members = append(members, rtc.RoomMember{UserID: m.UserID})
			}
		}
		return disambiguateDisplayNames(members)
	}
	v.displayNames = obs.NewBehaviorWithEquality(computeNames(), maps.Equal[map[string]string, map[string]string])
	v.memberships.WatchChanges(scope, func([]rtc.Membership) { v.displayNames.Set(computeNames()) })
	v.params.Client.MembersChanged().Watch(scope, func(struct{}) { v.displayNames.Set(computeNames()) })
}

func (v *ViewModel) buildTransports(scope *obs.Scope) {
	// resolved once per call attempt
	v.preferred = obs.SwitchMap(scope, v.joined,
		func(s *obs.Scope, joined bool) *obs.Behavior[obs.Async[rtc.Transport]] {
			if !joined {
				return obs.Constant(obs.Loading[rtc.Transport]())
			}
			return obs.Observe(s, func(ctx context.Context) (rtc.Transport, error) {
				return resolvePreferredTransport(ctx, v.params.Client, v.params.Configs, v.params.Config, v.params.Alias, v.log)
			})
		})

	// a failed resolution is fatal to the call attempt and surfaces once
	v.preferred.WatchChanges(scope, func(a obs.Async[rtc.Transport]) {
		if a.IsError() && v.joined.Get() {
			v.raiseConfigError(a.Err)
		}
	})

	compute := func() transportSet {
		if !v.joined.Get() {
			return transportSet{}
		}
		sticky := v.params.Settings.StickyEvents.Get()
		multi := sticky || v.params.Settings.MultiSFU.Get()
		set := transportSet{Joined: true, MultiSFU: multi, Sticky: sticky}

		local := v.preferred.Get()
		if !multi {
			// everyone converging on the oldest member's declared transport
			// minimizes membership churn
			if oldest, ok := v.params.Session.OldestMembership(); ok && oldest.Transport != nil {
				local = obs.Ready(*oldest.Transport)
			}
		}
		set.Local = local

		var fallback *rtc.Transport
		if local.IsReady() {
			t := local.Value
			fallback = &t
		}
		for _, m := range v.memberships.Get() {
			if v.isSelf(m) {
				continue
			}
			t := m.Transport
			if t == nil {
				t = fallback
			}
			if t == nil {
				continue
			}
			set.Remote = append(set.Remote, rtc.MemberTransport{Membership: m, Transport: *t})
		}
		return set
	}
	v.transports = obs.NewBehavior(compute())
	recompute := func() { v.transports.Set(compute()) }
	v.joined.WatchChanges(scope, func(bool) { recompute() })
	v.preferred.WatchChanges(scope, func(obs.Async[rtc.Transport]) { recompute() })
	v.memberships.WatchChanges(scope, func([]rtc.Membership) { recompute() })
	v.params.Settings.MultiSFU.WatchChanges(scope, func(bool) { recompute() })
	v.params.Settings.StickyEvents.WatchChanges(scope, func(bool) { recompute() })

	v.remoteTransports = obs.Map(scope, v.transports, func(s transportSet) []rtc.MemberTransport {
		return s.Remote
	})

	v.advertised = obs.MapWithEquality(scope, v.transports,
		func(a, b *advertisedTransport) bool {
			if a == nil || b == nil {
				return a == b
			}
			return *a == *b
		},
		func(s transportSet) *advertisedTransport {
			if !s.Joined || !s.Local.IsReady() {
				return nil
			}
			return &advertisedTransport{Transport: s.Local.Value, MultiSFU: s.MultiSFU, Sticky: s.Sticky}
		})
}

func (v *ViewModel) buildConnections(scope *obs.Scope) {
	localTargetB := obs.MapWithEquality(scope, v.transports,
		func(a, b localTarget) bool { return a == b },
		func(s transportSet) localTarget {
			if !s.Joined || !s.Local.IsReady() {
				return localTarget{}
			}
			return localTarget{Has: true, Transport: s.Local.Value}
		})

	v.localConnection = obs.GenerateKeyed(scope, localTargetB,
		func(in localTarget, createOrGet obs.CreateOrGet[*connection.PublishConnection]) *connection.PublishConnection {
			if !in.Has {
				return nil
			}
			transport := in.Transport
			return createOrGet(transport.Key(), func(s *obs.Scope) *connection.PublishConnection {
				return connection.NewPublishConnection(connection.PublishParams{
					Params: connection.Params{
						Transport:        transport,
						Scope:            s,
						Tokens:           v.params.Client,
						Configs:          v.params.Configs,
						DeviceID:         v.params.Client.DeviceID(),
						Room:             v.params.RoomFactory(v.publishRoomOptions()),
						RemoteTransports: v.remoteTransports,
						Logger:           v.log,
					},
					MuteStates: v.params.MuteStates,
					Devices:    v.params.Devices,
					Processor:  v.params.Settings.Processor,
				})
			})
		})

	// one remote connection per distinct remote service URL that is not
	// the local one
	remoteTargetsB := obs.MapWithEquality(scope, v.transports, obs.SliceEq[rtc.Transport],
		func(s transportSet) []rtc.Transport {
			var localURL string
			if s.Local.IsReady() {
				localURL = s.Local.Value.ServiceURL
			}
			var targets []rtc.Transport
			for _, mt := range s.Remote {
				if mt.Transport.ServiceURL == localURL {
					continue
				}
				if slices.ContainsFunc(targets, func(t rtc.Transport) bool {
					return t.ServiceURL == mt.Transport.ServiceURL
				}) {
					continue
				}
				targets = append(targets, mt.Transport)
			}
			slices.SortFunc(targets, func(a, b rtc.Transport) int {
				return strings.Compare(a.ServiceURL, b.ServiceURL)
			})
			return targets
		})

	v.remoteConnections = obs.GenerateKeyed(scope, remoteTargetsB,
		func(in []rtc.Transport, createOrGet obs.CreateOrGet[*connection.RemoteConnection]) []*connection.RemoteConnection {
			conns := make([]*connection.RemoteConnection, 0, len(in))
			for _, target := range in {
				transport := target
				conns = append(conns, createOrGet(transport.ServiceURL, func(s *obs.Scope) *connection.RemoteConnection {
					return connection.NewRemoteConnection(connection.Params{
						Transport:        transport,
						Scope:            s,
						Tokens:           v.params.Client,
						Configs:          v.params.Configs,
						DeviceID:         v.params.Client.DeviceID(),
						Room:             v.params.RoomFactory(v.remoteRoomOptions()),
						RemoteTransports: v.remoteTransports,
						Logger:           v.log,
					})
				}))
			}
			return conns
		})

	v.connections = obs.Combine2(scope, v.localConnection, v.remoteConnections,
		func(local *connection.PublishConnection, remotes []*connection.RemoteConnection) []connection.Conn {
			var conns []connection.Conn
			if local != nil {
				conns = append(conns, local)
			}
			for _, r := range remotes {
				conns = append(conns, r)
			}
			return conns
		})

	// every live SFU room, for audio renderers that attach per room
	v.rooms = obs.MapWithEquality(scope, v.connections, obs.SliceEq[rtc.MediaRoom],
		func(conns []connection.Conn) []rtc.MediaRoom {
			return lo.Map(conns, func(c connection.Conn, _ int) rtc.MediaRoom { return c.Room() })
		})
}

func (v *ViewModel) publishRoomOptions() rtc.RoomOptions {
	opts := rtc.RoomOptions{
		Encryption:     v.params.Options.Encryption,
		VideoProcessor: v.params.Settings.Processor.Get(),
	}
	if v.params.Devices != nil {
		if d := v.params.Devices.AudioInput().Selected().Get(); d != nil {
			opts.AudioCaptureDeviceID = d.ID
		}
		if d := v.params.Devices.VideoInput().Selected().Get(); d != nil {
			opts.VideoCaptureDeviceID = d.ID
		}
		if d := v.params.Devices.AudioOutput().Selected().Get(); d != nil {
			opts.AudioOutputDeviceID = d.ID
		}
	}
	return opts
}

func (v *ViewModel) remoteRoomOptions() rtc.RoomOptions {
	opts := rtc.RoomOptions{Encryption: v.params.Options.Encryption}
	if v.params.Devices != nil {
		if d := v.params.Devices.AudioOutput().Selected().Get(); d != nil {
			opts.AudioOutputDeviceID = d.ID
		}
	}
	return opts
}

func (v *ViewModel) buildConnectivity(scope *obs.Scope) {
	v.lkState = obs.SwitchMap(scope, v.localConnection,
		func(s *obs.Scope, conn *connection.PublishConnection) *obs.Behavior[rtc.ConnectionState] {
			if conn == nil {
				return obs.Constant(rtc.ConnectionStateDisconnected)
			}
			return obs.SwitchMap(s, conn.Status(),
				func(s2 *obs.Scope, st connection.Status) *obs.Behavior[rtc.ConnectionState] {
					if st.State == connection.StateConnectedToLkRoom {
						return conn.Room().ConnectionState()
					}
					return obs.Constant(rtc.ConnectionStateDisconnected)
				})
		})

	statusConnected := obs.MapDistinct(scope, v.params.Session.MembershipStatus(),
		func(s rtc.MembershipStatus) bool { return s == rtc.MembershipStatusConnected })
	notProbablyLeft := obs.MapDistinct(scope, v.params.Session.ProbablyLeft(),
		func(left bool) bool { return !left })
	v.matrixConnected = obs.And(scope, v.params.Client.SyncConnected(), statusConnected, notProbablyLeft)

	lkConnected := obs.MapDistinct(scope, v.lkState,
		func(s rtc.ConnectionState) bool { return s == rtc.ConnectionStateConnected })
	v.connected = obs.And(scope, v.matrixConnected, lkConnected)

	// reconnecting only after a first successful connect, until restored
	v.reconnecting = obs.NewDistinctBehavior(false)
	everConnected := false
	v.connected.Watch(scope, func(c bool) {
		if c {
			everConnected = true
			v.reconnecting.Set(false)
		} else if everConnected {
			v.reconnecting.Set(true)
		}
	})
}

func (v *ViewModel) selfMembership() rtc.Membership {
	for _, m := range v.memberships.Get() {
		if v.isSelf(m) {
			return m
		}
	}
	return rtc.Membership{UserID: v.params.Client.UserID(), DeviceID: v.params.Client.DeviceID()}
}

func (v *ViewModel) buildMediaItems(scope *obs.Scope) {
	entries := obs.SwitchMap(scope, v.connections,
		func(s *obs.Scope, conns []connection.Conn) *obs.Behavior[[]participantEntry] {
			if len(conns) == 0 {
				return obs.Constant[[]participantEntry](nil)
			}
			lists := lo.Map(conns, func(c connection.Conn, _ int) *obs.Behavior[[]rtc.PublishingParticipant] {
				return c.PublishingParticipants()
			})
			return obs.CombineAll(s, lists, func(all [][]rtc.PublishingParticipant) []participantEntry {
				var out []participantEntry
				if local := v.localConnection.Get(); local != nil {
					out = append(out, participantEntry{
						Identity:    v.selfIdentity(),
						Membership:  v.selfMembership(),
						Participant: local.Room().LocalParticipant(),
						Local:       true,
					})
				}
				for _, list := range all {
					for _, pp := range list {
						out = append(out, participantEntry{
							Identity:    pp.Membership.ID().String(),
							Membership:  pp.Membership,
							Participant: pp.Participant,
						})
					}
				}
				return out
			})
		})

	v.othersConnected = obs.MapDistinct(scope, entries, func(es []participantEntry) bool {
		for _, e := range es {
			if !e.Local && e.Participant != nil {
				return true
			}
		}
		return false
	})

	// hold the tile set steady through a reconnect instead of flashing
	// everyone away and back, and the presence ornaments with it
	paused := obs.PauseWhen(scope, entries, v.reconnecting, obs.SliceEq[participantEntry])
	v.handsRaised = obs.PauseWhen(scope, v.params.HandsRaised, v.reconnecting,
		func(a, b map[string]time.Time) bool { return maps.EqualFunc(a, b, time.Time.Equal) })
	v.reactions = obs.PauseWhen(scope, v.params.Reactions, v.reconnecting,
		maps.Equal[map[string]media.Reaction, map[string]media.Reaction])

	type entriesAndDups struct {
		Entries []participantEntry
		Dups    int
	}
	withDups := obs.Combine2(scope, paused, v.params.Settings.DuplicateTiles,
		func(e []participantEntry, d int) entriesAndDups { return entriesAndDups{Entries: e, Dups: d} })

	inputB := obs.SwitchMap(scope, withDups,
		func(s *obs.Scope, in entriesAndDups) *obs.Behavior[itemsInput] {
			sharing := lo.Map(in.Entries, func(e participantEntry, _ int) *obs.Behavior[bool] {
				if e.Participant == nil {
					return obs.Constant(false)
				}
				return e.Participant.ScreenShareEnabled()
			})
			if len(sharing) == 0 {
				return obs.Constant(itemsInput{Dups: in.Dups})
			}
			return obs.CombineAll(s, sharing, func(flags []bool) itemsInput {
				return itemsInput{Entries: in.Entries, Sharing: flags, Dups: in.Dups}
			})
		})

	v.items = obs.GenerateKeyed(scope, inputB,
		func(in itemsInput, createOrGet obs.CreateOrGet[media.Item]) []media.Item {
			var out []media.Item
			copies := 1 + max(0, in.Dups)
			for i, e := range in.Entries {
				entry := e
				for d := 0; d < copies; d++ {
					key := fmt.Sprintf("%s:%d", entry.Identity, d)
					item := createOrGet(key, func(s *obs.Scope) media.Item {
						return v.newUserMedia(s, key, entry)
					})
					if um, ok := item.(*media.UserMedia); ok {
						um.UpdateParticipant(entry.Participant)
					}
					out = append(out, item)
				}
				if in.Sharing[i] {
					key := entry.Identity + ":screen-share"
					item := createOrGet(key, func(s *obs.Scope) media.Item {
						return v.makeScreenShare(s, key, entry)
					})
					if ss, ok := item.(*media.ScreenShare); ok {
						ss.UpdateParticipant(entry.Participant)
					}
					out = append(out, item)
				}
			}
			return out
		})

	v.userMedia = obs.MapWithEquality(scope, v.items, obs.SliceEq[*media.UserMedia],
		func(items []media.Item) []*media.UserMedia {
			return filterItems[*media.UserMedia](items)
		})
	v.screenShares = obs.MapWithEquality(scope, v.items, obs.SliceEq[*media.ScreenShare],
		func(items []media.Item) []*media.ScreenShare {
			return filterItems[*media.ScreenShare](items)
		})

	// count-increase edges pulse the notification events
	v.newScreenShare = obs.NewEvent[struct{}]()
	obs.Pairwise(scope, v.screenShares).Watch(scope, func(p obs.Pair[[]*media.ScreenShare]) {
		if len(p.Next) > len(p.Prev) {
			v.newScreenShare.Emit(struct{}{})
		}
	})
	v.newHandRaised = obs.NewEvent[struct{}]()
	raisedCount := obs.MapDistinct(scope, v.handsRaised, func(m map[string]time.Time) int { return len(m) })
	obs.Pairwise(scope, raisedCount).Watch(scope, func(p obs.Pair[int]) {
		if p.Next > p.Prev {
			v.newHandRaised.Emit(struct{}{})
		}
	})

	v.buildSpotlight(scope)
	v.buildGrid(scope)

	v.oneOnOne = obs.MapDistinct(scope, v.items, func(items []media.Item) bool {
		users := filterItems[*media.UserMedia](items)
		if len(users) != 2 || len(users) != len(items) {
			return false
		}
		return users[0].Media().Local() != users[1].Media().Local()
	})
}

func filterItems[T media.Item](items []media.Item) []T {
	var out []T
	for _, item := range items {
		if t, ok := item.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func (v *ViewModel) newUserMedia(scope *obs.Scope, id string, entry participantEntry) *media.UserMedia {
	params := v.mediaParams(scope, id, entry)
	var alwaysShow *obs.Behavior[bool]
	if entry.Local {
		alwaysShow = v.params.Settings.AlwaysShowSelf
	}
	return media.NewUserMedia(params, entry.Local, alwaysShow)
}

func (v *ViewModel) makeScreenShare(scope *obs.Scope, id string, entry participantEntry) *media.ScreenShare {
	return media.NewScreenShare(v.mediaParams(scope, id, entry), entry.Local)
}

func (v *ViewModel) mediaParams(scope *obs.Scope, id string, entry participantEntry) media.UserMediaParams {
	identity := entry.Identity
	userID := entry.Membership.UserID
	member := rtc.RoomMember{UserID: userID}
	if rm, ok := v.params.Client.Member(userID); ok {
		member = rm
	}

	displayName := obs.MapDistinct(scope, v.displayNames, func(names map[string]string) string {
		if n, ok := names[userID]; ok {
			return n
		}
		return userID
	})
	handRaised := obs.MapWithEquality(scope, v.handsRaised,
		func(a, b *time.Time) bool {
			if a == nil || b == nil {
				return a == b
			}
			return a.Equal(*b)
		},
		func(raised map[string]time.Time) *time.Time {
			if t, ok := raised[identity]; ok {
				t := t
				return &t
			}
			return nil
		})
	reaction := obs.MapWithEquality(scope, v.reactions,
		func(a, b *media.Reaction) bool {
			if a == nil || b == nil {
				return a == b
			}
			return *a == *b
		},
		func(reactions map[string]media.Reaction) *media.Reaction {
			if r, ok := reactions[identity]; ok {
				r := r
				return &r
			}
			return nil
		})

	return media.UserMediaParams{
		Scope:       scope,
		ID:          id,
		Member:      member,
		DisplayName: displayName,
		Participant: obs.NewBehavior(entry.Participant),
		Encryption:  v.params.Options.Encryption,
		HandRaised:  handRaised,
		Reaction:    reaction,
		Logger:      v.log,
	}
}

// buildSpotlight keeps a sticky current speaker: prefer the previous
// speaker while they still speak, then any speaking remote, then the
// previous speaker regardless, then any remote, then the local user.
// Stickiness stops the spotlight flapping during cross-talk.
func (v *ViewModel) buildSpotlight(scope *obs.Scope) {
	speaker := obs.SwitchMap(scope, v.userMedia,
		func(s *obs.Scope, items []*media.UserMedia) *obs.Behavior[*media.UserMedia] {
			if len(items) == 0 {
				return obs.Constant[*media.UserMedia](nil)
			}
			speaking := lo.Map(items, func(u *media.UserMedia, _ int) *obs.Behavior[bool] {
				return u.VM().Speaking()
			})
			return obs.CombineAll(s, speaking, func(flags []bool) *media.UserMedia {
				return v.pickSpeaker(items, flags)
			})
		})

	compute := func() []media.ViewModel {
		if shares := v.screenShares.Get(); len(shares) > 0 {
			return lo.Map(shares, func(s *media.ScreenShare, _ int) media.ViewModel { return s.Media() })
		}
		if sp := speaker.Get(); sp != nil {
			return []media.ViewModel{sp.Media()}
		}
		return nil
	}
	v.spotlight = obs.NewBehaviorWithEquality(compute(), viewModelsEq)
	v.screenShares.WatchChanges(scope, func([]*media.ScreenShare) { v.spotlight.Set(compute()) })
	speaker.WatchChanges(scope, func(*media.UserMedia) { v.spotlight.Set(compute()) })
}

func (v *ViewModel) pickSpeaker(items []*media.UserMedia, speaking []bool) *media.UserMedia {
	v.spotLock.Lock()
	defer v.spotLock.Unlock()

	prevIdx := -1
	for i, u := range items {
		if u == v.spotPrev {
			prevIdx = i
			break
		}
	}
	pick := func() *media.UserMedia {
		if prevIdx >= 0 && speaking[prevIdx] {
			return items[prevIdx]
		}
		for i, u := range items {
			if speaking[i] && !u.Media().Local() {
				return u
			}
		}
		if prevIdx >= 0 {
			return items[prevIdx]
		}
		for _, u := range items {
			if !u.Media().Local() {
				return u
			}
		}
		return items[0]
	}
	chosen := pick()
	v.spotPrev = chosen
	return chosen
}

func (v *ViewModel) buildGrid(scope *obs.Scope) {
	v.grid = obs.SwitchMap(scope, v.userMedia,
		func(s *obs.Scope, items []*media.UserMedia) *obs.Behavior[[]media.UserMediaViewModel] {
			if len(items) == 0 {
				return obs.Constant[[]media.UserMediaViewModel](nil)
			}
			bins := lo.Map(items, func(u *media.UserMedia, _ int) *obs.Behavior[media.SortingBin] {
				return u.Bin()
			})
			return obs.CombineAll(s, bins, func(values []media.SortingBin) []media.UserMediaViewModel {
				order := make([]int, len(items))
				for i := range order {
					order[i] = i
				}
				slices.SortStableFunc(order, func(a, b int) int {
					return int(values[a]) - int(values[b])
				})
				return lo.Map(order, func(i int, _ int) media.UserMediaViewModel { return items[i].VM() })
			})
		})
}

func viewModelsEq(a, b []media.ViewModel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
