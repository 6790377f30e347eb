package layout

import (
	"fmt"
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"

	"github.com/rtcview/callstate/pkg/media"
	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
	"github.com/rtcview/callstate/pkg/rtc/rtctest"
)

func TestWindowModeFor(t *testing.T) {
	for _, tc := range []struct {
		w, h int
		mode WindowMode
	}{
		{w: 1280, h: 720, mode: WindowModeNormal},
		{w: 500, h: 800, mode: WindowModeNarrow},
		{w: 1280, h: 500, mode: WindowModeFlat},
		{w: 500, h: 500, mode: WindowModeFlat}, // flat beats narrow
		{w: 340, h: 400, mode: WindowModePip},
		{w: 341, h: 400, mode: WindowModeFlat},
	} {
		require.Equal(t, tc.mode, WindowModeFor(tc.w, tc.h), "%dx%d", tc.w, tc.h)
	}
}

func newTestVM(t *testing.T, scope *obs.Scope, identity string, speaking bool) media.UserMediaViewModel {
	t.Helper()
	p := rtctest.NewFakeParticipant(identity, false)
	p.SpeakingB.Set(speaking)
	u := media.NewUserMedia(media.UserMediaParams{
		Scope:       scope,
		ID:          identity + ":0",
		Member:      rtc.RoomMember{UserID: identity},
		DisplayName: obs.NewDistinctBehavior(identity),
		Participant: obs.NewBehavior[rtc.Participant](p),
		HandRaised:  obs.NewBehavior[*time.Time](nil),
		Reaction:    obs.NewBehavior[*media.Reaction](nil),
		Logger:      logger.GetLogger(),
	}, false, nil)
	return u.VM()
}

func TestGridLikeTileContinuity(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	a := newTestVM(t, scope, "@a:example.org:A", false)
	b := newTestVM(t, scope, "@b:example.org:B", false)

	first, store := GridLike(Media{
		Kind:      KindSpotlightLandscape,
		Grid:      []media.UserMediaViewModel{a, b},
		Spotlight: []media.ViewModel{a},
	}, 0, nil, nil)

	// spotlight moves from a to b: same tiles, new spotlight content
	second, _ := GridLike(Media{
		Kind:      KindSpotlightLandscape,
		Grid:      []media.UserMediaViewModel{a, b},
		Spotlight: []media.ViewModel{b},
	}, 0, nil, store)

	require.True(t, first.Same(second))
	require.Same(t, first.Spotlight, second.Spotlight)
	require.Equal(t, []media.ViewModel{b}, second.Spotlight.Media().Get())
}

func TestTileReuseAcrossKinds(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	a := newTestVM(t, scope, "@a:example.org:A", false)
	b := newTestVM(t, scope, "@b:example.org:B", false)

	grid, store := GridLike(Media{
		Kind: KindGrid,
		Grid: []media.UserMediaViewModel{a, b},
	}, 0, nil, nil)

	oneOnOne, store := OneOnOne(Media{
		Kind:   KindOneOnOne,
		Local:  a,
		Remote: b,
	}, store)
	require.Same(t, grid.Grid[0], oneOnOne.Local)
	require.Same(t, grid.Grid[1], oneOnOne.Remote)

	back, _ := GridLike(Media{
		Kind: KindGrid,
		Grid: []media.UserMediaViewModel{a, b},
	}, 0, nil, store)
	require.Same(t, grid.Grid[0], back.Grid[0])
}

func TestPromoteSpeakers(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	quiet1 := newTestVM(t, scope, "@q1:example.org:A", false)
	quiet2 := newTestVM(t, scope, "@q2:example.org:B", false)
	loud := newTestVM(t, scope, "@loud:example.org:C", true)

	l, _ := GridLike(Media{
		Kind: KindGrid,
		Grid: []media.UserMediaViewModel{quiet1, quiet2, loud},
	}, 2, nil, nil)

	ids := make([]string, len(l.Grid))
	for i, tile := range l.Grid {
		ids[i] = tile.ID()
	}
	require.Equal(t, []string{"@q1:example.org:A:0", "@loud:example.org:C:0", "@q2:example.org:B:0"}, ids,
		"the speaker displaces the last silent visible tile")
}

func TestGridLikeLeavesInputAlone(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	quiet1 := newTestVM(t, scope, "@q1:example.org:A", false)
	quiet2 := newTestVM(t, scope, "@q2:example.org:B", false)
	loud := newTestVM(t, scope, "@loud:example.org:C", true)

	in := []media.UserMediaViewModel{quiet1, quiet2, loud}
	GridLike(Media{Kind: KindGrid, Grid: in}, 2, nil, nil)

	require.Equal(t, []media.UserMediaViewModel{quiet1, quiet2, loud}, in,
		"promotion must not reorder the caller's slice")
}

func TestSpotlightExpanded(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	a := newTestVM(t, scope, "@a:example.org:A", false)
	local := newTestVM(t, scope, "@me:example.org:ME", false)

	l, store := SpotlightExpanded(Media{
		Kind:      KindSpotlightExpanded,
		Spotlight: []media.ViewModel{a},
		Pip:       local,
	}, nil)
	require.NotNil(t, l.Spotlight)
	require.NotNil(t, l.Pip)

	noPip, _ := SpotlightExpanded(Media{
		Kind:      KindSpotlightExpanded,
		Spotlight: []media.ViewModel{a},
	}, store)
	require.Same(t, l.Spotlight, noPip.Spotlight)
	require.Nil(t, noPip.Pip)
	require.False(t, l.Same(noPip))
}

func TestLayoutSame(t *testing.T) {
	tile := newTile("x", nil)
	other := newTile("y", nil)
	require.True(t, Layout{Kind: KindGrid, Grid: []*Tile{tile}}.Same(Layout{Kind: KindGrid, Grid: []*Tile{tile}}))
	require.False(t, Layout{Kind: KindGrid, Grid: []*Tile{tile}}.Same(Layout{Kind: KindGrid, Grid: []*Tile{other}}))
	require.False(t, Layout{Kind: KindGrid}.Same(Layout{Kind: KindPip}))
}

func TestManyTiles(t *testing.T) {
	scope := obs.NewScope()
	defer scope.End()

	var vms []media.UserMediaViewModel
	for i := 0; i < 12; i++ {
		vms = append(vms, newTestVM(t, scope, fmt.Sprintf("@u%d:example.org:D", i), false))
	}
	l, store := GridLike(Media{Kind: KindGrid, Grid: vms}, 0, nil, nil)
	require.Len(t, l.Grid, 12)

	// dropping half keeps the survivors' tiles
	l2, _ := GridLike(Media{Kind: KindGrid, Grid: vms[:6]}, 0, nil, store)
	for i := 0; i < 6; i++ {
		require.Same(t, l.Grid[i], l2.Grid[i])
	}
}
