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

package layout

import (
	"github.com/rtcview/callstate/pkg/media"
)

// GridLike lays out the grid kinds (grid, spotlight-landscape,
// spotlight-portrait). visibleTiles is the renderer's last report of how
// many grid tiles fit on screen, 0 before the first report.
func GridLike(m Media, visibleTiles int, setVisibleTiles func(int), prev *TileStore) (Layout, *TileStore) {
	next := NewTileStore()

	var spotlight *Tile
	if len(m.Spotlight) > 0 {
		spotlight = next.adopt(prev, spotlightTileID, m.Spotlight)
	}

	// m.Grid is the caller's slice, so promotion works on a copy
	vms := append([]media.UserMediaViewModel(nil), m.Grid...)
	grid := make([]*Tile, 0, len(vms))
	for _, vm := range vms {
		grid = append(grid, next.adopt(prev, vm.ID(), []media.ViewModel{vm}))
	}
	promoteSpeakers(vms, grid, visibleTiles)

	return Layout{
		Kind:            m.Kind,
		Grid:            grid,
		Spotlight:       spotlight,
		SetVisibleTiles: setVisibleTiles,
	}, next
}

// promoteSpeakers swaps off-screen speaking tiles with on-screen silent
// ones so active speakers stay visible without reshuffling the whole grid.
func promoteSpeakers(vms []media.UserMediaViewModel, grid []*Tile, visibleTiles int) {
	if visibleTiles <= 0 || visibleTiles >= len(grid) {
		return
	}
	speaking := func(i int) bool { return vms[i].Speaking().Get() }
	for i := visibleTiles; i < len(grid); i++ {
		if !speaking(i) {
			continue
		}
		for j := visibleTiles - 1; j >= 0; j-- {
			if !speaking(j) {
				vms[i], vms[j] = vms[j], vms[i]
				grid[i], grid[j] = grid[j], grid[i]
				break
			}
		}
	}
}

// SpotlightExpanded fills the window with the spotlight, floating the
// local tile over it when requested.
func SpotlightExpanded(m Media, prev *TileStore) (Layout, *TileStore) {
	next := NewTileStore()
	layout := Layout{
		Kind:      KindSpotlightExpanded,
		Spotlight: next.adopt(prev, spotlightTileID, m.Spotlight),
	}
	if m.Pip != nil {
		layout.Pip = next.adopt(prev, m.Pip.ID(), []media.ViewModel{m.Pip})
	}
	return layout, next
}

// OneOnOne shows the remote party large with the local tile floating.
func OneOnOne(m Media, prev *TileStore) (Layout, *TileStore) {
	next := NewTileStore()
	return Layout{
		Kind:   KindOneOnOne,
		Local:  next.adopt(prev, m.Local.ID(), []media.ViewModel{m.Local}),
		Remote: next.adopt(prev, m.Remote.ID(), []media.ViewModel{m.Remote}),
	}, next
}

// Pip reduces the call to a single floating tile.
func Pip(m Media, prev *TileStore) (Layout, *TileStore) {
	next := NewTileStore()
	return Layout{
		Kind:      KindPip,
		Spotlight: next.adopt(prev, spotlightTileID, m.Spotlight),
	}, next
}

// Compute dispatches to the algorithm for the media's kind.
func Compute(m Media, visibleTiles int, setVisibleTiles func(int), prev *TileStore) (Layout, *TileStore) {
	switch m.Kind {
	case KindSpotlightExpanded:
		return SpotlightExpanded(m, prev)
	case KindOneOnOne:
		return OneOnOne(m, prev)
	case KindPip:
		return Pip(m, prev)
	default:
		return GridLike(m, visibleTiles, setVisibleTiles, prev)
	}
}
