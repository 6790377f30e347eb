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

// Package layout turns the call's media items into a render-ready layout
// while minimizing visual churn: tiles keep their object identity across
// layout transitions, and a changing spotlight swaps media inside one tile
// instead of replacing the tile.
package layout

import (
	"github.com/rtcview/callstate/pkg/media"
)

// WindowMode is the coarse shape of the window the call renders in.
type WindowMode string

const (
	WindowModeNormal WindowMode = "normal"
	WindowModeNarrow WindowMode = "narrow"
	WindowModeFlat   WindowMode = "flat"
	WindowModePip    WindowMode = "pip"
)

// WindowModeFor classifies window dimensions. Flat takes precedence over
// narrow.
func WindowModeFor(width, height int) WindowMode {
	switch {
	case height <= 400 && width <= 340:
		return WindowModePip
	case height <= 600:
		return WindowModeFlat
	case width <= 600:
		return WindowModeNarrow
	default:
		return WindowModeNormal
	}
}

type GridMode string

const (
	GridModeGrid      GridMode = "grid"
	GridModeSpotlight GridMode = "spotlight"
)

type Kind string

const (
	KindGrid               Kind = "grid"
	KindSpotlightLandscape Kind = "spotlight-landscape"
	KindSpotlightPortrait  Kind = "spotlight-portrait"
	KindSpotlightExpanded  Kind = "spotlight-expanded"
	KindOneOnOne           Kind = "one-on-one"
	KindPip                Kind = "pip"
)

// Media is the input to one layout computation, assembled by the view
// model from the current window mode, grid mode and media items.
type Media struct {
	Kind Kind

	// Grid tiles in presentation order, for the grid-like kinds.
	Grid []media.UserMediaViewModel
	// Spotlight contents, nil when nothing is spotlighted.
	Spotlight []media.ViewModel
	// Pip is the local tile to float over an expanded spotlight, nil when
	// hidden.
	Pip media.ViewModel

	// Local and Remote are set for KindOneOnOne.
	Local  media.ViewModel
	Remote media.ViewModel
}

// Layout is what the renderer consumes. Tile pointers are stable across
// recomputations as long as the underlying identity persists.
type Layout struct {
	Kind Kind

	Grid      []*Tile
	Spotlight *Tile
	Pip       *Tile
	Local     *Tile
	Remote    *Tile

	// SetVisibleTiles reports how many grid tiles actually fit on screen
	// back into the next layout cycle. Nil for kinds without a grid.
	SetVisibleTiles func(count int)
}

// Same reports whether two layouts are structurally identical: same kind
// and same tile object identities. Media changes inside a tile do not
// count.
func (l Layout) Same(other Layout) bool {
	if l.Kind != other.Kind ||
		l.Spotlight != other.Spotlight ||
		l.Pip != other.Pip ||
		l.Local != other.Local ||
		l.Remote != other.Remote ||
		len(l.Grid) != len(other.Grid) {
		return false
	}
	for i := range l.Grid {
		if l.Grid[i] != other.Grid[i] {
			return false
		}
	}
	return true
}
