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
	"github.com/rtcview/callstate/pkg/obs"
)

const spotlightTileID = "spotlight"

// Tile is one rendered surface. Its media list is a behavior so content
// can change, e.g. the spotlight speaker, without replacing the tile.
type Tile struct {
	id    string
	media *obs.Behavior[[]media.ViewModel]
}

func newTile(id string, vms []media.ViewModel) *Tile {
	return &Tile{
		id:    id,
		media: obs.NewBehaviorWithEquality(vms, viewModelsEq),
	}
}

func (t *Tile) ID() string { return t.id }

func (t *Tile) Media() *obs.Behavior[[]media.ViewModel] { return t.media }

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

// TileStore carries tiles from one layout computation to the next, so a
// tile representing the same identity stays the same object.
type TileStore struct {
	tiles map[string]*Tile
}

func NewTileStore() *TileStore {
	return &TileStore{tiles: make(map[string]*Tile)}
}

// adopt reuses prev's tile for id if one exists, updating its media, and
// records it in this store.
func (s *TileStore) adopt(prev *TileStore, id string, vms []media.ViewModel) *Tile {
	if prev != nil {
		if t, ok := prev.tiles[id]; ok {
			t.media.Set(vms)
			s.tiles[id] = t
			return t
		}
	}
	t := newTile(id, vms)
	s.tiles[id] = t
	return t
}
