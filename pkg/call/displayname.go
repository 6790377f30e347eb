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
	"fmt"
	"strings"

	"github.com/rtcview/callstate/pkg/rtc"
)

// normalizeDisplayName strips characters that make visually identical
// names compare unequal: zero-width characters and bidirectional control
// marks. Lookalike names must collide so both get disambiguated.
func normalizeDisplayName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x200B && r <= 0x200F: // zero-width space..RTL mark
			return -1
		case r >= 0x202A && r <= 0x202E: // embedding and override controls
			return -1
		case r >= 0x2066 && r <= 0x2069: // isolate controls
			return -1
		case r == 0xFEFF:
			return -1
		}
		return r
	}, name)
}

// disambiguateDisplayNames maps each member's user ID to a display name
// that is unique within the call: members sharing a normalized name get a
// "(user id)" suffix, unique names stay bare, and a missing name falls
// back to the raw user ID.
func disambiguateDisplayNames(members []rtc.RoomMember) map[string]string {
	byName := make(map[string]int, len(members))
	for _, m := range members {
		if m.DisplayName != "" {
			byName[normalizeDisplayName(m.DisplayName)]++
		}
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		switch {
		case m.DisplayName == "":
			names[m.UserID] = m.UserID
		case byName[normalizeDisplayName(m.DisplayName)] > 1:
			names[m.UserID] = fmt.Sprintf("%s (%s)", m.DisplayName, m.UserID)
		default:
			names[m.UserID] = m.DisplayName
		}
	}
	return names
}
