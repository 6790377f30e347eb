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

package connection

// RemoteConnection subscribes to a room on a transport other than the one
// the local participant publishes to. It never publishes local media; the
// base lifecycle is all it needs.
type RemoteConnection struct {
	*Connection
}

func NewRemoteConnection(params Params) *RemoteConnection {
	return &RemoteConnection{Connection: NewConnection(params)}
}
