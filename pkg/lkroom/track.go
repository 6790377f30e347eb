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

package lkroom

import (
	"context"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/atomic"

	"github.com/rtcview/callstate/pkg/rtc"
)

// localTrack is a sample-backed local track. Mute controls the published
// state; pausing the upstream silences the publication without changing
// the mute intent, so resuming restores whatever the intent was.
type localTrack struct {
	owner  *localParticipant
	kind   rtc.TrackKind
	source rtc.TrackSource

	live       atomic.Bool
	restarting atomic.Bool
	paused     atomic.Bool
	muted      atomic.Bool
	processor  atomic.String

	lock   sync.Mutex
	sample *lksdk.LocalSampleTrack
	pub    *lksdk.LocalTrackPublication
}

func (t *localTrack) Kind() rtc.TrackKind     { return t.kind }
func (t *localTrack) Source() rtc.TrackSource { return t.source }

func (t *localTrack) Live() bool       { return t.live.Load() }
func (t *localTrack) Restarting() bool { return t.restarting.Load() }

// SampleTrack exposes the underlying sdk track so the embedder can feed
// frames into it.
func (t *localTrack) SampleTrack() *lksdk.LocalSampleTrack {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.sample
}

// Restart replaces the underlying sample track, republishing when the old
// one was published.
func (t *localTrack) Restart(ctx context.Context) error {
	if !t.restarting.CompareAndSwap(false, true) {
		return nil
	}
	defer t.restarting.Store(false)

	capability := t.sample.Codec()
	fresh, err := lksdk.NewLocalSampleTrack(capability)
	if err != nil {
		return err
	}

	t.lock.Lock()
	pub := t.pub
	t.sample = fresh
	t.lock.Unlock()

	if pub != nil {
		if err := t.owner.room.room.LocalParticipant.UnpublishTrack(pub.SID()); err != nil {
			return err
		}
		return t.owner.PublishTrack(ctx, t)
	}
	t.live.Store(true)
	return nil
}

func (t *localTrack) UpstreamPaused() bool { return t.paused.Load() }

func (t *localTrack) PauseUpstream(ctx context.Context) error {
	if t.paused.Swap(true) {
		return nil
	}
	t.applyPublishedMute()
	return nil
}

func (t *localTrack) ResumeUpstream(ctx context.Context) error {
	if !t.paused.Swap(false) {
		return nil
	}
	t.applyPublishedMute()
	return nil
}

func (t *localTrack) SetProcessor(ctx context.Context, name string) error {
	t.processor.Store(name)
	return nil
}

func (t *localTrack) Processor() string { return t.processor.Load() }

func (t *localTrack) setMuted(muted bool) {
	t.muted.Store(muted)
	t.applyPublishedMute()
}

func (t *localTrack) applyPublishedMute() {
	t.lock.Lock()
	pub := t.pub
	t.lock.Unlock()
	if pub != nil {
		pub.SetMuted(t.muted.Load() || t.paused.Load())
	}
}
