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
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
)

// participant mirrors one sdk remote participant into behaviors. The
// adapter outlives individual sdk callbacks; update folds the sdk's current
// publication state in.
type participant struct {
	room     *Room
	identity string

	speaking *obs.Behavior[bool]
	audio    *obs.Behavior[bool]
	video    *obs.Behavior[bool]
	sharing  *obs.Behavior[bool]

	lock   sync.Mutex
	tracks map[rtc.TrackSource]*obs.Behavior[*rtc.TrackRef]
	sdk    *lksdk.RemoteParticipant
	volume atomic.Float64
}

func newParticipant(room *Room, identity string) *participant {
	p := &participant{
		room:     room,
		identity: identity,
		speaking: obs.NewDistinctBehavior(false),
		audio:    obs.NewDistinctBehavior(false),
		video:    obs.NewDistinctBehavior(false),
		sharing:  obs.NewDistinctBehavior(false),
		tracks:   make(map[rtc.TrackSource]*obs.Behavior[*rtc.TrackRef]),
	}
	p.volume.Store(1)
	return p
}

func (p *participant) Identity() string { return p.identity }
func (p *participant) IsLocal() bool    { return false }

func (p *participant) Speaking() *obs.Behavior[bool]           { return p.speaking }
func (p *participant) AudioEnabled() *obs.Behavior[bool]       { return p.audio }
func (p *participant) VideoEnabled() *obs.Behavior[bool]       { return p.video }
func (p *participant) ScreenShareEnabled() *obs.Behavior[bool] { return p.sharing }

func (p *participant) Video(source rtc.TrackSource) *obs.Behavior[*rtc.TrackRef] {
	return p.trackBehavior(source)
}

func (p *participant) SetVolume(volume float64) {
	p.volume.Store(volume)
}

func (p *participant) trackBehavior(source rtc.TrackSource) *obs.Behavior[*rtc.TrackRef] {
	p.lock.Lock()
	defer p.lock.Unlock()
	b, ok := p.tracks[source]
	if !ok {
		b = obs.NewBehavior[*rtc.TrackRef](nil)
		p.tracks[source] = b
	}
	return b
}

// update folds the sdk participant's publications into the behaviors.
func (p *participant) update(rp *lksdk.RemoteParticipant) {
	p.lock.Lock()
	p.sdk = rp
	p.lock.Unlock()

	var audio, video, sharing bool
	refs := make(map[rtc.TrackSource]*rtc.TrackRef)
	for _, pub := range rp.TrackPublications() {
		source := sourceFromProto(pub.Source())
		live := !pub.IsMuted()
		switch source {
		case rtc.TrackSourceMicrophone:
			audio = live
		case rtc.TrackSourceCamera:
			video = live
		case rtc.TrackSourceScreenShare:
			sharing = true
		}
		if pub.Kind() == lksdk.TrackKindVideo {
			refs[source] = &rtc.TrackRef{
				Participant: p,
				Source:      source,
				Muted:       pub.IsMuted(),
				Encrypted:   p.room.e2ee(),
			}
		}
	}
	p.audio.Set(audio)
	p.video.Set(video)
	p.sharing.Set(sharing)

	p.lock.Lock()
	behaviors := make(map[rtc.TrackSource]*obs.Behavior[*rtc.TrackRef], len(p.tracks))
	for source, b := range p.tracks {
		behaviors[source] = b
	}
	p.lock.Unlock()
	for source, b := range behaviors {
		b.Set(refs[source])
	}
}

// localParticipant publishes sample-backed tracks through the sdk and
// mirrors their state. Frame production is the embedder's concern; the
// concrete track type exposes the underlying sample track for it.
type localParticipant struct {
	room *Room

	speaking *obs.Behavior[bool]
	audio    *obs.Behavior[bool]
	video    *obs.Behavior[bool]
	sharing  *obs.Behavior[bool]

	lock   sync.Mutex
	tracks []*localTrack
	refs   map[rtc.TrackSource]*obs.Behavior[*rtc.TrackRef]
}

func newLocalParticipant(room *Room) *localParticipant {
	return &localParticipant{
		room:     room,
		speaking: obs.NewDistinctBehavior(false),
		audio:    obs.NewDistinctBehavior(false),
		video:    obs.NewDistinctBehavior(false),
		sharing:  obs.NewDistinctBehavior(false),
		refs:     make(map[rtc.TrackSource]*obs.Behavior[*rtc.TrackRef]),
	}
}

func (l *localParticipant) Identity() string {
	return l.room.room.LocalParticipant.Identity()
}

func (l *localParticipant) IsLocal() bool { return true }

func (l *localParticipant) Speaking() *obs.Behavior[bool]           { return l.speaking }
func (l *localParticipant) AudioEnabled() *obs.Behavior[bool]       { return l.audio }
func (l *localParticipant) VideoEnabled() *obs.Behavior[bool]       { return l.video }
func (l *localParticipant) ScreenShareEnabled() *obs.Behavior[bool] { return l.sharing }

func (l *localParticipant) Video(source rtc.TrackSource) *obs.Behavior[*rtc.TrackRef] {
	l.lock.Lock()
	defer l.lock.Unlock()
	b, ok := l.refs[source]
	if !ok {
		b = obs.NewBehavior[*rtc.TrackRef](nil)
		l.refs[source] = b
	}
	return b
}

func (l *localParticipant) SetVolume(volume float64) {}

func (l *localParticipant) CreateTracks(ctx context.Context, audio, video bool) ([]rtc.LocalTrack, error) {
	var created []rtc.LocalTrack
	if audio {
		t, err := l.newTrack(rtc.TrackKindAudio, rtc.TrackSourceMicrophone)
		if err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	if video {
		t, err := l.newTrack(rtc.TrackKindVideo, rtc.TrackSourceCamera)
		if err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	return created, nil
}

func (l *localParticipant) newTrack(kind rtc.TrackKind, source rtc.TrackSource) (*localTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == rtc.TrackKindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	sample, err := lksdk.NewLocalSampleTrack(capability)
	if err != nil {
		return nil, errors.Wrap(err, "could not create sample track")
	}
	t := &localTrack{owner: l, kind: kind, source: source, sample: sample}
	t.live.Store(true)
	l.lock.Lock()
	l.tracks = append(l.tracks, t)
	l.lock.Unlock()
	return t, nil
}

func (l *localParticipant) PublishTrack(ctx context.Context, track rtc.LocalTrack) error {
	t, ok := track.(*localTrack)
	if !ok {
		return errors.New("track was not created by this participant")
	}
	pub, err := l.room.room.LocalParticipant.PublishTrack(t.sample, &lksdk.TrackPublicationOptions{
		Name:   t.source.String(),
		Source: sourceToProto(t.source),
	})
	if err != nil {
		return err
	}
	t.lock.Lock()
	t.pub = pub
	t.lock.Unlock()
	l.trackStateChanged(t)
	return nil
}

func (l *localParticipant) SetMicrophoneEnabled(ctx context.Context, enabled bool) (bool, error) {
	return l.setSourceEnabled(rtc.TrackSourceMicrophone, enabled, l.audio)
}

func (l *localParticipant) SetCameraEnabled(ctx context.Context, enabled bool) (bool, error) {
	return l.setSourceEnabled(rtc.TrackSourceCamera, enabled, l.video)
}

func (l *localParticipant) setSourceEnabled(source rtc.TrackSource, enabled bool, b *obs.Behavior[bool]) (bool, error) {
	t := l.trackFor(source)
	if t == nil {
		if enabled {
			return false, errors.Errorf("no %s track to enable", source.String())
		}
		b.Set(false)
		return false, nil
	}
	t.setMuted(!enabled)
	b.Set(enabled)
	l.trackStateChanged(t)
	return enabled, nil
}

func (l *localParticipant) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		t := l.trackFor(rtc.TrackSourceScreenShare)
		if t == nil {
			return nil
		}
		if err := l.unpublish(t); err != nil {
			return err
		}
		l.removeTrack(t)
		l.sharing.Set(false)
		return nil
	}
	if l.trackFor(rtc.TrackSourceScreenShare) != nil {
		l.sharing.Set(true)
		return nil
	}
	t, err := l.newTrack(rtc.TrackKindVideo, rtc.TrackSourceScreenShare)
	if err != nil {
		return err
	}
	if err := l.PublishTrack(ctx, t); err != nil {
		l.removeTrack(t)
		return err
	}
	l.sharing.Set(true)
	return nil
}

func (l *localParticipant) unpublish(t *localTrack) error {
	t.lock.Lock()
	pub := t.pub
	t.pub = nil
	t.lock.Unlock()
	if pub == nil {
		return nil
	}
	return l.room.room.LocalParticipant.UnpublishTrack(pub.SID())
}

func (l *localParticipant) removeTrack(t *localTrack) {
	l.lock.Lock()
	for i, existing := range l.tracks {
		if existing == t {
			l.tracks = append(l.tracks[:i], l.tracks[i+1:]...)
			break
		}
	}
	l.lock.Unlock()
}

func (l *localParticipant) trackFor(source rtc.TrackSource) *localTrack {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, t := range l.tracks {
		if t.source == source {
			return t
		}
	}
	return nil
}

func (l *localParticipant) MicrophoneTrack() (rtc.LocalTrack, bool) {
	t := l.trackFor(rtc.TrackSourceMicrophone)
	if t == nil {
		return nil, false
	}
	return t, true
}

func (l *localParticipant) Tracks() []rtc.LocalTrack {
	l.lock.Lock()
	defer l.lock.Unlock()
	out := make([]rtc.LocalTrack, len(l.tracks))
	for i, t := range l.tracks {
		out[i] = t
	}
	return out
}

func (l *localParticipant) trackStateChanged(t *localTrack) {
	if t.kind != rtc.TrackKindVideo {
		return
	}
	var ref *rtc.TrackRef
	if t.Live() && !t.muted.Load() {
		ref = &rtc.TrackRef{
			Participant: l,
			Source:      t.source,
			Encrypted:   l.room.e2ee(),
		}
	}
	l.Video(t.source).Set(ref)
}
