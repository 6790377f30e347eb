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

// Package connection manages the lifecycle of transport-level connections
// to SFU-backed rooms: credential exchange, connecting, publishing, and
// the per-connection view of who is expected to be publishing.
package connection

import (
	"context"
	"net/http"

	"github.com/livekit/protocol/logger"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/rtcview/callstate/pkg/obs"
	"github.com/rtcview/callstate/pkg/rtc"
	"github.com/rtcview/callstate/pkg/sfu"
)

type State int

const (
	StateInitialized State = iota
	StateFetchingConfig
	StateConnectingToLkRoom
	StateConnectedToLkRoom
	StateFailedToStart
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateFetchingConfig:
		return "fetching_config"
	case StateConnectingToLkRoom:
		return "connecting_to_lk_room"
	case StateConnectedToLkRoom:
		return "connected_to_lk_room"
	case StateFailedToStart:
		return "failed_to_start"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Status is the externally visible state of one connection. Err is set
// only in StateFailedToStart.
type Status struct {
	State     State
	Transport rtc.Transport
	Err       error
}

// TokenSource obtains short-lived identity tokens from the protocol layer.
type TokenSource interface {
	GetOpenIDToken(ctx context.Context) (rtc.OpenIDToken, error)
}

// ConfigSource exchanges an identity token for SFU connection parameters.
type ConfigSource interface {
	GetConfig(ctx context.Context, transport rtc.Transport, token rtc.OpenIDToken, deviceID string) (sfu.Config, error)
}

// Conn is the common surface of publish and remote connections.
type Conn interface {
	Key() string
	Transport() rtc.Transport
	Room() rtc.MediaRoom
	Publisher() bool

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Status() *obs.Behavior[Status]
	PublishingParticipants() *obs.Behavior[[]rtc.PublishingParticipant]
}

type Params struct {
	Transport        rtc.Transport
	Scope            *obs.Scope
	Tokens           TokenSource
	Configs          ConfigSource
	DeviceID         string
	Room             rtc.MediaRoom
	RemoteTransports *obs.Behavior[[]rtc.MemberTransport]
	Logger           logger.Logger
}

// Connection drives one transport from credential fetch to a connected
// room. Ending the owning scope stops it; stop during an in-flight start
// is honored at the next suspension point.
type Connection struct {
	params Params

	status     *obs.Behavior[Status]
	publishing *obs.Behavior[[]rtc.PublishingParticipant]
	stopped    atomic.Bool
}

func NewConnection(params Params) *Connection {
	c := &Connection{
		params: params,
		status: obs.NewBehavior(Status{State: StateInitialized, Transport: params.Transport}),
	}
	c.publishing = obs.Combine2(params.Scope,
		params.Room.RemoteParticipants(), params.RemoteTransports, c.pair)
	params.Scope.OnEnd(func() {
		if err := c.Stop(context.Background()); err != nil {
			params.Logger.Warnw("could not stop connection", err, "transport", params.Transport.Key())
		}
	})
	return c
}

// pair lists every membership declaring this connection's service as its
// transport, attached to its live participant when one is connected.
// Membership is the source of truth for presence; connectivity only
// decides whether the pairing has a live participant.
func (c *Connection) pair(participants []rtc.Participant, members []rtc.MemberTransport) []rtc.PublishingParticipant {
	byIdentity := make(map[string]rtc.Participant, len(participants))
	for _, p := range participants {
		byIdentity[p.Identity()] = p
	}
	var out []rtc.PublishingParticipant
	for _, mt := range members {
		if mt.Transport.ServiceURL != c.params.Transport.ServiceURL {
			continue
		}
		out = append(out, rtc.PublishingParticipant{
			Membership:  mt.Membership,
			Participant: byIdentity[mt.Membership.ID().String()],
		})
	}
	return out
}

func (c *Connection) Key() string                  { return c.params.Transport.Key() }
func (c *Connection) Transport() rtc.Transport     { return c.params.Transport }
func (c *Connection) Room() rtc.MediaRoom          { return c.params.Room }
func (c *Connection) Publisher() bool              { return false }
func (c *Connection) Status() *obs.Behavior[Status] { return c.status }

func (c *Connection) PublishingParticipants() *obs.Behavior[[]rtc.PublishingParticipant] {
	return c.publishing
}

func (c *Connection) Start(ctx context.Context) error {
	t := c.params.Transport
	c.status.Set(Status{State: StateFetchingConfig, Transport: t})

	token, err := c.params.Tokens.GetOpenIDToken(ctx)
	if err != nil {
		return c.fail(rtc.NewOpenIDTokenError(err))
	}
	if c.stopped.Load() {
		return nil
	}

	cfg, err := c.params.Configs.GetConfig(ctx, t, token, c.params.DeviceID)
	if err != nil {
		return c.fail(ClassifyConnectError(err))
	}
	if c.stopped.Load() {
		return nil
	}

	c.status.Set(Status{State: StateConnectingToLkRoom, Transport: t})
	if err := c.params.Room.Connect(ctx, cfg.URL, cfg.JWT); err != nil {
		return c.fail(ClassifyConnectError(err))
	}
	if c.stopped.Load() {
		return nil
	}

	c.params.Logger.Infow("connected to SFU room", "transport", t.Key())
	c.status.Set(Status{State: StateConnectedToLkRoom, Transport: t})
	return nil
}

func (c *Connection) fail(err error) error {
	if !c.stopped.Load() {
		c.status.Set(Status{State: StateFailedToStart, Transport: c.params.Transport, Err: err})
	}
	return err
}

// Stop disconnects the room. Idempotent; an in-flight Start observes the
// stop at its next check and goes no further.
func (c *Connection) Stop(ctx context.Context) error {
	if c.stopped.Swap(true) {
		return nil
	}
	err := c.params.Room.Disconnect(ctx)
	c.status.Set(Status{State: StateStopped, Transport: c.params.Transport})
	return err
}

func (c *Connection) Stopped() bool {
	return c.stopped.Load()
}

// ClassifyConnectError maps status-carrying transport failures to their
// call error equivalents. Errors without a status pass through unchanged.
func ClassifyConnectError(err error) error {
	var statusErr *rtc.ConnectionStatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.Status {
	case http.StatusServiceUnavailable, http.StatusOK, http.StatusTooManyRequests:
		// the SFU signals missing capacity in several ways depending on
		// which layer rejected the room
		return rtc.NewInsufficientCapacityError(err)
	case http.StatusNotFound:
		return rtc.NewSFURoomCreationRestrictedError(err)
	default:
		return err
	}
}
