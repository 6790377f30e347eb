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
	"context"

	"github.com/livekit/protocol/logger"

	"github.com/rtcview/callstate/pkg/config"
	"github.com/rtcview/callstate/pkg/connection"
	"github.com/rtcview/callstate/pkg/rtc"
)

// resolvePreferredTransport decides which transport this device would
// publish to: a configured override wins outright, then the transports the
// homeserver advertises, then the configured fallback. Every candidate is
// given the room alias of this call. The chosen transport is preflighted
// with one SFU config fetch so the room exists before the membership is
// advertised.
func resolvePreferredTransport(
	ctx context.Context,
	client rtc.Client,
	configs connection.ConfigSource,
	conf *config.Config,
	alias string,
	log logger.Logger,
) (rtc.Transport, error) {
	transport, err := pickTransport(ctx, client, conf, alias, log)
	if err != nil {
		return rtc.Transport{}, err
	}
	token, err := client.GetOpenIDToken(ctx)
	if err != nil {
		return rtc.Transport{}, rtc.NewOpenIDTokenError(err)
	}
	if _, err := configs.GetConfig(ctx, transport, token, client.DeviceID()); err != nil {
		return rtc.Transport{}, connection.ClassifyConnectError(err)
	}
	return transport, nil
}

func pickTransport(
	ctx context.Context,
	client rtc.Client,
	conf *config.Config,
	alias string,
	log logger.Logger,
) (rtc.Transport, error) {
	if conf.TransportOverride != nil {
		return conf.TransportOverride.Transport(alias), nil
	}

	candidates, err := client.DiscoverTransports(ctx)
	if err != nil {
		log.Warnw("transport discovery failed", err)
	}
	for _, c := range candidates {
		if c.Valid() {
			c.Alias = alias
			return c, nil
		}
	}

	if conf.DefaultTransport != nil {
		return conf.DefaultTransport.Transport(alias), nil
	}
	return rtc.Transport{}, rtc.NewTransportMissingError(client.Domain())
}
