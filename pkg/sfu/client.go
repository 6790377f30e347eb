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

// Package sfu exchanges a protocol-level identity token for transport
// connection parameters at an SFU authentication service.
package sfu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/pkg/errors"

	"github.com/rtcview/callstate/pkg/rtc"
)

const (
	getEndpoint    = "/sfu/get"
	requestTimeout = 30 * time.Second
)

// Config is what the authentication service hands back: where to connect
// and the signed per-room credential to connect with.
type Config struct {
	URL string `json:"url"`
	JWT string `json:"jwt"`
}

type getRequest struct {
	Room        string      `json:"room"`
	OpenIDToken openIDToken `json:"openid_token"`
	DeviceID    string      `json:"device_id"`
}

type openIDToken struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	MatrixServerName string `json:"matrix_server_name"`
}

type Client struct {
	http   *http.Client
	logger logger.Logger
}

func NewClient(log logger.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: requestTimeout},
		logger: log,
	}
}

// NewClientWithHTTP allows injecting the HTTP client, for tests.
func NewClientWithHTTP(log logger.Logger, hc *http.Client) *Client {
	return &Client{
		http:   hc,
		logger: log,
	}
}

// GetConfig obtains connection parameters for the room alias at the
// service addressed by transport. A non-2xx response surfaces as a
// ConnectionStatusError so callers can classify capacity conditions.
func (c *Client) GetConfig(
	ctx context.Context,
	transport rtc.Transport,
	token rtc.OpenIDToken,
	deviceID string,
) (Config, error) {
	body, err := json.Marshal(getRequest{
		Room: transport.Alias,
		OpenIDToken: openIDToken{
			AccessToken:      token.AccessToken,
			TokenType:        token.TokenType,
			MatrixServerName: token.MatrixServerName,
		},
		DeviceID: deviceID,
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "could not encode SFU config request")
	}

	url := strings.TrimSuffix(transport.ServiceURL, "/") + getEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Config{}, errors.Wrap(err, "could not build SFU config request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debugw("fetching SFU config", "url", url, "room", transport.Alias)
	resp, err := c.http.Do(req)
	if err != nil {
		return Config{}, errors.Wrap(err, "SFU config request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Config{}, &rtc.ConnectionStatusError{
			Status: resp.StatusCode,
			Reason: strings.TrimSpace(string(reason)),
		}
	}

	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "could not decode SFU config response")
	}
	if cfg.URL == "" || cfg.JWT == "" {
		return Config{}, errors.New("SFU config response is incomplete")
	}
	return cfg, nil
}
