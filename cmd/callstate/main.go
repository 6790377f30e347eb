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

package main

import (
	"fmt"
	"os"

	"github.com/livekit/protocol/logger"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/rtcview/callstate/pkg/config"
)

func main() {
	app := &cli.App{
		Name:  "callstate",
		Usage: "utilities for the callstate call engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file",
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "config in YAML, typically passed in as an environment var in a container",
				EnvVars: []string{"CALLSTATE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "check-config",
				Usage:  "load, validate and print the effective configuration",
				Action: checkConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	confString := c.String("config-body")
	if confString == "" {
		if path := c.String("config"); path != "" {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("could not read config: %w", err)
			}
			confString = string(content)
		}
	}
	conf, err := config.NewConfig(confString)
	if err != nil {
		return nil, err
	}
	return conf, conf.Validate()
}

func checkConfig(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.InitFromConfig(&conf.Logging.Config, "callstate")

	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
