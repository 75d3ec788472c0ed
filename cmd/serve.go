// Copyright 2025 The agentd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentd/agentd/confengine"
	"github.com/agentd/agentd/internal/sigs"
	"github.com/agentd/agentd/logger"
	"github.com/agentd/agentd/transport/endpoint"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agentd endpoint daemon",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		ep, err := endpoint.New(cfg, prometheus.DefaultRegisterer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create endpoint: %v\n", err)
			os.Exit(1)
		}
		ep.Start()

		var reloadTotal int
		for {
			select {
			case <-sigs.Terminate():
				ep.Stop()
				return

			case <-sigs.Reload():
				reloadTotal++

				cfg, err := confengine.LoadConfigPath(configPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to load config (count=%d): %v\n", reloadTotal, err)
					continue
				}

				start := time.Now()
				if err := ep.Reload(cfg); err != nil {
					logger.Errorf("failed to reload config: %v", err)
				}
				logger.Infof("reload (count=%d) take %s", reloadTotal, time.Since(start))
			}
		}
	},
	Example: "# agentd serve --config agentd.yaml",
}

var configPath string

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "agentd.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}
