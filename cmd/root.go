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

// Package cmd wires agentd's Cobra commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentd/agentd/common"
)

// version, gitHash and buildTime are overridden at build time via
// -ldflags. They are separate from the variables common.GetBuildInfo()
// reports.
var (
	version   = common.Version
	gitHash   string
	buildTime string
)

var rootCmd = &cobra.Command{
	Use:   common.App,
	Short: "agentd runs a secure, connection-oriented datagram transport for agent-to-agent messaging",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
