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
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentd/agentd/transport/cryptoprim"
)

// keygen has no PKI or certificate authority to lean on (the spec's
// trust model is pre-provisioned static keys exchanged out of band),
// so this command is the only way operators mint a peer's identity.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a static X25519 keypair for pre-provisioned peer trust",
	Run: func(cmd *cobra.Command, args []string) {
		priv, pub, err := cryptoprim.GenerateKeypair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate keypair: %v\n", err)
			os.Exit(1)
		}

		if privFile != "" {
			if err := os.WriteFile(privFile, []byte(hex.EncodeToString(priv[:])+"\n"), 0o600); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write private key: %v\n", err)
				os.Exit(1)
			}
		}
		if pubFile != "" {
			if err := os.WriteFile(pubFile, []byte(hex.EncodeToString(pub[:])+"\n"), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write public key: %v\n", err)
				os.Exit(1)
			}
		}

		if privFile == "" {
			fmt.Printf("private: %s\n", hex.EncodeToString(priv[:]))
		}
		if pubFile == "" {
			fmt.Printf("public:  %s\n", hex.EncodeToString(pub[:]))
		}
	},
	Example: "# agentd keygen --private agentd.key --public agentd.pub",
}

var (
	privFile string
	pubFile  string
)

func init() {
	keygenCmd.Flags().StringVar(&privFile, "private", "", "Path to write the private key (hex-encoded); printed to stdout if omitted")
	keygenCmd.Flags().StringVar(&pubFile, "public", "", "Path to write the public key (hex-encoded); printed to stdout if omitted")
	rootCmd.AddCommand(keygenCmd)
}
