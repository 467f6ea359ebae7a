package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kryptomesh/meshd/pkg/meshcrypto"
)

func newGenKeyCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a server RSA-4096 keypair at --key-path, or load the one already there",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("genkey: --key-path is required")
			}
			identity, err := meshcrypto.LoadOrGenerateServerKey(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server key at %s (fingerprint %s)\n", path, meshcrypto.KeyFingerprint(identity.PublicKey()))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "key-path", "", "output path for the generated PEM keypair")
	return cmd
}
