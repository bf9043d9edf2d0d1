package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/nacl/box"

	"github.com/gezibash/arc-ledger/pkg/identity"
	"github.com/gezibash/arc-ledger/pkg/identity/ed25519"
)

// KeygenOutput is printed by keygen. Key material is standard base64;
// SignKeyID is the "ed25519:<hex>" form accepted by verify.
type KeygenOutput struct {
	SignSeed      string `json:"sign_seed"`
	SignPublicKey string `json:"sign_public_key"`
	SignKeyID     string `json:"sign_key_id"`
	BoxPrivateKey string `json:"box_private_key"`
	BoxPublicKey  string `json:"box_public_key"`
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 signing key and an X25519 boxing key",
		Long: `Generate a fresh identity.

The signing public key is what /put/signkey expects; the seed is what
"arc-ledger sign" takes. Keep both private keys secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := ed25519.Generate()
			if err != nil {
				return fmt.Errorf("generate signing key: %w", err)
			}
			boxPub, boxPriv, err := box.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate boxing key: %w", err)
			}
			enc := base64.StdEncoding
			return writeJSON(cmd.OutOrStdout(), KeygenOutput{
				SignSeed:      enc.EncodeToString(kp.Seed()),
				SignPublicKey: enc.EncodeToString(kp.PublicKey().Bytes),
				SignKeyID:     identity.EncodePublicKey(kp.PublicKey()),
				BoxPrivateKey: enc.EncodeToString(boxPriv[:]),
				BoxPublicKey:  enc.EncodeToString(boxPub[:]),
			})
		},
	}
}
