package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/pkg/identity/ed25519"
)

// seedEnv supplies the signing seed when --seed is not given.
const seedEnv = "ARC_LEDGER_SEED"

func newSignCmd() *cobra.Command {
	var (
		username string
		seed     string
	)
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Append a member signature to a transaction",
		Long: `Sign a transaction's digest and append {username, signature} to its
signed_by list. The updated transaction is printed to stdout.

Examples:
  arc-ledger sign --username alice --seed <base64> tx.json
  ARC_LEDGER_SEED=<base64> arc-ledger sign -u bob < tx.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			if seed == "" {
				seed = os.Getenv(seedEnv)
			}
			if seed == "" {
				return fmt.Errorf("--seed or %s is required", seedEnv)
			}
			kp, err := ed25519.FromBase64Seed(seed)
			if err != nil {
				return fmt.Errorf("load seed: %w", err)
			}

			tx, err := readTransaction(cmd, args)
			if err != nil {
				return err
			}
			digest, err := ledger.ConcatDigest{}.Digest(tx.PrevState, tx.State, tx.Operation)
			if err != nil {
				return err
			}
			sig, err := kp.Sign(digest)
			if err != nil {
				return fmt.Errorf("sign: %w", err)
			}
			tx.SignedBy = append(tx.SignedBy, ledger.SignedBy{Username: username, Signature: sig.Bytes})
			return writeJSON(cmd.OutOrStdout(), tx)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "signing member's username")
	cmd.Flags().StringVar(&seed, "seed", "", "base64 Ed25519 seed (default $"+seedEnv+")")
	return cmd
}
