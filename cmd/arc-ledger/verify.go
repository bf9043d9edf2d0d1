package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/pkg/identity"
)

// VerifyOutput reports the outcome of an offline signature check.
type VerifyOutput struct {
	Digest  string         `json:"digest"`
	Signers []SignerResult `json:"signers"`
	Valid   int            `json:"valid"`
}

// SignerResult is the check result for one signed_by entry.
type SignerResult struct {
	Username string `json:"username"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	var keyFlags []string
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check a transaction's signatures against known keys",
		Long: `Verify every signed_by entry of a transaction without contacting a
server. Keys are given as username=KEY where KEY is standard base64 or
"ed25519:<hex>". Exits non-zero when any signature does not verify.

Examples:
  arc-ledger verify --key alice=<base64> --key bob=ed25519:<hex> tx.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeyFlags(keyFlags)
			if err != nil {
				return err
			}
			tx, err := readTransaction(cmd, args)
			if err != nil {
				return err
			}
			digest, err := ledger.ConcatDigest{}.Digest(tx.PrevState, tx.State, tx.Operation)
			if err != nil {
				return err
			}

			out := VerifyOutput{
				Digest:  base64.StdEncoding.EncodeToString(digest),
				Signers: make([]SignerResult, 0, len(tx.SignedBy)),
			}
			for _, s := range tx.SignedBy {
				res := SignerResult{Username: s.Username}
				pk := keys[s.Username]
				switch {
				case pk.IsZero():
					res.Reason = "no key given"
				case !identity.Verify(pk, digest, identity.Signature{Algo: pk.Algo, Bytes: s.Signature}):
					res.Reason = "bad signature"
				default:
					res.Valid = true
					out.Valid++
				}
				out.Signers = append(out.Signers, res)
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Valid != len(tx.SignedBy) {
				return fmt.Errorf("%d of %d signatures did not verify", len(tx.SignedBy)-out.Valid, len(tx.SignedBy))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&keyFlags, "key", nil, "username=KEY, repeatable")
	return cmd
}

func parseKeyFlags(flags []string) (map[string]identity.PublicKey, error) {
	keys := make(map[string]identity.PublicKey, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--key %q: want username=KEY", f)
		}
		pk, err := parsePublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("--key %s: %w", name, err)
		}
		keys[name] = pk
	}
	return keys, nil
}

func parsePublicKey(s string) (identity.PublicKey, error) {
	if strings.Contains(s, ":") {
		return identity.DecodePublicKey(s)
	}
	return identity.DecodeBase64PublicKey(s)
}
