package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/ledger"
)

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest [file]",
		Short: "Print the base64 digest of a transaction",
		Long: `Print the bytes members sign for a transaction, as standard base64.

The transaction JSON is read from file, or from stdin when file is omitted
or "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := readTransaction(cmd, args)
			if err != nil {
				return err
			}
			digest, err := ledger.ConcatDigest{}.Digest(tx.PrevState, tx.State, tx.Operation)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(digest))
			return err
		},
	}
}

func readTransaction(cmd *cobra.Command, args []string) (ledger.Transaction, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return ledger.Transaction{}, err
		}
		defer f.Close()
		r = f
	}
	var tx ledger.Transaction
	if err := json.NewDecoder(r).Decode(&tx); err != nil {
		return ledger.Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
