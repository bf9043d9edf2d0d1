package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "arc-ledger",
		Short: "Arc ledger - quorum-signed group state sequencer",
		Long: `Arc ledger server and client helpers.

Server:
  arc-ledger start       Run the sequencer HTTP server

Client:
  arc-ledger keygen      Generate signing and boxing keys
  arc-ledger digest      Print the digest members sign for a transaction
  arc-ledger sign        Add a member signature to a transaction
  arc-ledger verify      Check a transaction's signatures offline`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newStartCmd(v),
		newKeygenCmd(),
		newDigestCmd(),
		newSignCmd(),
		newVerifyCmd(),
		newVersionCmd(),
	)
	return rootCmd
}
