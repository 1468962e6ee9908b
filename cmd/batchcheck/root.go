package main

import (
	"github.com/spf13/cobra"
)

// remoteFlags override the FTP_* environment for fetch and ls.
type remoteFlags struct {
	host     string
	user     string
	password string
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "batchcheck",
		Short: "Validate sensor reading batch files",
		Long: `batchcheck checks CSV batch files against the batch rules:
the exact header batch_id,timestamp,reading1..reading10, twelve fields per
row, unique batch IDs, and readings that are numbers no larger than 9.9
with at most three decimals.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var rf remoteFlags
	root.PersistentFlags().StringVar(&rf.host, "host", "", "FTP host[:port] (default $FTP_HOST)")
	root.PersistentFlags().StringVar(&rf.user, "user", "", "FTP user (default $FTP_USER)")
	root.PersistentFlags().StringVar(&rf.password, "password", "", "FTP password (default $FTP_PASSWORD)")

	root.AddCommand(newValidateCommand())
	root.AddCommand(newFetchCommand(&rf))
	root.AddCommand(newListCommand(&rf))
	return root
}
