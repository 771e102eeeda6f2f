package cmd

import (
	"musinotes/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the MusiNotes HTTP server",
	Long:    `Start the MusiNotes REST API: accounts, songs and PDF/text exports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
