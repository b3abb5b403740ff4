package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gearconnect-web",
		Short: "GearConnect landing site and backend proxy",
		Long: `gearconnect-web serves the GearConnect landing pages, the support
dashboard and the authenticated proxy to the GearConnect backend.

Example usage:
  gearconnect-web                       # same as serve
  gearconnect-web serve --env-file .env # start the server
  gearconnect-web check-env             # verify configuration and backend reachability`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the process environment")

	cmd.AddCommand(newServeCmd(opts), newCheckEnvCmd(opts))
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}
