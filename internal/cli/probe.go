package cli

import (
	"github.com/spf13/cobra"

	"github.com/leaguepulse/leaguepulse/internal/app"
)

var probeSource string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every configured source once and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Probe(cmd.Context(), cmd.OutOrStdout(), app.ProbeOptions{Source: probeSource})
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeSource, "source", "", "Probe only this source (sleeper, espn, yahoo, database, cache)")
}
