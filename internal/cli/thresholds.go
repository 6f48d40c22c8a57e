package cli

import (
	"github.com/spf13/cobra"
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Print the threshold policy in force",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Thresholds(cmd.Context(), cmd.OutOrStdout())
	},
}
