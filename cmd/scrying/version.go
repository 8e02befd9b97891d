package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nccgroup/scrying/internal/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scrying %s\n", version.GetFullVersion())
		if version.BuildTime != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Build Time: %s\n", version.BuildTime)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Go Version: %s\n", version.GoVersion)
	},
}
