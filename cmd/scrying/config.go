package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/runner"
)

// newConfigCmd config 子命令
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "查看或生成配置文件",
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "输出合并后的生效配置 (YAML，密码打码)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return &exitError{code: runner.ExitStartup, err: err}
			}
			return cfg.WriteYAML(cmd.OutOrStdout())
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "写出默认配置文件",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "scrying.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[*] Wrote default config to %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(dump, initCmd)
	return cmd
}
