/*
 * @date: 2026.10.16
 * @description: Cobra Root Command 定义
 */

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/runner"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

var (
	cfgFile   string
	envFile   string
	verbosity int
	silent    bool
	logFile   string
)

// exitError 携带退出码的错误
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrying",
	Short: "RDP / VNC / Web 批量截图工具",
	Long: `scrying 对 RDP、VNC 与 Web 目标批量截图，输出 PNG 与 HTML 报告。
目标可以来自命令行、目标文件、nmap XML 或 nessus 报告。

示例:
  scrying capture -t 192.168.1.10:3389 -t http://intranet.local/
  scrying capture -f targets.txt --nmap scan.xml -o out --web-workers 4
  scrying capture --nessus report.nessus --test-import`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	// 全局 Panic Recovery
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] scrying crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				pterm.Error.Println(exit.err)
			}
			os.Exit(exit.code)
		}
		pterm.Error.Println(err)
		os.Exit(runner.ExitStartup)
	}
}

func init() {
	// 全局 Flag
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/scrying.yaml 或 ./scrying.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", ".env 文件路径，不存在时忽略")
	flags.CountVarP(&verbosity, "verbose", "v", "输出更多日志 (-v debug, -vv trace)")
	flags.BoolVar(&silent, "silent", false, "终端只输出警告与错误，日志文件不受影响")
	flags.StringVar(&logFile, "log-file", "", "同时写入的日志文件 (按大小轮转)")

	// 注册子命令
	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 依次加载 .env、配置文件、环境变量与命令行参数
// bindings 为 配置键 -> 参数名，只有显式设置的参数覆盖其他来源
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	if err := config.NewEnvLoader(envFile).Load(); err != nil {
		return nil, err
	}

	loader := config.NewConfigLoader(cfgFile, config.DefaultEnvPrefix)
	for key, name := range bindings {
		if err := loader.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	cfg, err := loader.LoadConfig()
	if err != nil {
		return nil, err
	}

	applyVerbosity(cfg.Log)
	if _, err := logger.InitLogger(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	if path := loader.GetConfigPath(); path != "" {
		logger.Debugf("[Config] Using config file %s", path)
	}
	return cfg, nil
}

// applyVerbosity 把 -v/--silent/--log-file 折算进日志配置
func applyVerbosity(cfg *config.LogConfig) {
	switch {
	case verbosity >= 2:
		cfg.Level = "trace"
	case verbosity == 1:
		cfg.Level = "debug"
	}
	if logFile != "" {
		cfg.FilePath = logFile
	}
	if silent {
		// 日志文件保留原本的详细级别
		if cfg.FileLevel == "" {
			cfg.FileLevel = cfg.Level
		}
		cfg.Level = "warn"
	}
	initCLIPrinter(cfg.Level)
}

// initCLIPrinter pterm 输出跟随终端日志级别
func initCLIPrinter(level string) {
	switch level {
	case "trace", "debug":
		pterm.EnableDebugMessages()
	case "warn", "error", "fatal":
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	default:
		pterm.DisableDebugMessages()
	}
}
