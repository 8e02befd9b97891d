package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "SCRYING"

// ConfigLoader 配置加载器
// 优先级: 命令行参数 > 环境变量 > 配置文件 > 默认值
type ConfigLoader struct {
	configFile string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
// configFile 为空时在 ./configs 与 . 下查找 scrying.yaml，找不到不视为错误
func NewConfigLoader(configFile, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	return &ConfigLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// BindFlag 将命令行参数绑定到配置键
// 只有用户显式设置的参数会覆盖其他来源
func (cl *ConfigLoader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %s is nil", key)
	}
	return cl.viper.BindPFlag(key, flag)
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	cl.viper.SetConfigType("yaml")

	// 1. 环境变量 SCRYING_CAPTURE_TIMEOUT -> capture.timeout
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cl.viper.AutomaticEnv()

	// 2. 默认值 (同时让 AutomaticEnv 能识别全部键)
	cl.setDefaults()

	// 3. 配置文件
	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// 4. 解析与验证
	cfg := DefaultConfig()
	if err := cl.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadConfigFile 加载配置文件
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configFile == "" {
		cl.configFile = os.Getenv(cl.envPrefix + "_CONFIG")
	}

	if cl.configFile != "" {
		// 显式指定的文件必须存在
		cl.viper.SetConfigFile(cl.configFile)
		return cl.viper.ReadInConfig()
	}

	cl.viper.SetConfigName("scrying")
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")
	if err := cl.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	def := DefaultConfig()

	// 日志默认值
	cl.viper.SetDefault("log.level", def.Log.Level)
	cl.viper.SetDefault("log.format", def.Log.Format)
	cl.viper.SetDefault("log.output", def.Log.Output)
	cl.viper.SetDefault("log.file_path", "")
	cl.viper.SetDefault("log.file_level", "")
	cl.viper.SetDefault("log.max_size", def.Log.MaxSize)
	cl.viper.SetDefault("log.max_backups", def.Log.MaxBackups)
	cl.viper.SetDefault("log.max_age", def.Log.MaxAge)
	cl.viper.SetDefault("log.compress", false)
	cl.viper.SetDefault("log.caller", false)

	// 截图默认值
	cl.viper.SetDefault("capture.mode", def.Capture.Mode)
	cl.viper.SetDefault("capture.output_dir", def.Capture.OutputDir)
	cl.viper.SetDefault("capture.width", 0)
	cl.viper.SetDefault("capture.height", 0)
	cl.viper.SetDefault("capture.rdp_quiet", def.Capture.RDPQuiet)
	cl.viper.SetDefault("capture.rdp_negotiation", def.Capture.RDPNegotiation)
	cl.viper.SetDefault("capture.timeout", def.Capture.Timeout)
	cl.viper.SetDefault("capture.web_paths", []string{})
	cl.viper.SetDefault("capture.vnc_password", "")
	cl.viper.SetDefault("capture.rdp_user", "")
	cl.viper.SetDefault("capture.rdp_password", "")
	cl.viper.SetDefault("capture.rdp_domain", "")
	cl.viper.SetDefault("capture.browser_bin", "")
	cl.viper.SetDefault("capture.no_report", false)

	// 代理默认值
	cl.viper.SetDefault("proxy.default", "")
	cl.viper.SetDefault("proxy.rdp", "")
	cl.viper.SetDefault("proxy.vnc", "")
	cl.viper.SetDefault("proxy.web", "")

	// 工作池默认值
	cl.viper.SetDefault("workers.rdp", def.Workers.RDP)
	cl.viper.SetDefault("workers.vnc", def.Workers.VNC)
	cl.viper.SetDefault("workers.web", def.Workers.Web)
	cl.viper.SetDefault("workers.rate", 0.0)
}

// GetConfigPath 实际使用的配置文件，未使用时为空
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}
