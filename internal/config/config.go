/**
 * 配置管理
 * @date: 2026.10.16
 * @description: 截图工具配置，包括日志、截图参数、代理、并发池大小
 */
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// 截图配置
	Capture *CaptureConfig `yaml:"capture" mapstructure:"capture"`

	// 代理配置
	Proxy *ProxyConfig `yaml:"proxy" mapstructure:"proxy"`

	// 工作池配置
	Workers *WorkerConfig `yaml:"workers" mapstructure:"workers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 终端日志级别
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (text/json)
	Output     string `yaml:"output" mapstructure:"output"`           // 终端输出 (stderr/stdout/none)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径，为空不写文件
	FileLevel  string `yaml:"file_level" mapstructure:"file_level"`   // 日志文件级别，为空与终端一致
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 单个文件最大大小(MB)
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保存天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// CaptureConfig 截图参数
type CaptureConfig struct {
	Mode           string        `yaml:"mode" mapstructure:"mode"`                       // auto/web/rdp/vnc
	OutputDir      string        `yaml:"output_dir" mapstructure:"output_dir"`           // 输出目录
	Width          int           `yaml:"width" mapstructure:"width"`                     // 截图宽度，0 表示协议默认
	Height         int           `yaml:"height" mapstructure:"height"`                   // 截图高度，0 表示协议默认
	RDPQuiet       time.Duration `yaml:"rdp_quiet" mapstructure:"rdp_quiet"`             // RDP 静默判定间隔
	RDPNegotiation time.Duration `yaml:"rdp_negotiation" mapstructure:"rdp_negotiation"` // RDP 安全协商等待时间
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`                 // 单个目标的硬超时
	WebPaths       []string      `yaml:"web_paths" mapstructure:"web_paths"`             // 附加的 Web 路径
	VNCPassword    string        `yaml:"vnc_password" mapstructure:"vnc_password"`       // VNC 密码
	RDPUser        string        `yaml:"rdp_user" mapstructure:"rdp_user"`               // RDP 用户名 (NLA)
	RDPPassword    string        `yaml:"rdp_password" mapstructure:"rdp_password"`       // RDP 密码
	RDPDomain      string        `yaml:"rdp_domain" mapstructure:"rdp_domain"`           // RDP 域
	BrowserBin     string        `yaml:"browser_bin" mapstructure:"browser_bin"`         // 浏览器路径，为空自动查找
	NoReport       bool          `yaml:"no_report" mapstructure:"no_report"`             // 不生成 HTML 报告
}

// ProxyConfig 代理配置
// Default 作用于 RDP/VNC；Web 单独配置，留空时沿用 Default
type ProxyConfig struct {
	Default string `yaml:"default" mapstructure:"default"` // 默认 SOCKS5 代理
	RDP     string `yaml:"rdp" mapstructure:"rdp"`
	VNC     string `yaml:"vnc" mapstructure:"vnc"`
	Web     string `yaml:"web" mapstructure:"web"` // HTTP 或 SOCKS 代理
}

// WorkerConfig 每个协议池的并发数与速率
type WorkerConfig struct {
	RDP  int     `yaml:"rdp" mapstructure:"rdp"`
	VNC  int     `yaml:"vnc" mapstructure:"vnc"`
	Web  int     `yaml:"web" mapstructure:"web"`
	Rate float64 `yaml:"rate" mapstructure:"rate"` // 每个池每秒新建作业数，0 表示不限
}

// RDPProxy RDP 实际使用的代理
func (p *ProxyConfig) RDPProxy() string {
	if p.RDP != "" {
		return p.RDP
	}
	return p.Default
}

// VNCProxy VNC 实际使用的代理
func (p *ProxyConfig) VNCProxy() string {
	if p.VNC != "" {
		return p.VNC
	}
	return p.Default
}

// WebProxy Web 实际使用的代理
func (p *ProxyConfig) WebProxy() string {
	if p.Web != "" {
		return p.Web
	}
	return p.Default
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	return &Config{
		Log: &LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Capture: &CaptureConfig{
			Mode:           "auto",
			OutputDir:      "output",
			RDPQuiet:       2 * time.Second,
			RDPNegotiation: 10 * time.Second,
			Timeout:        30 * time.Second,
		},
		Proxy: &ProxyConfig{},
		Workers: &WorkerConfig{
			RDP: 1,
			VNC: 1,
			Web: 1,
		},
	}
}

// validateConfig 验证配置
func validateConfig(cfg *Config) error {
	if cfg.Log == nil || cfg.Capture == nil || cfg.Proxy == nil || cfg.Workers == nil {
		return fmt.Errorf("incomplete configuration")
	}

	switch cfg.Capture.Mode {
	case "auto", "web", "rdp", "vnc":
	default:
		return fmt.Errorf("invalid mode: %s", cfg.Capture.Mode)
	}
	if cfg.Capture.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if cfg.Capture.Width < 0 || cfg.Capture.Height < 0 {
		return fmt.Errorf("invalid size: %dx%d", cfg.Capture.Width, cfg.Capture.Height)
	}
	if (cfg.Capture.Width == 0) != (cfg.Capture.Height == 0) {
		return fmt.Errorf("size requires both width and height")
	}
	if cfg.Capture.RDPQuiet <= 0 {
		return fmt.Errorf("rdp quiet interval must be positive")
	}
	if cfg.Capture.RDPNegotiation <= 0 {
		return fmt.Errorf("rdp negotiation timeout must be positive")
	}
	if cfg.Capture.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	// 每个池至少一个 worker
	workers := map[string]int{"rdp": cfg.Workers.RDP, "vnc": cfg.Workers.VNC, "web": cfg.Workers.Web}
	for name, n := range workers {
		if n < 1 {
			return fmt.Errorf("%s workers must be >= 1, got %d", name, n)
		}
	}
	if cfg.Workers.Rate < 0 {
		return fmt.Errorf("rate must be >= 0")
	}
	return nil
}

// WriteYAML 输出生效配置，密码类字段打码
func (c *Config) WriteYAML(w io.Writer) error {
	masked := *c
	capture := *c.Capture
	if capture.VNCPassword != "" {
		capture.VNCPassword = "******"
	}
	if capture.RDPPassword != "" {
		capture.RDPPassword = "******"
	}
	masked.Capture = &capture

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&masked)
}

// WriteExample 写出示例配置文件
func WriteExample(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	return DefaultConfig().WriteYAML(f)
}
