package options

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/input"
)

// CaptureOptions capture 指令的参数
// 目标来源与尺寸等只在命令行上出现的参数，其余参数通过配置加载器绑定
type CaptureOptions struct {
	Targets     []string // -t/--target 与位置参数
	Files       []string // -f/--file
	NmapFiles   []string // --nmap
	NessusFiles []string // --nessus
	Size        string   // -s/--size WxH
	TestImport  bool     // --test-import: 只解析输入，不截图
	CSV         bool     // --csv: 额外输出 results.csv
}

// NewCaptureOptions 创建默认参数
func NewCaptureOptions() *CaptureOptions {
	return &CaptureOptions{}
}

// Validate 验证参数
func (o *CaptureOptions) Validate() error {
	if o.Sources().Empty() {
		return fmt.Errorf("no input: provide targets with -t, -f, --nmap or --nessus")
	}
	if o.Size != "" {
		if _, _, err := ParseSize(o.Size); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTo 写入截图尺寸
func (o *CaptureOptions) ApplyTo(cfg *config.Config) error {
	if o.Size == "" {
		return nil
	}
	w, h, err := ParseSize(o.Size)
	if err != nil {
		return err
	}
	cfg.Capture.Width = w
	cfg.Capture.Height = h
	return nil
}

// Sources 转换为输入聚合器的来源
func (o *CaptureOptions) Sources() input.Sources {
	return input.Sources{
		Targets:     compact(o.Targets),
		Files:       compact(o.Files),
		NmapFiles:   compact(o.NmapFiles),
		NessusFiles: compact(o.NessusFiles),
	}
}

// ParseSize 解析 "WxH" (也接受 "W,H")
func ParseSize(s string) (int, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	sep := "x"
	if strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size %q, expected WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: bad width", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: bad height", s)
	}
	if w < 16 || h < 16 || w > 8192 || h > 8192 {
		return 0, 0, fmt.Errorf("invalid size %q: each dimension must be between 16 and 8192", s)
	}
	return w, h, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
