package options

import (
	"fmt"
	"os"
	"path/filepath"
)

// OutputOptions 输出目录与报告文件
type OutputOptions struct {
	Dir      string
	NoReport bool // 不生成 report.html
	CSV      bool // 额外生成 results.csv
}

// Validate 输出目录必须可创建可写
func (o *OutputOptions) Validate() error {
	if o.Dir == "" {
		return fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(o.Dir, 0755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}
	probe, err := os.CreateTemp(o.Dir, ".scrying-write-*")
	if err != nil {
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// ReportPath report.html 路径
func (o *OutputOptions) ReportPath() string {
	return filepath.Join(o.Dir, "report.html")
}

// JSONPath results.json 路径
func (o *OutputOptions) JSONPath() string {
	return filepath.Join(o.Dir, "results.json")
}

// CSVPath results.csv 路径
func (o *OutputOptions) CSVPath() string {
	return filepath.Join(o.Dir, "results.csv")
}
