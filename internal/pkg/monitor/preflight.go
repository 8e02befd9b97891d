package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nccgroup/scrying/internal/pkg/logger"
)

const (
	// MinFreeDisk 输出目录所在文件系统的最小剩余空间
	MinFreeDisk uint64 = 100 << 20
	// BrowserMemory 每个 Web worker (一个浏览器页面) 的估算内存
	BrowserMemory uint64 = 300 << 20
)

// HostInfo 主机静态信息
type HostInfo struct {
	Hostname string
	OS       string
	Platform string
	Arch     string
	CPUCores int
}

// Report 启动前检查结果
type Report struct {
	Host          HostInfo
	DiskFree      uint64
	MemAvailable  uint64
	MemRequired   uint64
	Warnings      []string
	ProbeFailures []string
}

// Probe 资源探测函数，测试中可替换
type Probe struct {
	DiskFree     func(path string) (uint64, error)
	MemAvailable func() (uint64, error)
	HostInfo     func() (HostInfo, error)
}

// SystemProbe 基于 gopsutil 的探测实现
func SystemProbe() Probe {
	return Probe{
		DiskFree: func(path string) (uint64, error) {
			usage, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return usage.Free, nil
		},
		MemAvailable: func() (uint64, error) {
			vMem, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vMem.Available, nil
		},
		HostInfo: func() (HostInfo, error) {
			info := HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH, CPUCores: runtime.NumCPU()}
			hInfo, err := host.Info()
			if err != nil {
				return info, err
			}
			info.Hostname = hInfo.Hostname
			info.Platform = hInfo.Platform
			if hInfo.KernelArch != "" {
				info.Arch = hInfo.KernelArch
			}
			return info, nil
		},
	}
}

// Preflight 启动前资源检查
// 只产生警告，不会阻止运行
func Preflight(probe Probe, outputDir string, webWorkers int) *Report {
	report := &Report{}

	// 1. 主机信息
	if probe.HostInfo != nil {
		info, err := probe.HostInfo()
		if err != nil {
			report.ProbeFailures = append(report.ProbeFailures, "host: "+err.Error())
		}
		report.Host = info
	}

	// 2. 输出目录剩余空间，目录尚未创建时检查最近的已存在父目录
	if probe.DiskFree != nil {
		free, err := probe.DiskFree(existingParent(outputDir))
		if err != nil {
			report.ProbeFailures = append(report.ProbeFailures, "disk: "+err.Error())
		} else {
			report.DiskFree = free
			if free < MinFreeDisk {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("only %s free on the output filesystem", humanBytes(free)))
			}
		}
	}

	// 3. 可用内存 vs 浏览器并发
	if probe.MemAvailable != nil && webWorkers > 0 {
		report.MemRequired = uint64(webWorkers) * BrowserMemory
		avail, err := probe.MemAvailable()
		if err != nil {
			report.ProbeFailures = append(report.ProbeFailures, "memory: "+err.Error())
		} else {
			report.MemAvailable = avail
			if avail < report.MemRequired {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%d web workers may need %s but only %s is available",
						webWorkers, humanBytes(report.MemRequired), humanBytes(avail)))
			}
		}
	}

	return report
}

// Log 输出检查结果
func (r *Report) Log() {
	logger.Debugf("[Preflight] host=%s os=%s/%s platform=%s cores=%d disk_free=%s mem_available=%s",
		r.Host.Hostname, r.Host.OS, r.Host.Arch, r.Host.Platform, r.Host.CPUCores,
		humanBytes(r.DiskFree), humanBytes(r.MemAvailable))
	for _, f := range r.ProbeFailures {
		logger.LogSystemEvent("Preflight", "probe", "resource probe failed: "+f, logger.DebugLevel, nil)
	}
	for _, w := range r.Warnings {
		logger.LogSystemEvent("Preflight", "warning", w, logger.WarnLevel, nil)
	}
}

func existingParent(path string) string {
	if path == "" {
		return "."
	}
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
