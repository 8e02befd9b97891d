package browser

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// BrowserManager 负责定位 Chromium 可执行文件
// 查找顺序: 显式配置 -> 系统已安装 -> rod 自动下载
type BrowserManager struct {
	// configuredBin 用户指定的浏览器路径 (--browser-bin)
	configuredBin string
	// browserPath 已解析的浏览器路径
	browserPath string
	mu          sync.Mutex

	// 以下两项便于测试替换
	lookPath func() (string, bool)
	download func() (string, error)
}

// NewBrowserManager 创建浏览器管理器
func NewBrowserManager(configuredBin string) *BrowserManager {
	return &BrowserManager{
		configuredBin: configuredBin,
		lookPath:      launcher.LookPath,
		download:      func() (string, error) { return launcher.NewBrowser().Get() },
	}
}

// GetBrowserPath 获取浏览器路径，结果会被缓存
func (m *BrowserManager) GetBrowserPath() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserPath != "" {
		return m.browserPath, nil
	}

	// 1. 显式配置的路径必须存在，不回退
	if m.configuredBin != "" {
		info, err := os.Stat(m.configuredBin)
		if err != nil {
			return "", fmt.Errorf("configured browser %s: %w", m.configuredBin, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("configured browser %s is a directory", m.configuredBin)
		}
		m.browserPath = m.configuredBin
		return m.browserPath, nil
	}

	// 2. 系统已安装的浏览器
	if path, exists := m.lookPath(); exists {
		logger.Debugf("[Browser] Found system browser: %s", path)
		m.browserPath = path
		return path, nil
	}

	// 3. 下载 rod 默认版本的 Chromium
	logger.Infof("[Browser] No local Chromium found, downloading...")
	path, err := m.download()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}
	logger.Infof("[Browser] Chromium setup completed: %s", path)
	m.browserPath = path
	return path, nil
}
