package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nccgroup/scrying/internal/pkg/logger"
	"github.com/nccgroup/scrying/internal/pkg/version"
)

// closeTimeout 关闭页面时使用的独立超时，作业 ctx 可能已经结束
const closeTimeout = 5 * time.Second

// BrowserLauncher 负责启动并复用浏览器实例
type BrowserLauncher struct {
	manager   *BrowserManager
	proxy     string // 代理地址 (e.g. socks5://127.0.0.1:1080, http://proxy:8080)
	headless  bool
	userAgent string

	// 浏览器实例 (全局复用，每个页面独立的隐身上下文)
	launcher *launcher.Launcher
	browser  *rod.Browser
	mu       sync.Mutex
}

// NewLauncher 创建启动器
func NewLauncher(manager *BrowserManager) *BrowserLauncher {
	return &BrowserLauncher{
		manager:   manager,
		headless:  true,
		userAgent: version.GetUserAgent(),
	}
}

// SetProxy 设置代理，未带 scheme 时按 SOCKS5 处理
func (l *BrowserLauncher) SetProxy(proxy string) {
	if proxy != "" && !strings.Contains(proxy, "://") {
		proxy = "socks5://" + proxy
	}
	l.proxy = proxy
}

// SetHeadless 设置是否无头模式
func (l *BrowserLauncher) SetHeadless(headless bool) {
	l.headless = headless
}

// Launch 启动或获取已启动的浏览器实例
func (l *BrowserLauncher) Launch(ctx context.Context) (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. 已启动且连接正常，直接返回
	if l.browser != nil {
		if _, err := l.browser.Version(); err == nil {
			return l.browser, nil
		}
		logger.Warnf("[Browser] Browser connection lost, relaunching")
		l.closeLocked()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. 浏览器路径
	binPath, err := l.manager.GetBrowserPath()
	if err != nil {
		return nil, err
	}

	// 3. 启动参数
	u := launcher.New().
		Bin(binPath).
		Headless(l.headless).
		// root / 容器环境下必须关闭沙箱
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		// 内网设备大多是自签名证书
		Set("ignore-certificate-errors").
		Set("user-agent", l.userAgent)

	if l.proxy != "" {
		u = u.Set("proxy-server", l.proxy)
		logger.Debugf("[Browser] Launching with proxy: %s", l.proxy)
	}

	// 4. 启动
	controlURL, err := u.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	// 5. 连接 (连接不绑定作业 ctx，浏览器在多个作业之间复用)
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		u.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	logger.Debugf("[Browser] Browser started: %s", binPath)

	l.launcher = u
	l.browser = browser
	return browser, nil
}

// Close 关闭浏览器
func (l *BrowserLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *BrowserLauncher) closeLocked() error {
	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.launcher != nil {
		l.launcher.Kill()
		l.launcher = nil
	}
	return err
}

// OpenPage 在新的隐身上下文中打开空白页
// 每个作业独立上下文，cookie 与缓存互不影响
func (l *BrowserLauncher) OpenPage(ctx context.Context) (*Page, error) {
	browser, err := l.Launch(ctx)
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.userAgent}); err != nil {
		logger.Debugf("[Browser] Failed to set user agent: %v", err)
	}
	return &Page{page: page, incognito: incognito}, nil
}

// Page 单个作业使用的页面
type Page struct {
	page      *rod.Page
	incognito *rod.Browser
}

// SetViewport 设置视口大小
func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	return p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}

// Navigate 导航到目标地址，返回的错误信息中带有 net::ERR_* 原因
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

// WaitLoad 等待 load 事件
func (p *Page) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).WaitLoad()
}

// Screenshot 截取当前视口，返回 PNG 数据
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close 关闭页面并销毁隐身上下文
func (p *Page) Close() error {
	err := p.page.Timeout(closeTimeout).Close()
	if cerr := p.incognito.Close(); err == nil {
		err = cerr
	}
	return err
}
