package web

import (
	"context"

	"github.com/nccgroup/scrying/internal/core/lib/browser"
)

// Page 浏览器页面
type Page interface {
	SetViewport(ctx context.Context, width, height int) error
	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Backend 浏览器后端，每次 Open 返回相互隔离的页面
type Backend interface {
	Open(ctx context.Context) (Page, error)
	Close() error
}

// rodBackend 基于 go-rod 的后端
type rodBackend struct {
	launcher *browser.BrowserLauncher
}

// NewRodBackend 创建 rod 后端，浏览器在第一次 Open 时才启动
func NewRodBackend(browserBin, proxy string) Backend {
	l := browser.NewLauncher(browser.NewBrowserManager(browserBin))
	l.SetProxy(proxy)
	return &rodBackend{launcher: l}
}

func (b *rodBackend) Open(ctx context.Context) (Page, error) {
	page, err := b.launcher.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (b *rodBackend) Close() error {
	return b.launcher.Close()
}
