/**
 * Web 截图驱动
 * @date: 2026.10.16
 * @description: 通过无头浏览器打开页面，等待加载完成后截取视口
 */
package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Driver Web 截图驱动
type Driver struct {
	backend Backend
	opts    capture.Options
}

// NewDriver 创建 Web 驱动
func NewDriver(backend Backend, opts capture.Options) *Driver {
	return &Driver{backend: backend, opts: opts}
}

func (d *Driver) Name() string { return "web" }

func (d *Driver) Protocol() model.Protocol { return model.ProtocolWeb }

// Close 关闭浏览器后端
func (d *Driver) Close() error {
	return d.backend.Close()
}

// Capture 执行一次 Web 截图
func (d *Driver) Capture(ctx context.Context, job *model.Job) model.CaptureOutcome {
	start := time.Now()
	target := job.Target

	data, err := d.shoot(ctx, target)
	if err != nil {
		return capture.Failure(target, err).WithDuration(time.Since(start))
	}

	width, height, err := imaging.DecodeSize(data)
	if err != nil {
		return capture.Failure(target, capture.Errorf(model.KindBackend, target.String(), "browser returned an invalid image: %v", err)).
			WithDuration(time.Since(start))
	}
	if err := imaging.WriteFile(job.ArtifactPath, data); err != nil {
		return capture.Failure(target, capture.NewError(model.KindIO, target.String(), err)).WithDuration(time.Since(start))
	}
	return model.NewSuccess(target, job.ArtifactPath, width, height).WithDuration(time.Since(start))
}

// shoot 打开页面、导航、等待加载并截图
func (d *Driver) shoot(ctx context.Context, target model.Target) ([]byte, error) {
	name := target.String()
	url := target.URL()
	ctx, cancel := d.opts.WithTimeout(ctx)
	defer cancel()

	// 1. 页面
	page, err := d.backend.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, capture.ContextError(ctx, name, "browser start")
		}
		return nil, capture.NewError(model.KindBackend, name, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debugf("[Web] %s close page: %v", name, err)
		}
	}()

	width, height := d.opts.Size(DefaultWidth, DefaultHeight)
	if err := page.SetViewport(ctx, width, height); err != nil {
		// 非致命，按浏览器默认视口截图
		logger.Warnf("[Web] %s failed to set viewport: %v", name, err)
	}

	// 2. 导航
	logger.Debugf("[Web] %s navigating to %s", name, url)
	if err := page.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return nil, capture.ContextError(ctx, name, "navigation")
		}
		return nil, navigationError(name, err)
	}

	// 3. 等待 load 事件
	if err := page.WaitLoad(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, capture.ContextError(ctx, name, "page load")
		}
		return nil, capture.NewError(model.KindProtocol, name, fmt.Errorf("page load: %w", err))
	}

	// 4. 截图
	data, err := page.Screenshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, capture.ContextError(ctx, name, "screenshot")
		}
		return nil, capture.NewError(model.KindBackend, name, fmt.Errorf("screenshot: %w", err))
	}
	return data, nil
}

// navigationError 导航失败分类
// 浏览器网络层错误 (net::ERR_*) 中连接类归为 connect_error，其余为 protocol_error
func navigationError(name string, err error) error {
	msg := err.Error()
	idx := strings.Index(msg, "net::ERR_")
	if idx < 0 {
		return capture.NewError(model.KindProtocol, name, err)
	}
	reason := msg[idx:]
	if end := strings.IndexAny(reason, " \t\n,;)"); end > 0 {
		reason = reason[:end]
	}
	switch reason {
	case "net::ERR_TIMED_OUT", "net::ERR_CONNECTION_TIMED_OUT":
		return capture.Errorf(model.KindTimeout, name, "%s", reason)
	case "net::ERR_SSL_PROTOCOL_ERROR", "net::ERR_INVALID_RESPONSE", "net::ERR_EMPTY_RESPONSE",
		"net::ERR_INVALID_HTTP_RESPONSE", "net::ERR_RESPONSE_HEADERS_TRUNCATED":
		return capture.Errorf(model.KindProtocol, name, "%s", reason)
	}
	return capture.Errorf(model.KindConnect, name, "%s", reason)
}
