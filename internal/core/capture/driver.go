/**
 * 截图驱动
 * @date: 2026.10.16
 * @description: 三种协议 (RDP/VNC/Web) 共享的截图能力
 */
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nccgroup/scrying/internal/core/model"
)

// Driver 单个协议的截图驱动
// 对每个作业恰好返回一个结果，不得 panic 到调用方之外
// ctx 取消时应尽快释放连接/页面并返回 cancelled 或 timeout 失败
type Driver interface {
	Name() string
	Protocol() model.Protocol
	Capture(ctx context.Context, job *model.Job) model.CaptureOutcome
}

// Closer 持有共享资源 (例如浏览器进程) 的驱动实现该接口
type Closer interface {
	Close() error
}

// Options 驱动共享参数
type Options struct {
	Width   int           // 0 表示使用协议默认值
	Height  int           // 0 表示使用协议默认值
	Timeout time.Duration // 单个目标硬超时
}

// Size 返回请求尺寸，未配置时使用默认值
func (o Options) Size(defW, defH int) (int, int) {
	if o.Width > 0 && o.Height > 0 {
		return o.Width, o.Height
	}
	return defW, defH
}

// WithTimeout 在 ctx 上叠加硬超时
func (o Options) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// EnsureDir 创建输出文件所在目录
func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return NewError(model.KindIO, "", fmt.Errorf("create output directory: %w", err))
	}
	return nil
}

// ContextError 将 ctx 的结束原因转为失败
// 父 ctx 被取消视为 cancelled，硬超时视为 timeout
func ContextError(ctx context.Context, target, stage string) *Error {
	if ctx.Err() == context.Canceled {
		return Errorf(model.KindCancelled, target, "cancelled during %s", stage)
	}
	return Errorf(model.KindTimeout, target, "timed out during %s", stage)
}
