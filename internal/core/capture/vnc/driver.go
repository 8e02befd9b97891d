/**
 * VNC 截图驱动
 * @date: 2026.10.16
 * @description: 基于 go-vnc 完成 RFB 握手，请求一次完整帧缓冲，收到更新结束标记后落盘
 */
package vnc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"strings"
	"sync"
	"time"

	vnclib "github.com/mitchellh/go-vnc"

	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/core/lib/network/dialer"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// Driver VNC 截图驱动
type Driver struct {
	dialer   dialer.Dialer
	opts     capture.Options
	password string
}

// NewDriver 创建 VNC 驱动，password 为空时只尝试无认证
func NewDriver(d dialer.Dialer, opts capture.Options, password string) *Driver {
	return &Driver{
		dialer:   d,
		opts:     opts,
		password: password,
	}
}

func (d *Driver) Name() string { return "vnc" }

func (d *Driver) Protocol() model.Protocol { return model.ProtocolVNC }

// Capture 执行一次 VNC 截图
func (d *Driver) Capture(ctx context.Context, job *model.Job) model.CaptureOutcome {
	start := time.Now()
	target := job.Target

	img, err := d.grab(ctx, target)
	if err != nil {
		return capture.Failure(target, err).WithDuration(time.Since(start))
	}

	if err := imaging.SavePNG(job.ArtifactPath, img); err != nil {
		return capture.Failure(target, capture.NewError(model.KindIO, target.String(), err)).WithDuration(time.Since(start))
	}

	b := img.Bounds()
	return model.NewSuccess(target, job.ArtifactPath, b.Dx(), b.Dy()).WithDuration(time.Since(start))
}

// grab 连接、握手并读取一帧
func (d *Driver) grab(ctx context.Context, target model.Target) (image.Image, error) {
	name := target.String()
	ctx, cancel := d.opts.WithTimeout(ctx)
	defer cancel()

	// 1. 建立连接
	logger.Debugf("[VNC] %s connecting", name)
	raw, err := d.dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		if ctx.Err() != nil {
			return nil, capture.ContextError(ctx, name, "connect")
		}
		return nil, capture.NewError(model.KindConnect, name, err)
	}
	conn := newWatchConn(raw)
	defer conn.Close()

	// go-vnc 的握手与主循环都是阻塞读，ctx 结束时关闭连接让它们返回
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// 2. RFB 握手
	messages := make(chan vnclib.ServerMessage, 16)
	client, err := vnclib.Client(conn, &vnclib.ClientConfig{
		Auth:            d.auth(),
		Exclusive:       false,
		ServerMessageCh: messages,
	})
	if err != nil {
		return nil, d.handshakeError(ctx, name, err)
	}
	defer client.Close()

	width, height := int(client.FrameBufferWidth), int(client.FrameBufferHeight)
	if width == 0 || height == 0 {
		return nil, capture.Errorf(model.KindProtocol, name, "server reported an empty framebuffer (%dx%d)", width, height)
	}
	logger.Debugf("[VNC] %s desktop %q %dx%d bpp=%d truecolor=%v",
		name, client.DesktopName, width, height, client.PixelFormat.BPP, client.PixelFormat.TrueColor)

	// 3. 像素格式与编码
	if !supportedBPP(client.PixelFormat) {
		pf := truecolor32()
		if err := client.SetPixelFormat(&pf); err != nil {
			return nil, d.streamError(ctx, name, "set pixel format", err)
		}
		client.PixelFormat = pf
	}
	if err := client.SetEncodings([]vnclib.Encoding{new(vnclib.RawEncoding)}); err != nil {
		return nil, d.streamError(ctx, name, "set encodings", err)
	}

	// 4. 请求一次完整 (非增量) 更新
	if err := client.FramebufferUpdateRequest(false, 0, 0, uint16(width), uint16(height)); err != nil {
		return nil, d.streamError(ctx, name, "framebuffer request", err)
	}

	// 5. 等待更新结束标记
	canvas := imaging.NewCanvas(width, height)
	for {
		select {
		case <-ctx.Done():
			return nil, capture.ContextError(ctx, name, "framebuffer update")
		case <-conn.Done():
			if ctx.Err() != nil {
				return nil, capture.ContextError(ctx, name, "framebuffer update")
			}
			// 连接关闭前消息可能已经入队
			select {
			case msg := <-messages:
				if update, ok := msg.(*vnclib.FramebufferUpdateMessage); ok {
					d.paint(canvas, client.PixelFormat, update)
					return canvas.Snapshot(), nil
				}
			default:
			}
			return nil, d.streamError(ctx, name, "framebuffer update", conn.Err())
		case msg := <-messages:
			switch m := msg.(type) {
			case *vnclib.FramebufferUpdateMessage:
				d.paint(canvas, client.PixelFormat, m)
				logger.Debugf("[VNC] %s framebuffer update with %d rectangles", name, len(m.Rectangles))
				return canvas.Snapshot(), nil
			default:
				logger.Tracef("[VNC] %s ignoring server message type %d", name, msg.Type())
			}
		}
	}
}

// auth 配置了密码时优先使用 VNC 认证
func (d *Driver) auth() []vnclib.ClientAuth {
	if d.password == "" {
		return []vnclib.ClientAuth{new(vnclib.ClientAuthNone)}
	}
	return []vnclib.ClientAuth{
		&vnclib.PasswordAuth{Password: d.password},
		new(vnclib.ClientAuthNone),
	}
}

// paint 把 Raw 编码的矩形写入画布
func (d *Driver) paint(canvas *imaging.Canvas, pf vnclib.PixelFormat, update *vnclib.FramebufferUpdateMessage) {
	for _, rect := range update.Rectangles {
		enc, ok := rect.Enc.(*vnclib.RawEncoding)
		if !ok {
			continue
		}
		w, h := int(rect.Width), int(rect.Height)
		if w == 0 || h == 0 || len(enc.Colors) < w*h {
			continue
		}
		tile := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				tile.SetRGBA(x, y, normalize(pf, enc.Colors[y*w+x]))
			}
		}
		canvas.Blit(int(rect.X), int(rect.Y), tile)
	}
}

// handshakeError 握手失败分类
func (d *Driver) handshakeError(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return capture.ContextError(ctx, name, "handshake")
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no suitable auth"):
		if d.password == "" {
			return capture.Errorf(model.KindAuthRequired, name, "server requires authentication (set --vnc-auth)")
		}
		return capture.Errorf(model.KindAuthRequired, name, "server offers no supported authentication: %v", err)
	case strings.Contains(msg, "security handshake failed"):
		return capture.Errorf(model.KindAuthRequired, name, "authentication failed: %v", err)
	case strings.Contains(msg, "unsupported"):
		return capture.Errorf(model.KindUnsupportedServer, name, "%v", err)
	case strings.Contains(msg, "no security types"):
		return capture.Errorf(model.KindProtocol, name, "server refused connection: %v", err)
	}
	return d.streamError(ctx, name, "handshake", err)
}

// streamError 握手之后的读写错误
func (d *Driver) streamError(ctx context.Context, name, stage string, err error) error {
	if ctx.Err() != nil {
		return capture.ContextError(ctx, name, stage)
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	kind := capture.KindOf(err)
	if kind == model.KindConnect {
		kind = model.KindProtocol
	}
	return capture.NewError(kind, name, fmt.Errorf("%s: %w", stage, err))
}

// watchConn 记录第一次读错误或关闭，用于感知 go-vnc 主循环退出
type watchConn struct {
	net.Conn
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func newWatchConn(c net.Conn) *watchConn {
	return &watchConn{Conn: c, done: make(chan struct{})}
}

func (w *watchConn) Read(p []byte) (int, error) {
	n, err := w.Conn.Read(p)
	if err != nil {
		w.finish(err)
	}
	return n, err
}

func (w *watchConn) Close() error {
	w.finish(net.ErrClosed)
	return w.Conn.Close()
}

func (w *watchConn) finish(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		close(w.done)
	})
}

// Done 连接不可再读时关闭
func (w *watchConn) Done() <-chan struct{} { return w.done }

// Err 第一次读错误
func (w *watchConn) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
