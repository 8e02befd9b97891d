/**
 * RDP 截图驱动
 * @date: 2026.10.16
 * @description: 连接后持续接收位图更新，更新停止超过静默间隔即认为画面稳定并落盘
 * 状态: Connecting -> Authenticating -> Receiving -> Stabilizing -> Rendered | Failed
 */
package rdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/core/lib/network/dialer"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 1024
	// DefaultQuiet 最后一次位图更新后的静默间隔
	DefaultQuiet = 2 * time.Second
	// DefaultNegotiation TCP 建立后等待安全协商结果的时间
	DefaultNegotiation = 10 * time.Second
)

// State 驱动状态
type State string

const (
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateReceiving      State = "receiving"
	StateStabilizing    State = "stabilizing"
	StateRendered       State = "rendered"
	StateFailed         State = "failed"
)

// Config RDP 驱动配置
type Config struct {
	capture.Options
	Quiet       time.Duration
	Negotiation time.Duration
	User        string
	Password    string
	Domain      string
}

// Driver RDP 截图驱动
type Driver struct {
	dialer     dialer.Dialer
	cfg        Config
	newSession SessionFactory
}

// NewDriver 创建 RDP 驱动
func NewDriver(d dialer.Dialer, cfg Config) *Driver {
	if cfg.Quiet <= 0 {
		cfg.Quiet = DefaultQuiet
	}
	if cfg.Negotiation <= 0 {
		cfg.Negotiation = DefaultNegotiation
	}
	return &Driver{
		dialer:     d,
		cfg:        cfg,
		newSession: NewGrdpSession,
	}
}

// WithSessionFactory 替换会话实现
func (d *Driver) WithSessionFactory(f SessionFactory) *Driver {
	d.newSession = f
	return d
}

func (d *Driver) Name() string { return "rdp" }

func (d *Driver) Protocol() model.Protocol { return model.ProtocolRDP }

// desktopSize 协商用的桌面尺寸：宽度按 4 对齐，限制在服务端普遍接受的范围内
func desktopSize(w, h int) (int, int) {
	w = (w + 3) &^ 3
	if w < 640 {
		w = 640
	}
	if h < 480 {
		h = 480
	}
	if w > 4096 {
		w = 4096
	}
	if h > 2048 {
		h = 2048
	}
	return w, h
}

// run 单个作业的运行期状态
type run struct {
	name  string
	state State
}

func (r *run) transition(to State) {
	logger.Debugf("[RDP] %s %s -> %s", r.name, r.state, to)
	r.state = to
}

// Capture 执行一次 RDP 截图
func (d *Driver) Capture(ctx context.Context, job *model.Job) model.CaptureOutcome {
	start := time.Now()
	target := job.Target
	r := &run{name: target.String(), state: StateConnecting}

	outW, outH := d.cfg.Size(DefaultWidth, DefaultHeight)
	deskW, deskH := desktopSize(outW, outH)

	canvas, err := d.receive(ctx, r, target, deskW, deskH)
	if err != nil {
		r.transition(StateFailed)
		return capture.Failure(target, err).WithDuration(time.Since(start))
	}

	img := imaging.Scale(canvas.Snapshot(), outW, outH)
	if err := imaging.SavePNG(job.ArtifactPath, img); err != nil {
		r.transition(StateFailed)
		return capture.Failure(target, capture.NewError(model.KindIO, r.name, err)).WithDuration(time.Since(start))
	}
	r.transition(StateRendered)

	b := img.Bounds()
	return model.NewSuccess(target, job.ArtifactPath, b.Dx(), b.Dy()).WithDuration(time.Since(start))
}

// receive 驱动状态机直到画面稳定
func (d *Driver) receive(ctx context.Context, r *run, target model.Target, width, height int) (*imaging.Canvas, error) {
	parent := ctx
	ctx, cancel := d.cfg.WithTimeout(ctx)
	defer cancel()

	session := d.newSession(SessionConfig{
		Width:    width,
		Height:   height,
		User:     d.cfg.User,
		Password: d.cfg.Password,
		Domain:   d.cfg.Domain,
		// 协商必须在硬超时之前给出结论，否则旧服务端只会表现为超时
		NegotiationTimeout: d.negotiationTimeout(),
	})
	defer session.Close()

	// 1. Connecting / Authenticating
	dialed := false
	dial := func(ctx context.Context) (net.Conn, error) {
		conn, err := d.dialer.DialContext(ctx, "tcp", target.Address())
		if err != nil {
			return nil, err
		}
		if !dialed {
			dialed = true
			r.transition(StateAuthenticating)
		}
		return conn, nil
	}
	if err := session.Connect(ctx, dial); err != nil {
		return nil, d.connectError(ctx, r, err)
	}

	// 2. Receiving: 等待第一批位图
	r.transition(StateReceiving)
	canvas := imaging.NewCanvas(width, height)
	events := session.Events()

	quiet := time.NewTimer(d.cfg.Quiet)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return nil, capture.ContextError(parent, r.name, string(r.state))
			}
			if r.state == StateStabilizing {
				// 更新一直没有停下，按当前画面输出
				logger.Debugf("[RDP] %s hard timeout while still receiving updates, rendering current frame", r.name)
				return canvas, nil
			}
			return nil, capture.Errorf(model.KindNoData, r.name, "no bitmap received within %s", d.cfg.Timeout)

		case <-quiet.C:
			return canvas, nil

		case ev := <-events:
			if ev.Err != nil {
				if r.state == StateStabilizing {
					logger.Debugf("[RDP] %s session ended after updates (%v), rendering current frame", r.name, ev.Err)
					return canvas, nil
				}
				return nil, d.sessionError(r, ev.Err)
			}
			for _, bm := range ev.Bitmaps {
				canvas.Blit(bm.X, bm.Y, bm.Image)
			}
			if r.state == StateReceiving {
				r.transition(StateStabilizing)
			}
			// 每次更新重置静默计时
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(d.cfg.Quiet)
		}
	}
}

// negotiationTimeout 协商等待时间，不超过硬超时的一半
func (d *Driver) negotiationTimeout() time.Duration {
	neg := d.cfg.Negotiation
	if d.cfg.Timeout > 0 && neg > d.cfg.Timeout/2 {
		neg = d.cfg.Timeout / 2
	}
	return neg
}

// connectError 连接与协商阶段错误
func (d *Driver) connectError(ctx context.Context, r *run, err error) error {
	if ctx.Err() != nil {
		return capture.ContextError(ctx, r.name, string(r.state))
	}
	switch {
	case errors.Is(err, ErrNLARequired):
		if d.cfg.User == "" {
			return capture.Errorf(model.KindAuthRequired, r.name, "server requires network level authentication (set --rdp-user/--rdp-pass)")
		}
		return capture.Errorf(model.KindAuthRequired, r.name, "network level authentication failed: %v", err)
	case errors.Is(err, ErrNegotiation):
		return capture.NewError(model.KindUnsupportedServer, r.name, err)
	}

	if r.state == StateConnecting {
		kind := capture.KindOf(err)
		if kind == model.KindProtocol {
			kind = model.KindConnect
		}
		return capture.NewError(kind, r.name, err)
	}
	// 协商中途断开或读到无法识别的数据
	kind := capture.KindOf(err)
	if kind == model.KindProtocol || kind == model.KindConnect {
		kind = model.KindUnsupportedServer
	}
	return capture.NewError(kind, r.name, fmt.Errorf("security negotiation: %w", err))
}

// sessionError 收到第一张位图之前的会话错误
func (d *Driver) sessionError(r *run, err error) error {
	if errors.Is(err, ErrSessionClosed) {
		return capture.Errorf(model.KindNoData, r.name, "server closed the session before sending any bitmap")
	}
	return capture.NewError(model.KindProtocol, r.name, err)
}
